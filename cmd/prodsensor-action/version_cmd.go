package main

import (
	"github.com/spf13/cobra"

	"github.com/prodsensor/action/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the prodsensor-action version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version.Version)
		},
	}
}
