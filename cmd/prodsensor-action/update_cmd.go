package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prodsensor/action/internal/update"
	"github.com/prodsensor/action/internal/version"
)

func updateCmd() *cobra.Command {
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update prodsensor-action to the latest release",
		Long: `Check GitHub releases for a newer prodsensor-action and replace
the current binary in place. Downloads are verified against the
published checksums before installing.

CI workflows generated by "prodsensor-action init" pin or resolve
their own version; update is for local installs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := &update.Checker{UserAgent: version.UserAgent()}

			info, err := checker.Check(cmd.Context(), version.Version, true)
			if err != nil {
				return err
			}
			if info == nil {
				cmd.Printf("prodsensor-action %s is up to date\n", version.Version)
				return nil
			}

			cmd.Printf("Update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if checkOnly {
				return nil
			}

			if err := checker.Apply(cmd.Context(), info); err != nil {
				return fmt.Errorf("update to %s: %w", info.LatestVersion, err)
			}
			cmd.Printf("Updated to %s\n", info.LatestVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false,
		"only check for a newer release, do not install")

	return cmd
}
