package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Best-effort .env loading for running the action locally;
	// CI supplies real environment variables.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "prodsensor-action",
		Short: "Run ProdSensor production readiness analysis in CI",
		Long: "prodsensor-action submits a repository to the ProdSensor " +
			"analysis service, waits for the run to finish, posts the " +
			"result as a PR comment, and exits with a CI-friendly code.",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(updateCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		// Check for exitError to exit with specific code without extra output
		if exitErr, ok := err.(*exitError); ok {
			os.Exit(exitErr.code)
		}
		os.Exit(1)
	}
}
