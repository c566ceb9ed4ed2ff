package main

import (
	"github.com/spf13/cobra"

	"github.com/prodsensor/action/internal/workflow"
)

const defaultWorkflowPath = ".github/workflows/prodsensor.yml"

func initCmd() *cobra.Command {
	var (
		failOn      string
		timeoutSecs int
		comment     bool
		pinVersion  string
		outputPath  string
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a GitHub Actions workflow that runs ProdSensor on PRs",
		Long: `Generate a ready-to-commit GitHub Actions workflow file that
installs prodsensor-action and runs the analysis on every pull
request.

After committing the workflow, add a repository secret named
PRODSENSOR_API_KEY with your ProdSensor API key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := workflow.DefaultConfig()
			if failOn != "" {
				cfg.FailOn = failOn
			}
			cfg.TimeoutSeconds = timeoutSecs
			cfg.Comment = comment
			cfg.Version = pinVersion

			if err := workflow.WriteWorkflow(cfg, outputPath, force); err != nil {
				return err
			}

			cmd.Printf("Wrote %s\n", outputPath)
			cmd.Println("Next: add a repository secret named PRODSENSOR_API_KEY")
			return nil
		},
	}

	cmd.Flags().StringVar(&failOn, "fail-on", "",
		"failure policy baked into the workflow (default not-ready)")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0,
		"analysis timeout in seconds (0 = action default)")
	cmd.Flags().BoolVar(&comment, "comment", true,
		"post results as a PR comment")
	cmd.Flags().StringVar(&pinVersion, "version", "",
		"pin a prodsensor-action release version (default latest)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", defaultWorkflowPath,
		"workflow file path")
	cmd.Flags().BoolVar(&force, "force", false,
		"overwrite an existing workflow file")

	return cmd
}
