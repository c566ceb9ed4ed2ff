package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/prodsensor/action/internal/api"
	"github.com/prodsensor/action/internal/classify"
	"github.com/prodsensor/action/internal/config"
	"github.com/prodsensor/action/internal/gh"
	"github.com/prodsensor/action/internal/poll"
	"github.com/prodsensor/action/internal/render"
	"github.com/prodsensor/action/internal/version"
)

func runCmd() *cobra.Command {
	var (
		apiURL      string
		repoURL     string
		ref         string
		failOn      string
		timeoutSecs int
		comment     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit the repository for analysis and wait for the verdict",
		Long: `Submit the repository for ProdSensor analysis, wait for the run
to complete, publish outputs and a PR comment, and exit with the
classified code.

Flags override environment inputs (PRODSENSOR_API_KEY,
PRODSENSOR_API_URL, INPUT_*), which override .prodsensor.toml.
When run inside GitHub Actions, the repository URL and PR number
are auto-detected from the environment.

Exit codes:
  0  Production ready
  1  Not production ready
  2  Conditionally ready
  3  API or network error
  4  Authentication error
  5  Timeout`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Exit codes carry the result; don't let cobra add
			// usage noise on top of them.
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			var commentFlag *bool
			if cmd.Flags().Changed("comment") {
				commentFlag = &comment
			}

			return runAction(cmd.Context(), cmd.OutOrStdout(), config.Overrides{
				APIURL:      apiURL,
				RepoURL:     repoURL,
				Ref:         ref,
				FailOn:      failOn,
				TimeoutSecs: timeoutSecs,
				CommentOnPR: commentFlag,
			})
		},
	}

	cmd.Flags().StringVar(&apiURL, "api-url", "",
		"ProdSensor API endpoint (default from PRODSENSOR_API_URL)")
	cmd.Flags().StringVar(&repoURL, "repo-url", "",
		"repository URL to analyze (auto from GITHUB_REPOSITORY)")
	cmd.Flags().StringVar(&ref, "ref", "",
		"git ref or commit to analyze (default: service default branch)")
	cmd.Flags().StringVar(&failOn, "fail-on", "",
		"failure policy: not-ready, blockers, never (default not-ready)")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0,
		"analysis timeout in seconds (default 600)")
	cmd.Flags().BoolVar(&comment, "comment", true,
		"post the result as a PR comment")

	return cmd
}

func runAction(ctx context.Context, out io.Writer, flags config.Overrides) error {
	logger := gh.NewLoggerTo(out)
	outputs := gh.NewOutputs()

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Errorf("%v", err)
		if errors.Is(err, config.ErrMissingAPIKey) {
			return &exitError{code: classify.ExitAuthError}
		}
		return &exitError{code: classify.ExitAPIError}
	}

	client := api.NewClient(cfg.APIURL, cfg.APIKey, version.UserAgent())
	defer client.Close()

	fatal := func(err error) error {
		logger.Errorf("%v", err)
		return &exitError{code: classify.ClassifyError(err)}
	}

	logger.Group("Starting Analysis")
	logger.Infof("Starting analysis of %s", cfg.RepoURL)
	handle, err := client.SubmitAnalysis(ctx, api.AnalysisRequest{
		RepoURL:     cfg.RepoURL,
		Ref:         cfg.Ref,
		RequestID:   uuid.NewString(),
		RequestedBy: "github-actions",
	})
	if err != nil {
		logger.EndGroup()
		return fatal(err)
	}
	setOutput(logger, outputs, "run-id", handle.ID)
	logger.Infof("Analysis started. Run ID: %s", handle.ID)
	logger.EndGroup()

	logger.Group("Waiting for Analysis")
	poller := poll.New(client)
	poller.Logf = logger.Progressf
	report, err := poller.Wait(ctx, handle, cfg.Timeout)
	logger.EndGroup()
	if err != nil {
		if ctx.Err() != nil {
			logger.Errorf("analysis interrupted: %v", ctx.Err())
			return &exitError{code: classify.ExitAPIError}
		}
		return fatal(err)
	}

	blockerCount := report.CountBySeverity(api.SeverityBlocker)
	majorCount := report.CountBySeverity(api.SeverityMajor)

	setOutput(logger, outputs, "verdict", string(report.Verdict))
	setOutput(logger, outputs, "score", strconv.Itoa(report.Score))
	setOutput(logger, outputs, "report-url", report.ReportURL)
	setOutput(logger, outputs, "blocker-count", strconv.Itoa(blockerCount))
	setOutput(logger, outputs, "major-count", strconv.Itoa(majorCount))

	fmt.Fprintln(out)
	fmt.Fprint(out, render.Console(report))

	if cfg.CommentOnPR {
		publishComment(ctx, cfg, report, logger)
	}

	code := classify.ClassifyReport(report, cfg.FailOn)
	switch code {
	case classify.ExitNotProductionReady:
		logger.Errorf("Failing build: %s", report.Verdict)
	case classify.ExitConditionallyReady:
		logger.Warnf("Build warning: conditionally ready")
	}
	if code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// publishComment posts or updates the PR comment. Failures here are
// logged and never change the exit code: the analysis result, not the
// comment, is the CI signal.
func publishComment(ctx context.Context, cfg *config.Config, report *api.Report, logger *gh.Logger) {
	prNumber, err := cfg.GitHub.PRNumber()
	if err != nil {
		logger.Debugf("not a PR context, skipping comment")
		return
	}
	if cfg.GitHub.Token == "" {
		logger.Warnf("GITHUB_TOKEN not available, skipping comment")
		return
	}

	publisher := &gh.CommentPublisher{
		BaseURL: cfg.GitHub.APIBaseURL,
		Token:   cfg.GitHub.Token,
		Repo:    cfg.GitHub.Repository,
		Marker:  render.CommentMarker,
	}

	if err := publisher.Publish(ctx, prNumber, render.CommentMarkdown(report)); err != nil {
		logger.Warnf("Failed to post PR comment: %v", err)
		return
	}
	logger.Infof("Posted analysis results to PR #%d", prNumber)
}

func setOutput(logger *gh.Logger, outputs *gh.Outputs, name, value string) {
	if err := outputs.Set(name, value); err != nil {
		logger.Warnf("set output %s: %v", name, err)
	}
}
