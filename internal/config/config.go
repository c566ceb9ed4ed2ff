// Package config builds the single validated configuration the action
// runs with. Precedence: command-line flags, then environment inputs
// (PRODSENSOR_* / INPUT_* / GITHUB_*), then the repository's
// .prodsensor.toml, then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prodsensor/action/internal/api"
	"github.com/prodsensor/action/internal/classify"
	"github.com/prodsensor/action/internal/gh"
)

// DefaultTimeout bounds the whole analysis wait.
const DefaultTimeout = 600 * time.Second

// RepoConfigName is the per-repo config file, read from the working
// directory.
const RepoConfigName = ".prodsensor.toml"

// ErrMissingAPIKey is returned when no API key is configured. Callers
// map it to the authentication exit code.
var ErrMissingAPIKey = errors.New("API key is required (set PRODSENSOR_API_KEY)")

// Config is the validated configuration, constructed once at startup
// and never mutated.
type Config struct {
	APIKey      string
	APIURL      string
	RepoURL     string
	Ref         string
	FailOn      classify.FailurePolicy
	CommentOnPR bool
	Timeout     time.Duration

	GitHub gh.Context
}

// Overrides carries flag-level settings. Zero values mean "not set";
// CommentOnPR uses a pointer so false is distinguishable from unset.
type Overrides struct {
	APIURL      string
	RepoURL     string
	Ref         string
	FailOn      string
	TimeoutSecs int
	CommentOnPR *bool
}

// Load assembles and validates the configuration, reading the repo
// config from the current working directory.
func Load(flags Overrides) (*Config, error) {
	return load(flags, ".")
}

func load(flags Overrides, repoDir string) (*Config, error) {
	repoCfg, err := loadRepoConfig(repoDir)
	if err != nil {
		return nil, err
	}

	ghCtx := gh.ContextFromEnv()

	cfg := &Config{
		APIKey:      os.Getenv("PRODSENSOR_API_KEY"),
		APIURL:      firstNonEmpty(flags.APIURL, os.Getenv("PRODSENSOR_API_URL"), repoCfg.CI.APIURL, api.DefaultBaseURL),
		RepoURL:     firstNonEmpty(flags.RepoURL, os.Getenv("INPUT_REPO_URL"), ghCtx.RepoURL()),
		Ref:         firstNonEmpty(flags.Ref, os.Getenv("INPUT_REF")),
		CommentOnPR: true,
		Timeout:     DefaultTimeout,
		GitHub:      ghCtx,
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	failOn := firstNonEmpty(flags.FailOn, os.Getenv("INPUT_FAIL_ON"), repoCfg.CI.FailOn, string(classify.FailOnNotReady))
	cfg.FailOn, err = classify.ParsePolicy(failOn)
	if err != nil {
		return nil, err
	}

	if repoCfg.CI.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(repoCfg.CI.TimeoutSeconds) * time.Second
	}
	if raw := os.Getenv("INPUT_TIMEOUT"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid timeout %q (want positive seconds)", raw)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}
	if flags.TimeoutSecs > 0 {
		cfg.Timeout = time.Duration(flags.TimeoutSecs) * time.Second
	}

	if repoCfg.CI.CommentOnPR != nil {
		cfg.CommentOnPR = *repoCfg.CI.CommentOnPR
	}
	if raw := os.Getenv("INPUT_COMMENT_ON_PR"); raw != "" {
		cfg.CommentOnPR = strings.EqualFold(raw, "true")
	}
	if flags.CommentOnPR != nil {
		cfg.CommentOnPR = *flags.CommentOnPR
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.RepoURL == "" {
		return fmt.Errorf("could not determine repository URL " +
			"(set INPUT_REPO_URL or run under GitHub Actions)")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
