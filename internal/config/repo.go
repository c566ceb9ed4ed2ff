package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RepoConfig holds per-repo defaults from .prodsensor.toml. All
// fields are optional; environment inputs and flags override them.
type RepoConfig struct {
	CI CISection `toml:"ci"`
}

// CISection is the [ci] table of the repo config.
type CISection struct {
	FailOn         string `toml:"fail_on"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CommentOnPR    *bool  `toml:"comment_on_pr"`
	APIURL         string `toml:"api_url"`
}

// loadRepoConfig reads .prodsensor.toml from dir. A missing file is
// not an error; a malformed one is, so typos fail fast instead of
// silently falling back to defaults.
func loadRepoConfig(dir string) (RepoConfig, error) {
	var cfg RepoConfig

	path := filepath.Join(dir, RepoConfigName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", RepoConfigName, err)
	}
	return cfg, nil
}
