// Package workflow generates a ready-to-commit GitHub Actions
// workflow that runs the ProdSensor analysis on pull requests.
package workflow

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"github.com/prodsensor/action/internal/classify"
)

// safeVersionRE validates release version pins embedded in the
// generated shell (prevent injection).
var safeVersionRE = regexp.MustCompile(
	`^[0-9]+\.[0-9]+\.[0-9]+(-[A-Za-z0-9.]+)?$`)

// Config holds the parameters for generating a workflow.
type Config struct {
	// FailOn is the failure policy baked into the workflow
	// invocation: not-ready, blockers, or never.
	FailOn string

	// TimeoutSeconds overrides the analysis timeout. Zero means
	// the action default.
	TimeoutSeconds int

	// Comment controls whether the workflow posts a PR comment.
	Comment bool

	// Version is the prodsensor-action release to install. Empty
	// means "latest".
	Version string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		FailOn:  string(classify.FailOnNotReady),
		Comment: true,
	}
}

// Validate checks all config fields against allowlists and safe
// patterns. Returns an error describing the first invalid field.
func (c *Config) Validate() error {
	if _, err := classify.ParsePolicy(c.FailOn); err != nil {
		return err
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must not be negative, got %d", c.TimeoutSeconds)
	}
	if c.Version != "" && !safeVersionRE.MatchString(c.Version) {
		return fmt.Errorf(
			"invalid version %q (expected semver like 1.2.0)", c.Version)
	}
	return nil
}

// Generate produces the workflow YAML string from the given config.
func Generate(cfg Config) (string, error) {
	if cfg.FailOn == "" {
		cfg.FailOn = string(classify.FailOnNotReady)
	}

	if err := cfg.Validate(); err != nil {
		return "", fmt.Errorf("invalid config: %w", err)
	}

	tmpl, err := template.New("workflow").Parse(workflowTemplate)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, cfg); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// WriteWorkflow generates the workflow and writes it to the given
// path. Creates parent directories as needed. Returns an error if the
// file already exists and force is false.
func WriteWorkflow(cfg Config, outputPath string, force bool) error {
	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf(
				"workflow file already exists: %s (use --force to overwrite)",
				outputPath)
		}
	}

	content, err := Generate(cfg)
	if err != nil {
		return err
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	return nil
}

// Pinned SHA for actions/checkout v6.0.2 for supply-chain hardening.
var workflowTemplate = `# ProdSensor production readiness check
# Generated by: prodsensor-action init
#
# Required setup:
#   - Add a repository secret named "PRODSENSOR_API_KEY" with your ProdSensor API key

name: prodsensor

on:
  pull_request:
    types: [opened, synchronize, reopened]

permissions:
  contents: read
  pull-requests: write

jobs:
  analyze:
    runs-on: ubuntu-latest
    steps:
      - name: Checkout
        uses: actions/checkout@de0fac2e4500dabe0009e67214ff5f5447ce83dd  # v6.0.2

      - name: Install prodsensor-action
        run: |
          set -euo pipefail
          {{- if .Version }}
          PS_VERSION="{{ .Version }}"
          {{- else }}
          PS_VERSION=$(curl -sfL https://api.github.com/repos/prodsensor/action/releases/latest | grep '"tag_name"' | sed -E 's/.*"v?([^"]+)".*/\1/')
          {{- end }}
          ARCHIVE="prodsensor-action_${PS_VERSION}_linux_amd64.tar.gz"
          curl -sfLO "https://github.com/prodsensor/action/releases/download/v${PS_VERSION}/${ARCHIVE}"
          curl -sfLO "https://github.com/prodsensor/action/releases/download/v${PS_VERSION}/checksums.txt"
          grep -F "  ${ARCHIVE}" checksums.txt > verify.txt
          sha256sum --check verify.txt
          mkdir -p "$HOME/.local/bin"
          tar xzf "${ARCHIVE}" -C "$HOME/.local/bin" prodsensor-action
          echo "$HOME/.local/bin" >> "$GITHUB_PATH"
          rm -f "${ARCHIVE}" checksums.txt verify.txt
          "$HOME/.local/bin/prodsensor-action" version

      - name: Run analysis
        env:
          PRODSENSOR_API_KEY: ${{"{{"}} secrets.PRODSENSOR_API_KEY {{"}}"}}
          GITHUB_TOKEN: ${{"{{"}} secrets.GITHUB_TOKEN {{"}}"}}
        run: |
          set -euo pipefail
          prodsensor-action run \
            --fail-on "{{ .FailOn }}" \
            {{- if .TimeoutSeconds }}
            --timeout {{ .TimeoutSeconds }} \
            {{- end }}
            --comment={{ .Comment }}
`
