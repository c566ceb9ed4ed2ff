// Package gh is the GitHub-side boundary: Actions environment
// context, workflow outputs and logging, and idempotent PR comment
// publishing over the REST API.
package gh

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Context captures the GitHub Actions environment the action runs in.
// All fields come from the standard GITHUB_* variables; zero values
// mean "not running under Actions" and are legal.
type Context struct {
	Repository string // "owner/name"
	EventName  string
	EventPath  string
	Ref        string
	Token      string
	APIBaseURL string
	ServerURL  string
}

// ContextFromEnv reads the GitHub context from the environment.
func ContextFromEnv() Context {
	apiBase := os.Getenv("GITHUB_API_URL")
	if apiBase == "" {
		apiBase = "https://api.github.com"
	}
	serverURL := os.Getenv("GITHUB_SERVER_URL")
	if serverURL == "" {
		serverURL = "https://github.com"
	}
	return Context{
		Repository: os.Getenv("GITHUB_REPOSITORY"),
		EventName:  os.Getenv("GITHUB_EVENT_NAME"),
		EventPath:  os.Getenv("GITHUB_EVENT_PATH"),
		Ref:        os.Getenv("GITHUB_REF"),
		Token:      os.Getenv("GITHUB_TOKEN"),
		APIBaseURL: strings.TrimRight(apiBase, "/"),
		ServerURL:  strings.TrimRight(serverURL, "/"),
	}
}

// RepoURL derives the clone URL of the current repository, or ""
// when no repository context exists.
func (c Context) RepoURL() string {
	if c.Repository == "" {
		return ""
	}
	return c.ServerURL + "/" + c.Repository
}

// prEvent holds the pull_request fields from an Actions event payload.
type prEvent struct {
	PullRequest struct {
		Number int `json:"number"`
	} `json:"pull_request"`
}

// PRNumber detects the pull request number for this workflow run.
// It prefers the event payload (pull_request / pull_request_target
// events), then falls back to GITHUB_REF of the form
// refs/pull/N/merge. Returns an error when no PR context exists,
// which callers treat as "skip commenting", not a failure.
func (c Context) PRNumber() (int, error) {
	if c.EventPath != "" {
		switch c.EventName {
		case "pull_request", "pull_request_target":
			data, err := os.ReadFile(c.EventPath)
			if err != nil {
				return 0, fmt.Errorf("read event file: %w", err)
			}
			var event prEvent
			if err := json.Unmarshal(data, &event); err != nil {
				return 0, fmt.Errorf("parse event JSON: %w", err)
			}
			if event.PullRequest.Number > 0 {
				return event.PullRequest.Number, nil
			}
		}
	}

	if strings.HasPrefix(c.Ref, "refs/pull/") {
		parts := strings.Split(c.Ref, "/")
		if len(parts) >= 3 {
			if n, err := strconv.Atoi(parts[2]); err == nil && n > 0 {
				return n, nil
			}
		}
	}

	return 0, fmt.Errorf("not a pull request context")
}
