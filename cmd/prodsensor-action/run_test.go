package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prodsensor/action/internal/classify"
	"github.com/prodsensor/action/internal/config"
)

// requireExitCode asserts err is an *exitError with the expected code.
func requireExitCode(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected exit code %d, got nil error", code)
	}
	exitErr, ok := err.(*exitError)
	if !ok {
		t.Fatalf("expected *exitError with code %d, got %T: %v", code, err, err)
	}
	if exitErr.code != code {
		t.Errorf("expected exit code %d, got: %d", code, exitErr.code)
	}
}

// prodSensorMock scripts the analysis API for one run.
type prodSensorMock struct {
	submitStatus int    // non-zero forces an HTTP error on submit
	statuses     []string // sequential; last repeats
	report       string // raw report JSON

	submitCalls int
	statusCalls int
	reportCalls int
}

func (m *prodSensorMock) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/analyze/repo", func(w http.ResponseWriter, r *http.Request) {
		m.submitCalls++
		if m.submitStatus != 0 {
			w.WriteHeader(m.submitStatus)
			fmt.Fprint(w, `{"detail":"Invalid API key"}`)
			return
		}
		fmt.Fprint(w, `{"run_id":"run-e2e"}`)
	})
	mux.HandleFunc("/v1/runs/run-e2e", func(w http.ResponseWriter, r *http.Request) {
		i := m.statusCalls
		if i >= len(m.statuses) {
			i = len(m.statuses) - 1
		}
		m.statusCalls++
		json.NewEncoder(w).Encode(map[string]string{"status": m.statuses[i]})
	})
	mux.HandleFunc("/v1/runs/run-e2e/report.json", func(w http.ResponseWriter, r *http.Request) {
		m.reportCalls++
		fmt.Fprint(w, m.report)
	})
	return mux
}

// githubMock records comment traffic for PR 5 of acme/svc.
type githubMock struct {
	failAll     bool
	comments    []map[string]any
	createCalls int
	updateCalls int
}

func (m *githubMock) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/svc/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		if m.failAll {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(m.comments)
		case http.MethodPost:
			m.createCalls++
			var payload map[string]any
			json.NewDecoder(r.Body).Decode(&payload)
			payload["id"] = len(m.comments) + 1
			m.comments = append(m.comments, payload)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(payload)
		}
	})
	mux.HandleFunc("/repos/acme/svc/issues/comments/", func(w http.ResponseWriter, r *http.Request) {
		if m.failAll {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		m.updateCalls++
		json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})
	return mux
}

// actionEnv wires a full fake environment: analysis API, GitHub API,
// PR event context, and an outputs file.
type actionEnv struct {
	ps         *prodSensorMock
	github     *githubMock
	outputPath string
}

func newActionEnv(t *testing.T, ps *prodSensorMock, github *githubMock) *actionEnv {
	t.Helper()

	// Hermetic env: drop anything inherited from the host.
	for _, key := range []string{
		"PRODSENSOR_API_KEY", "PRODSENSOR_API_URL",
		"INPUT_REPO_URL", "INPUT_REF", "INPUT_FAIL_ON",
		"INPUT_COMMENT_ON_PR", "INPUT_TIMEOUT",
		"GITHUB_REPOSITORY", "GITHUB_EVENT_NAME", "GITHUB_EVENT_PATH",
		"GITHUB_REF", "GITHUB_TOKEN", "GITHUB_API_URL",
		"GITHUB_SERVER_URL", "GITHUB_ACTIONS", "GITHUB_OUTPUT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	psSrv := httptest.NewServer(ps.handler())
	t.Cleanup(psSrv.Close)
	ghSrv := httptest.NewServer(github.handler())
	t.Cleanup(ghSrv.Close)

	eventPath := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(eventPath, []byte(`{"pull_request":{"number":5}}`), 0644); err != nil {
		t.Fatalf("write event file: %v", err)
	}
	outputPath := filepath.Join(t.TempDir(), "output")

	t.Setenv("PRODSENSOR_API_KEY", "test-key")
	t.Setenv("PRODSENSOR_API_URL", psSrv.URL)
	t.Setenv("GITHUB_REPOSITORY", "acme/svc")
	t.Setenv("GITHUB_EVENT_NAME", "pull_request")
	t.Setenv("GITHUB_EVENT_PATH", eventPath)
	t.Setenv("GITHUB_TOKEN", "gh-token")
	t.Setenv("GITHUB_API_URL", ghSrv.URL)
	t.Setenv("GITHUB_OUTPUT", outputPath)

	return &actionEnv{ps: ps, github: github, outputPath: outputPath}
}

func (e *actionEnv) outputs(t *testing.T) map[string]string {
	t.Helper()
	data, err := os.ReadFile(e.outputPath)
	if os.IsNotExist(err) {
		return map[string]string{}
	}
	if err != nil {
		t.Fatalf("read outputs: %v", err)
	}
	out := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if name, value, ok := strings.Cut(line, "="); ok {
			out[name] = value
		}
	}
	return out
}

func runActionTest(t *testing.T) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := runAction(context.Background(), &buf, config.Overrides{})
	return buf.String(), err
}

const readyReport = `{
	"verdict": "PRODUCTION_READY",
	"score": 92,
	"findings": [],
	"dimensions": {"reliability": {"score": 90}}
}`

const conditionalBlockerReport = `{
	"verdict": "CONDITIONALLY_READY",
	"score": 61,
	"findings": [
		{"severity": "Blocker", "dimension": "reliability", "title": "No health checks", "description": "d"},
		{"severity": "Major", "dimension": "observability", "title": "No metrics", "description": "d"}
	],
	"dimensions": {"reliability": {"score": 40}}
}`

func TestRunAuthFailureSkipsPollingAndComment(t *testing.T) {
	ps := &prodSensorMock{submitStatus: http.StatusUnauthorized}
	github := &githubMock{}
	env := newActionEnv(t, ps, github)

	out, err := runActionTest(t)
	requireExitCode(t, err, classify.ExitAuthError)

	if ps.statusCalls != 0 {
		t.Errorf("status calls = %d, want 0 after auth failure", ps.statusCalls)
	}
	if github.createCalls != 0 || github.updateCalls != 0 {
		t.Error("no comment may be published after auth failure")
	}
	if len(env.outputs(t)) != 0 {
		t.Errorf("no outputs expected, got %v", env.outputs(t))
	}
	if !strings.Contains(out, "Invalid API key") {
		t.Errorf("expected the service auth message in output:\n%s", out)
	}
}

func TestRunMissingAPIKeyIsAuthExit(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: readyReport}
	env := newActionEnv(t, ps, &githubMock{})
	_ = env
	os.Unsetenv("PRODSENSOR_API_KEY")

	_, err := runActionTest(t)
	requireExitCode(t, err, classify.ExitAuthError)
	if ps.submitCalls != 0 {
		t.Error("nothing should be submitted without an API key")
	}
}

func TestRunSuccessPublishesOutputsAndComment(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: readyReport}
	github := &githubMock{}
	env := newActionEnv(t, ps, github)

	out, err := runActionTest(t)
	if err != nil {
		t.Fatalf("expected success, got %v\n%s", err, out)
	}

	outputs := env.outputs(t)
	want := map[string]string{
		"run-id":        "run-e2e",
		"verdict":       "PRODUCTION_READY",
		"score":         "92",
		"blocker-count": "0",
		"major-count":   "0",
	}
	for name, value := range want {
		if outputs[name] != value {
			t.Errorf("output %s = %q, want %q", name, outputs[name], value)
		}
	}
	if !strings.Contains(outputs["report-url"], "/v1/runs/run-e2e/report.json") {
		t.Errorf("report-url = %q", outputs["report-url"])
	}

	if github.createCalls != 1 {
		t.Errorf("comment creates = %d, want 1", github.createCalls)
	}
	body, _ := github.comments[0]["body"].(string)
	if !strings.Contains(body, "<!-- prodsensor-analysis -->") {
		t.Error("published comment missing the marker")
	}
	if !strings.Contains(body, "PRODUCTION READY") {
		t.Error("published comment missing the verdict")
	}

	if !strings.Contains(out, "VERDICT: PRODUCTION_READY") {
		t.Errorf("console summary missing verdict:\n%s", out)
	}
}

func TestRunConditionallyReadyWithBlockersPolicy(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: conditionalBlockerReport}
	github := &githubMock{}
	env := newActionEnv(t, ps, github)
	t.Setenv("INPUT_FAIL_ON", "blockers")

	_, err := runActionTest(t)
	requireExitCode(t, err, classify.ExitConditionallyReady)

	outputs := env.outputs(t)
	if outputs["blocker-count"] != "1" {
		t.Errorf("blocker-count = %q, want 1", outputs["blocker-count"])
	}
	if outputs["major-count"] != "1" {
		t.Errorf("major-count = %q, want 1", outputs["major-count"])
	}
	if github.createCalls != 1 {
		t.Error("comment should still be published on a failing verdict")
	}
}

func TestRunNotReadyWithNeverPolicy(t *testing.T) {
	report := strings.Replace(conditionalBlockerReport, "CONDITIONALLY_READY", "NOT_PRODUCTION_READY", 1)
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: report}
	env := newActionEnv(t, ps, &githubMock{})
	t.Setenv("INPUT_FAIL_ON", "never")

	_, err := runActionTest(t)
	if err != nil {
		t.Fatalf("fail-on=never must exit 0 regardless of verdict, got %v", err)
	}
	if env.outputs(t)["verdict"] != "NOT_PRODUCTION_READY" {
		t.Errorf("verdict output = %q", env.outputs(t)["verdict"])
	}
}

func TestRunTimeoutPublishesNoComment(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"RUNNING"}}
	github := &githubMock{}
	env := newActionEnv(t, ps, github)
	t.Setenv("INPUT_TIMEOUT", "1")

	_, err := runActionTest(t)
	requireExitCode(t, err, classify.ExitTimeout)

	if github.createCalls != 0 || github.updateCalls != 0 {
		t.Error("no comment may be published after a timeout")
	}
	outputs := env.outputs(t)
	if outputs["run-id"] != "run-e2e" {
		t.Errorf("run-id output = %q (set before polling)", outputs["run-id"])
	}
	if _, ok := outputs["verdict"]; ok {
		t.Error("verdict output must not be set on timeout")
	}
}

func TestRunServiceFailureIsAPIError(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"FAILED"}}
	newActionEnv(t, ps, &githubMock{})

	out, err := runActionTest(t)
	requireExitCode(t, err, classify.ExitAPIError)
	if !strings.Contains(out, "failed") {
		t.Errorf("expected failure cause in output:\n%s", out)
	}
}

func TestRunCommentDisabled(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: readyReport}
	github := &githubMock{}
	newActionEnv(t, ps, github)
	t.Setenv("INPUT_COMMENT_ON_PR", "false")

	_, err := runActionTest(t)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if github.createCalls != 0 {
		t.Error("comment publishing should be skipped when disabled")
	}
}

func TestRunNotAPRContextSkipsComment(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: readyReport}
	github := &githubMock{}
	newActionEnv(t, ps, github)
	t.Setenv("GITHUB_EVENT_NAME", "push")

	_, err := runActionTest(t)
	if err != nil {
		t.Fatalf("expected success outside PR context, got %v", err)
	}
	if github.createCalls != 0 {
		t.Error("no comment expected outside a PR context")
	}
}

func TestRunCommentFailureDoesNotChangeExitCode(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: readyReport}
	github := &githubMock{failAll: true}
	newActionEnv(t, ps, github)

	out, err := runActionTest(t)
	if err != nil {
		t.Fatalf("comment failure must not fail the run, got %v", err)
	}
	if !strings.Contains(out, "Failed to post PR comment") {
		t.Errorf("expected a warning about the comment failure:\n%s", out)
	}
}

func TestRunUpdatesExistingComment(t *testing.T) {
	ps := &prodSensorMock{statuses: []string{"COMPLETE"}, report: readyReport}
	github := &githubMock{
		comments: []map[string]any{
			{"id": 1, "body": "<!-- prodsensor-analysis -->\nold result"},
		},
	}
	newActionEnv(t, ps, github)

	_, err := runActionTest(t)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if github.createCalls != 0 || github.updateCalls != 1 {
		t.Errorf("create=%d update=%d, want 0/1 (idempotent rerun)",
			github.createCalls, github.updateCalls)
	}
}
