// Package api is the client for the ProdSensor analysis service:
// run submission, status polling, and report retrieval over the
// versioned /v1 HTTP contract.
package api

import "strings"

// RunStatus is the service-reported state of an analysis run.
// Transitions are monotonic: once a run reports StatusComplete or
// StatusFailed it never changes again.
type RunStatus string

const (
	StatusQueued   RunStatus = "QUEUED"
	StatusRunning  RunStatus = "RUNNING"
	StatusComplete RunStatus = "COMPLETE"
	StatusFailed   RunStatus = "FAILED"
)

// ParseRunStatus normalizes a wire status string. The service owns the
// schema, so unknown values are passed through for the caller to treat
// as in-progress (forward compatibility with new statuses).
func ParseRunStatus(s string) RunStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "QUEUED", "PENDING":
		return StatusQueued
	case "RUNNING":
		return StatusRunning
	case "COMPLETE", "COMPLETED":
		return StatusComplete
	case "FAILED":
		return StatusFailed
	}
	return RunStatus(s)
}

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Verdict is the service's final readiness judgment for a run.
type Verdict string

const (
	VerdictProductionReady    Verdict = "PRODUCTION_READY"
	VerdictNotProductionReady Verdict = "NOT_PRODUCTION_READY"
	VerdictConditionallyReady Verdict = "CONDITIONALLY_READY"
)

// Severity ranks a finding. Values match the service wire format.
type Severity string

const (
	SeverityBlocker Severity = "Blocker"
	SeverityMajor   Severity = "Major"
	SeverityMinor   Severity = "Minor"
	SeverityInfo    Severity = "Info"
)

// AnalysisRequest describes one repository submission. Immutable once
// submitted; RequestID is a client-generated idempotency token.
type AnalysisRequest struct {
	RepoURL     string `json:"repo_url"`
	Ref         string `json:"ref,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// RunHandle identifies a submitted run for the rest of the process
// lifetime. Never mutated after SubmitAnalysis returns it.
type RunHandle struct {
	ID        string
	ReportURL string
}

// Finding is a single issue reported by the analysis. Findings arrive
// ordered by service-reported priority and that order is preserved.
type Finding struct {
	Severity    Severity `json:"severity"`
	Dimension   string   `json:"dimension"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
}

// DimensionScore is a per-dimension 0-100 score.
type DimensionScore struct {
	Name  string
	Score int
}

// Report is the full result of a completed run. Constructed once and
// treated as immutable by consumers.
type Report struct {
	RunID      string
	Verdict    Verdict
	Score      int
	Findings   []Finding
	Dimensions []DimensionScore
	ReportURL  string
}

// CountBySeverity returns the number of findings with the given severity.
func (r *Report) CountBySeverity(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// HasBlockers reports whether any finding is severity Blocker.
func (r *Report) HasBlockers() bool {
	return r.CountBySeverity(SeverityBlocker) > 0
}
