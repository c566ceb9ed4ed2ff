// Package classify maps a terminal run result and the configured
// failure policy to a CI exit code.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prodsensor/action/internal/api"
)

// Exit codes published as part of the action's contract.
const (
	ExitProductionReady    = 0
	ExitNotProductionReady = 1
	ExitConditionallyReady = 2
	ExitAPIError           = 3
	ExitAuthError          = 4
	ExitTimeout            = 5
)

// FailurePolicy is the CI-configured rule converting a verdict and
// findings into pass/fail.
type FailurePolicy string

const (
	// FailOnNotReady fails on any verdict short of production ready.
	FailOnNotReady FailurePolicy = "not-ready"
	// FailOnBlockers fails only when a Blocker finding is present.
	FailOnBlockers FailurePolicy = "blockers"
	// FailNever always exits 0 on a completed run.
	FailNever FailurePolicy = "never"
)

// ParsePolicy validates a fail-on input value.
func ParsePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FailOnNotReady:
		return FailOnNotReady, nil
	case FailOnBlockers:
		return FailOnBlockers, nil
	case FailNever:
		return FailNever, nil
	}
	return "", fmt.Errorf("invalid fail-on value %q (valid: not-ready, blockers, never)", s)
}

// Classify is a pure function of (verdict, policy, blocker presence)
// returning the exit code for a completed run.
//
//	verdict              not-ready  blockers           never
//	ProductionReady      0          0                  0
//	ConditionallyReady   2          2 if blockers      0
//	NotProductionReady   1          1 if blockers      0
func Classify(verdict api.Verdict, policy FailurePolicy, hasBlockers bool) int {
	if policy == FailNever {
		return ExitProductionReady
	}

	switch verdict {
	case api.VerdictProductionReady:
		return ExitProductionReady

	case api.VerdictConditionallyReady:
		if policy == FailOnBlockers && !hasBlockers {
			return ExitProductionReady
		}
		return ExitConditionallyReady

	default:
		// NOT_PRODUCTION_READY, plus any verdict the client doesn't
		// recognize: fail closed.
		if policy == FailOnBlockers && !hasBlockers {
			return ExitProductionReady
		}
		return ExitNotProductionReady
	}
}

// ClassifyReport applies Classify to a full report.
func ClassifyReport(r *api.Report, policy FailurePolicy) int {
	return Classify(r.Verdict, policy, r.HasBlockers())
}

// ClassifyError maps an infrastructure failure to its exit code.
// These take precedence over the verdict table because no verdict
// exists when the run never produced a report.
func ClassifyError(err error) int {
	var (
		authErr    *api.AuthError
		timeoutErr *api.TimeoutError
	)
	switch {
	case errors.As(err, &authErr):
		return ExitAuthError
	case errors.As(err, &timeoutErr):
		return ExitTimeout
	default:
		// NetworkError, ServiceError, ValidationError, and anything
		// unexpected all land in the API error bucket.
		return ExitAPIError
	}
}
