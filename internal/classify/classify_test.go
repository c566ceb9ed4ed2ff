package classify

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prodsensor/action/internal/api"
)

func TestClassifyTable(t *testing.T) {
	cases := []struct {
		verdict     api.Verdict
		policy      FailurePolicy
		hasBlockers bool
		want        int
	}{
		// not-ready: verdict decides, blockers irrelevant
		{api.VerdictProductionReady, FailOnNotReady, false, ExitProductionReady},
		{api.VerdictProductionReady, FailOnNotReady, true, ExitProductionReady},
		{api.VerdictConditionallyReady, FailOnNotReady, false, ExitConditionallyReady},
		{api.VerdictConditionallyReady, FailOnNotReady, true, ExitConditionallyReady},
		{api.VerdictNotProductionReady, FailOnNotReady, false, ExitNotProductionReady},
		{api.VerdictNotProductionReady, FailOnNotReady, true, ExitNotProductionReady},

		// blockers: only blocker presence fails the build
		{api.VerdictProductionReady, FailOnBlockers, false, ExitProductionReady},
		{api.VerdictProductionReady, FailOnBlockers, true, ExitProductionReady},
		{api.VerdictConditionallyReady, FailOnBlockers, false, ExitProductionReady},
		{api.VerdictConditionallyReady, FailOnBlockers, true, ExitConditionallyReady},
		{api.VerdictNotProductionReady, FailOnBlockers, false, ExitProductionReady},
		{api.VerdictNotProductionReady, FailOnBlockers, true, ExitNotProductionReady},

		// never: always pass
		{api.VerdictProductionReady, FailNever, true, ExitProductionReady},
		{api.VerdictConditionallyReady, FailNever, true, ExitProductionReady},
		{api.VerdictNotProductionReady, FailNever, true, ExitProductionReady},
	}

	for _, tc := range cases {
		name := fmt.Sprintf("%s/%s/blockers=%v", tc.verdict, tc.policy, tc.hasBlockers)
		t.Run(name, func(t *testing.T) {
			got := Classify(tc.verdict, tc.policy, tc.hasBlockers)
			if got != tc.want {
				t.Errorf("Classify(%s, %s, %v) = %d, want %d",
					tc.verdict, tc.policy, tc.hasBlockers, got, tc.want)
			}
		})
	}
}

func TestClassifyUnknownVerdictFailsClosed(t *testing.T) {
	if got := Classify(api.Verdict("SOMETHING_NEW"), FailOnNotReady, false); got != ExitNotProductionReady {
		t.Errorf("unknown verdict under not-ready = %d, want %d", got, ExitNotProductionReady)
	}
	if got := Classify(api.Verdict("SOMETHING_NEW"), FailNever, true); got != ExitProductionReady {
		t.Errorf("unknown verdict under never = %d, want %d", got, ExitProductionReady)
	}
}

func TestClassifyReport(t *testing.T) {
	report := &api.Report{
		Verdict: api.VerdictConditionallyReady,
		Findings: []api.Finding{
			{Severity: api.SeverityBlocker, Title: "no health checks"},
		},
	}
	if got := ClassifyReport(report, FailOnBlockers); got != ExitConditionallyReady {
		t.Errorf("ClassifyReport = %d, want %d", got, ExitConditionallyReady)
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"auth", &api.AuthError{Status: 401}, ExitAuthError},
		{"wrapped auth", fmt.Errorf("submit: %w", &api.AuthError{Status: 403}), ExitAuthError},
		{"timeout", &api.TimeoutError{RunID: "r1", After: 10 * time.Minute}, ExitTimeout},
		{"network", &api.NetworkError{Op: "GET /v1/runs/r1", Err: errors.New("connection refused")}, ExitAPIError},
		{"service", &api.ServiceError{RunID: "r1", Reason: "clone failed"}, ExitAPIError},
		{"validation", &api.ValidationError{Status: 422, Message: "bad repo"}, ExitAPIError},
		{"plain", errors.New("boom"), ExitAPIError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyError(tc.err); got != tc.want {
				t.Errorf("ClassifyError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	cases := []struct {
		in      string
		want    FailurePolicy
		wantErr bool
	}{
		{"not-ready", FailOnNotReady, false},
		{"blockers", FailOnBlockers, false},
		{"never", FailNever, false},
		{"NEVER", FailNever, false},
		{"  blockers ", FailOnBlockers, false},
		{"always", "", true},
		{"", "", true},
	}

	for _, tc := range cases {
		got, err := ParsePolicy(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParsePolicy(%q) expected error, got %q", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePolicy(%q) unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParsePolicy(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
