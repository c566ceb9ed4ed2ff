// Package poll waits for an analysis run to reach a terminal state,
// with a bounded overall deadline and tolerance for transient network
// failures mid-poll.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prodsensor/action/internal/api"
)

// Defaults for the polling loop. Job duration is bounded (minutes),
// so the interval stays small with a low cap instead of growing
// unbounded exponentially.
const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxInterval = 15 * time.Second

	// DefaultTransientRetries is how many consecutive transient
	// network failures are tolerated before the poll aborts. One
	// transport hiccup in a minutes-long poll must not fail an
	// otherwise-healthy run.
	DefaultTransientRetries = 3

	// maxUnknownStatuses bounds consecutive unrecognized statuses
	// before giving up (the service may add statuses the client
	// doesn't know yet).
	maxUnknownStatuses = 10
)

// StatusClient is the subset of the API client the poller needs.
type StatusClient interface {
	GetStatus(ctx context.Context, runID string) (api.RunStatus, string, error)
	GetReport(ctx context.Context, runID string) (*api.Report, error)
}

// Poller polls run status until terminal state or deadline. Now and
// Sleep are injectable so tests can simulate time passage without
// real delays.
type Poller struct {
	Client           StatusClient
	Interval         time.Duration
	MaxInterval      time.Duration
	TransientRetries int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	// Logf receives progress lines (elapsed time, retry notices).
	// Nil means silent.
	Logf func(format string, args ...any)
}

// New returns a Poller with default intervals and retry bounds.
func New(client StatusClient) *Poller {
	return &Poller{
		Client:           client,
		Interval:         DefaultInterval,
		MaxInterval:      DefaultMaxInterval,
		TransientRetries: DefaultTransientRetries,
	}
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) logf(format string, args ...any) {
	if p.Logf != nil {
		p.Logf(format, args...)
	}
}

// Wait polls the run until it completes, fails, or the timeout
// elapses. On completion it fetches and returns the full report. A
// FAILED run returns *api.ServiceError; an expired deadline returns
// *api.TimeoutError. Cancellation via ctx is observed at iteration
// boundaries and during sleeps.
func (p *Poller) Wait(ctx context.Context, handle api.RunHandle, timeout time.Duration) (*api.Report, error) {
	start := p.now()
	deadline := start.Add(timeout)

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	maxInterval := p.MaxInterval
	if maxInterval < interval {
		maxInterval = interval
	}

	transientFailures := 0
	unknownStatuses := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, reason, err := p.Client.GetStatus(ctx, handle.ID)
		if err != nil {
			var netErr *api.NetworkError
			if !errors.As(err, &netErr) {
				// Auth and validation failures are never transient.
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			transientFailures++
			if transientFailures > p.TransientRetries {
				return nil, fmt.Errorf("polling run %s: %w", handle.ID, err)
			}
			p.logf("transient poll failure (%d/%d), retrying: %v",
				transientFailures, p.TransientRetries, err)
			if err := p.sleep(ctx, interval); err != nil {
				return nil, err
			}
			continue
		}
		transientFailures = 0

		switch status {
		case api.StatusComplete:
			report, err := p.Client.GetReport(ctx, handle.ID)
			if err != nil {
				return nil, fmt.Errorf("run %s completed but report fetch failed: %w", handle.ID, err)
			}
			return report, nil

		case api.StatusFailed:
			return nil, &api.ServiceError{RunID: handle.ID, Reason: reason}

		case api.StatusQueued, api.StatusRunning:
			unknownStatuses = 0
			elapsed := p.now().Sub(start)
			p.logf("Status: %s (%dm %ds elapsed)",
				status, int(elapsed.Minutes()), int(elapsed.Seconds())%60)

		default:
			// Unknown status: treat as in-progress for forward
			// compatibility, but not forever.
			unknownStatuses++
			if unknownStatuses >= maxUnknownStatuses {
				return nil, &api.ValidationError{
					Message: fmt.Sprintf("run %s reported unknown status %q %d times",
						handle.ID, status, unknownStatuses),
				}
			}
			p.logf("unknown status %q, continuing to poll", status)
		}

		if !p.now().Before(deadline) {
			return nil, &api.TimeoutError{RunID: handle.ID, After: timeout}
		}

		// Never oversleep past the deadline.
		d := interval
		if remaining := deadline.Sub(p.now()); remaining < d {
			d = remaining
		}
		if err := p.sleep(ctx, d); err != nil {
			return nil, err
		}

		// Mild growth with a small cap; responsiveness matters more
		// than backoff thrift for minutes-long jobs.
		if interval < maxInterval {
			interval = min(interval*3/2, maxInterval)
		}
	}
}
