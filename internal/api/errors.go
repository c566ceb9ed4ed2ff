package api

import (
	"fmt"
	"time"
)

// AuthError indicates rejected credentials (HTTP 401/403). Fatal
// immediately; maps to the authentication exit code.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("authentication failed (%d)", e.Status)
}

// ValidationError indicates a malformed request or an unexpected
// response shape: non-auth 4xx with the service message, or a payload
// missing required fields.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("API rejected request (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("unexpected API response: %s", e.Message)
}

// NetworkError wraps transport failures (DNS, connection refused, TLS)
// and 5xx/429 responses. Transient during polling; fatal elsewhere.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError means the service explicitly reported the run as FAILED.
type ServiceError struct {
	RunID  string
	Reason string
}

func (e *ServiceError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unknown error"
	}
	return fmt.Sprintf("analysis run %s failed: %s", e.RunID, reason)
}

// TimeoutError means the run did not reach a terminal state before the
// configured deadline.
type TimeoutError struct {
	RunID string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("analysis timed out after %s (run %s)", e.After, e.RunID)
}
