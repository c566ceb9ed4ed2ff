package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// DefaultBaseURL is the production ProdSensor endpoint.
const DefaultBaseURL = "https://ps-production-5531.up.railway.app"

// requestTimeout bounds a single HTTP request. The overall run
// deadline is enforced by the poller, not here.
const requestTimeout = 30 * time.Second

// Client is a thin authenticated wrapper around the ProdSensor HTTP
// API. It performs no retries of its own; transient-failure policy
// lives in the poller.
type Client struct {
	baseURL   string
	apiKey    string
	userAgent string
	http      *http.Client
}

// NewClient builds a Client for the given endpoint. A trailing slash
// on baseURL is tolerated and stripped.
func NewClient(baseURL, apiKey, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		userAgent: userAgent,
		http:      &http.Client{Timeout: requestTimeout},
	}
}

// BaseURL returns the normalized endpoint the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases pooled connections. Safe to call on every exit path.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

// ReportURL returns the canonical URL of a run's full report.
func (c *Client) ReportURL(runID string) string {
	return fmt.Sprintf("%s/v1/runs/%s/report.json", c.baseURL, runID)
}

// SubmitAnalysis starts an analysis run and returns its handle.
func (c *Client) SubmitAnalysis(ctx context.Context, req AnalysisRequest) (RunHandle, error) {
	var resp struct {
		RunID string `json:"run_id"`
		ID    string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/analyze/repo", req, &resp); err != nil {
		return RunHandle{}, err
	}

	// Older API versions return "id" instead of "run_id".
	id := resp.RunID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return RunHandle{}, &ValidationError{Message: "submit response missing run id"}
	}

	return RunHandle{ID: id, ReportURL: c.ReportURL(id)}, nil
}

// GetStatus fetches the current status of a run. The second return
// value carries the upstream failure reason when status is FAILED.
func (c *Client) GetStatus(ctx context.Context, runID string) (RunStatus, string, error) {
	var resp struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+runID, nil, &resp); err != nil {
		return "", "", err
	}
	if resp.Status == "" {
		return "", "", &ValidationError{Message: "status response missing status field"}
	}
	return ParseRunStatus(resp.Status), resp.Error, nil
}

// reportPayload is the wire shape of /v1/runs/{id}/report.json.
// Unknown fields are ignored; dimensions arrive as a map keyed by name.
type reportPayload struct {
	Verdict  string    `json:"verdict"`
	Score    *int      `json:"score"`
	Findings []Finding `json:"findings"`
	Dims     map[string]struct {
		Score int `json:"score"`
	} `json:"dimensions"`
}

// GetReport fetches and assembles the full report for a completed run.
func (c *Client) GetReport(ctx context.Context, runID string) (*Report, error) {
	var payload reportPayload
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+runID+"/report.json", nil, &payload); err != nil {
		return nil, err
	}

	if payload.Verdict == "" {
		return nil, &ValidationError{Message: "report missing verdict"}
	}
	if payload.Score == nil {
		return nil, &ValidationError{Message: "report missing score"}
	}

	report := &Report{
		RunID:     runID,
		Verdict:   Verdict(payload.Verdict),
		Score:     *payload.Score,
		Findings:  payload.Findings,
		ReportURL: c.ReportURL(runID),
	}

	// Map iteration order is random; sort by name so downstream
	// rendering is deterministic across invocations.
	for name, d := range payload.Dims {
		report.Dimensions = append(report.Dimensions, DimensionScore{Name: name, Score: d.Score})
	}
	sort.Slice(report.Dimensions, func(i, j int) bool {
		return report.Dimensions[i].Name < report.Dimensions[j].Name
	})

	return report, nil
}

// do performs one authenticated request and decodes the response into
// out. HTTP status classes map onto the error taxonomy: 401/403 →
// AuthError, other 4xx (except 429) → ValidationError, 429 and 5xx →
// NetworkError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail := errorDetail(resp.Body)
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return &AuthError{Status: resp.StatusCode, Message: detail}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &NetworkError{
				Op:  method + " " + path,
				Err: fmt.Errorf("server returned %d: %s", resp.StatusCode, detail),
			}
		default:
			return &ValidationError{Status: resp.StatusCode, Message: detail}
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ValidationError{Message: fmt.Sprintf("decode %s %s response: %v", method, path, err)}
	}
	return nil
}

// errorDetail extracts the service error message from an error body.
// The service sends {"detail": "..."}; anything else is returned raw.
func errorDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(data))
}
