package gh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// commentsPerPage is the GitHub API maximum page size for issue
// comment listing.
const commentsPerPage = 100

// CommentPublisher creates or updates a single PR comment,
// identified by a marker string embedded in the body. Reruns on the
// same PR update the existing comment instead of duplicating it.
type CommentPublisher struct {
	BaseURL string // e.g. https://api.github.com
	Token   string
	Repo    string // "owner/name"
	Marker  string

	// HTTPClient overrides the default client. Nil uses a 30s
	// timeout client.
	HTTPClient *http.Client
}

type issueComment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
}

// Publish posts body as the tool's comment on the given PR: if a
// comment containing the marker already exists it is updated in
// place, otherwise a new comment is created.
func (p *CommentPublisher) Publish(ctx context.Context, prNumber int, body string) error {
	if p.Token == "" {
		return fmt.Errorf("no GitHub token available")
	}
	if p.Repo == "" {
		return fmt.Errorf("no repository context")
	}

	existing, err := p.findMarked(ctx, prNumber)
	if err != nil {
		return err
	}

	if existing != 0 {
		return p.updateComment(ctx, existing, body)
	}
	return p.createComment(ctx, prNumber, body)
}

// findMarked scans the PR's comments for one containing the marker,
// returning its ID or 0 when none exists.
func (p *CommentPublisher) findMarked(ctx context.Context, prNumber int) (int64, error) {
	for page := 1; ; page++ {
		path := fmt.Sprintf("/repos/%s/issues/%d/comments?per_page=%d&page=%d",
			p.Repo, prNumber, commentsPerPage, page)

		var comments []issueComment
		if err := p.do(ctx, http.MethodGet, path, nil, &comments, http.StatusOK); err != nil {
			return 0, fmt.Errorf("list comments: %w", err)
		}

		for _, c := range comments {
			if strings.Contains(c.Body, p.Marker) {
				return c.ID, nil
			}
		}

		if len(comments) < commentsPerPage {
			return 0, nil
		}
	}
}

func (p *CommentPublisher) createComment(ctx context.Context, prNumber int, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", p.Repo, prNumber)
	payload := map[string]string{"body": body}
	if err := p.do(ctx, http.MethodPost, path, payload, nil, http.StatusCreated); err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	return nil
}

func (p *CommentPublisher) updateComment(ctx context.Context, commentID int64, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/comments/%d", p.Repo, commentID)
	payload := map[string]string{"body": body}
	if err := p.do(ctx, http.MethodPatch, path, payload, nil, http.StatusOK); err != nil {
		return fmt.Errorf("update comment %d: %w", commentID, err)
	}
	return nil
}

func (p *CommentPublisher) do(ctx context.Context, method, path string, body, out any, wantStatus int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	base := p.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
