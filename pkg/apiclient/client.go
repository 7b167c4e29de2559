// Package apiclient is the HTTP client for the interaction service.
//
// Reads carry a 10 second per-attempt timeout and up to 2 retries on
// transient failures. Writes carry a 15 second timeout and are never retried
// automatically: a retried like toggle would toggle twice.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vibesync/pkg/api"
)

const (
	// ReadTimeout is the per-attempt timeout for non-mutating requests.
	ReadTimeout = 10 * time.Second

	// WriteTimeout is the timeout for mutating requests.
	WriteTimeout = 15 * time.Second

	// ReadRetries is the number of retries after the first read attempt.
	ReadRetries = 2

	// retryDelay is the pause between read attempts.
	retryDelay = 500 * time.Millisecond
)

// Client talks to the interaction service over HTTP/JSON.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// New creates a client for the given base URL (e.g. "http://localhost:8080").
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// WithToken returns the client configured to send the given bearer token.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

// ToggleLike toggles the (viewer, subject) like and returns the authoritative
// state. Not idempotent: calling twice toggles twice.
func (c *Client) ToggleLike(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
	var status api.LikeStatus
	req := api.ToggleLikeRequest{
		ViewerID:  viewerID,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
	}
	err := c.doWrite(ctx, http.MethodPost, "/likes/toggle", req, &status)
	if err != nil {
		return api.LikeStatus{}, err
	}
	return status, nil
}

// GetLikes fetches the authoritative count and liked flag for a subject.
// viewerID may be empty, in which case hasLiked is always false.
func (c *Client) GetLikes(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
	q := url.Values{}
	q.Set("subjectId", subjectID)
	if viewerID != "" {
		q.Set("viewerId", viewerID)
	}

	var status api.LikeStatus
	if err := c.doRead(ctx, "/likes?"+q.Encode(), &status); err != nil {
		return api.LikeStatus{}, err
	}
	return status, nil
}

// CreateComment posts a new comment and returns the server copy.
func (c *Client) CreateComment(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
	req := api.CreateCommentRequest{
		ViewerID:  viewerID,
		SubjectID: subjectID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}

	var comment api.Comment
	if err := c.doWrite(ctx, http.MethodPost, "/comments", req, &comment); err != nil {
		return api.Comment{}, err
	}
	return comment, nil
}

// DeleteComment deletes a comment by id. A 404 means the comment is already
// gone and is treated as success.
func (c *Client) DeleteComment(ctx context.Context, commentID string) error {
	err := c.doWrite(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, nil)
	if errors.Is(err, api.ErrNotFound) {
		log.Printf("[APIClient] DeleteComment: comment=%s already deleted", commentID)
		return nil
	}
	return err
}

// ListComments fetches the full comment list for a subject, newest first.
func (c *Client) ListComments(ctx context.Context, subjectID string) ([]api.Comment, error) {
	q := url.Values{}
	q.Set("subjectId", subjectID)

	var resp api.CommentListResponse
	if err := c.doRead(ctx, "/comments?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// GetSubject fetches a subject with its aggregate counts.
func (c *Client) GetSubject(ctx context.Context, subjectID string) (api.Subject, error) {
	var subject api.Subject
	if err := c.doRead(ctx, "/subjects/"+url.PathEscape(subjectID), &subject); err != nil {
		return api.Subject{}, err
	}
	return subject, nil
}

// CreateSubject creates a subject. Subjects are normally created by the
// publishing pipeline; this exists for development and integration tests.
func (c *Client) CreateSubject(ctx context.Context, profileID string) (api.Subject, error) {
	var subject api.Subject
	req := api.CreateSubjectRequest{ProfileID: profileID}
	if err := c.doWrite(ctx, http.MethodPost, "/subjects", req, &subject); err != nil {
		return api.Subject{}, err
	}
	return subject, nil
}

// UpdateSubjectCounts patches the denormalized aggregate counters.
// Best-effort by contract: callers decide whether failure matters.
func (c *Client) UpdateSubjectCounts(ctx context.Context, subjectID string, patch api.SubjectCountsPatch) error {
	return c.doWrite(ctx, http.MethodPatch, "/subjects/"+url.PathEscape(subjectID), patch, nil)
}

// doRead performs a GET with retry on transient failures.
func (c *Client) doRead(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= ReadRetries; attempt++ {
		if attempt > 0 {
			log.Printf("[APIClient] Retrying read (attempt %d/%d): path=%s err=%v",
				attempt+1, ReadRetries+1, path, lastErr)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", api.ErrCancelled, ctx.Err())
			}
		}

		lastErr = c.do(ctx, http.MethodGet, path, nil, out, ReadTimeout)
		if lastErr == nil {
			return nil
		}
		if !api.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// doWrite performs a mutating request with no automatic retry.
func (c *Client) doWrite(ctx context.Context, method, path string, body, out interface{}) error {
	return c.do(ctx, method, path, body, out, WriteTimeout)
}

// do performs one HTTP attempt and maps the outcome onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The transport reports a context cancellation as a url.Error; a
		// cancelled parent context means the caller was superseded, while a
		// blown deadline is a plain transient timeout.
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %s %s", api.ErrCancelled, method, path)
		}
		return fmt.Errorf("%w: %s %s: %v", api.ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", api.ErrTransient, err)
		}
		return nil
	}

	return c.errorFromResponse(method, path, resp)
}

// serviceError is the error envelope the interaction service returns.
type serviceError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) errorFromResponse(method, path string, resp *http.Response) error {
	var envelope serviceError
	message := resp.Status
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
	}

	var kind error
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		kind = api.ErrUnauthenticated
	case resp.StatusCode == http.StatusForbidden:
		kind = api.ErrPermission
	case resp.StatusCode == http.StatusNotFound:
		kind = api.ErrNotFound
	case resp.StatusCode == http.StatusBadRequest:
		kind = api.ErrInvalidInput
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		kind = api.ErrTransient
	default:
		kind = api.ErrInvalidInput
	}

	log.Printf("[APIClient] %s %s -> %d (%s)", method, path, resp.StatusCode, message)
	return fmt.Errorf("%w: %s %s: %s", kind, method, path, message)
}
