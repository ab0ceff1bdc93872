package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDaemonUnavailable reports that no API server answered.
var ErrDaemonUnavailable = errors.New("daemon api unavailable")

// Client calls a running daemon's status API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient targets the API listening on bind (host:port).
func NewClient(bind, token string) *Client {
	return &Client{
		base:  "http://" + strings.TrimSpace(bind),
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api %d (%s): %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("api %d: %s", e.StatusCode, e.Message)
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// List returns jobs matching query.
func (c *Client) List(ctx context.Context, query ListQuery) ([]Job, error) {
	values := url.Values{}
	for _, status := range query.Statuses {
		values.Add("status", status)
	}
	if query.EpisodeID != "" {
		values.Set("episode", query.EpisodeID)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(query.Limit))
	}
	path := "/api/jobs"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Describe fetches one job. It returns nil, nil when the job is unknown.
func (c *Client) Describe(ctx context.Context, id string) (*Job, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Job, nil
}

// Audit fetches a job's audit log.
func (c *Client) Audit(ctx context.Context, id string) ([]AuditEntry, error) {
	var out AuditResponse
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id)+"/audit", nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

// Episode fetches an episode. It returns nil, nil when unknown.
func (c *Client) Episode(ctx context.Context, id string) (*Episode, error) {
	var out EpisodeResponse
	if err := c.do(ctx, http.MethodGet, "/api/episodes/"+url.PathEscape(id), nil, &out); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out.Episode, nil
}

// Submit queues a job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", req, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// Cancel requests cancellation of a job.
func (c *Client) Cancel(ctx context.Context, id string) (*Job, error) {
	var out JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out.Job, nil
}

// Retry requeues the given failed jobs one by one. A job the server refuses
// to requeue counts as zero.
func (c *Client) Retry(ctx context.Context, ids []string) (int64, error) {
	var total int64
	for _, id := range ids {
		var out RetryResponse
		err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/retry", nil, &out)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			continue
		}
		if err != nil {
			return total, err
		}
		total += out.Requeued
	}
	return total, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
		if payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: payload.Error, Kind: payload.Kind}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
