package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Config captures the runtime settings required to talk to the synthesis service.
type Config struct {
	APIKey     string
	Endpoint   string
	Voice      string
	SampleRate int
	Channels   int
}

// Client wraps the synthesis HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a synthesis client using the supplied configuration.
// The default HTTP client has no timeout; deadlines come from the context.
func NewClient(cfg Config, opts ...Option) *Client {
	client := &Client{
		cfg: Config{
			APIKey:     strings.TrimSpace(cfg.APIKey),
			Endpoint:   strings.TrimSpace(cfg.Endpoint),
			Voice:      strings.TrimSpace(cfg.Voice),
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		},
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Request is one script to render.
type Request struct {
	Text  string
	Voice string
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("synthesis request: http %d", e.StatusCode)
	}
	return fmt.Sprintf("synthesis request: http %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the service may succeed on a later attempt.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type synthesizeRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
}

// Synthesize renders req into dest and returns the number of bytes written.
// A partially written dest is removed on failure.
func (c *Client) Synthesize(ctx context.Context, req Request, dest string) (int64, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return 0, errors.New("synthesis request: text required")
	}
	voice := strings.TrimSpace(req.Voice)
	if voice == "" {
		voice = c.cfg.Voice
	}
	payload := synthesizeRequest{
		Text:       text,
		Voice:      voice,
		Format:     "wav",
		SampleRate: c.cfg.SampleRate,
		Channels:   c.cfg.Channels,
	}
	resp, err := c.do(ctx, http.MethodPost, "v1/synthesize", payload)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	file, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("synthesis request: create output: %w", err)
	}
	written, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && written == 0 {
		copyErr = errors.New("empty audio response")
	}
	if copyErr != nil {
		_ = os.Remove(dest)
		return 0, fmt.Errorf("synthesis request: read audio: %w", copyErr)
	}
	return written, nil
}

// HealthCheck verifies the service is reachable and the API key is accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "v1/health", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	if c.cfg.Endpoint == "" {
		return nil, errors.New("synthesis request: endpoint not configured")
	}
	endpoint, err := url.JoinPath(c.cfg.Endpoint, path)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: build url: %w", err)
	}
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("synthesis request: encode body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: new request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "audio/wav")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: http error: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return resp, nil
}
