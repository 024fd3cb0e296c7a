// Package remote reads and replaces the shared roadmap blob held by a
// key-value HTTP store.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
)

const (
	DefaultBaseURL = "https://kvdb.io"
	DefaultKey     = "roadmap"
	DefaultTimeout = 10 * time.Second
)

// Client performs one GET or PUT per call. It never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout bounds each request.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// NewClient addresses <baseURL>/<bucket>/<key>.
func NewClient(baseURL, bucket, key string, opts ...Option) (*Client, error) {
	if bucket == "" {
		return nil, fmt.Errorf("remote bucket is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if key == "" {
		key = DefaultKey
	}

	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + bucket + "/" + key,
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the blob URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch reads the shared snapshot. A missing blob yields roadmap.ErrNotFound,
// transport failures and unexpected statuses a *roadmap.NetworkError.
func (c *Client) Fetch(ctx context.Context) (roadmap.Snapshot, error) {
	t := timeout.New[roadmap.Snapshot](timeout.Config{DefaultTimeout: c.timeout})
	snap, err := t.Execute(ctx, c.timeout, func(ctx context.Context) (roadmap.Snapshot, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
		if err != nil {
			return nil, &roadmap.NetworkError{Op: "fetch", Err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &roadmap.NetworkError{Op: "fetch", Err: err}
		}
		defer resp.Body.Close() //nolint:errcheck // best-effort close on read body

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, roadmap.ErrNotFound
		case resp.StatusCode != http.StatusOK:
			return nil, &roadmap.NetworkError{Op: "fetch", StatusCode: resp.StatusCode}
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &roadmap.NetworkError{Op: "fetch", Err: err}
		}
		return roadmap.Decode(c.endpoint, data)
	})
	if err != nil {
		return nil, classify("fetch", err)
	}
	return snap, nil
}

// Push replaces the shared snapshot.
func (c *Client) Push(ctx context.Context, snap roadmap.Snapshot) error {
	body, err := roadmap.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	t := timeout.New[struct{}](timeout.Config{DefaultTimeout: c.timeout})
	_, err = t.Execute(ctx, c.timeout, func(ctx context.Context) (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, &roadmap.NetworkError{Op: "push", Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, &roadmap.NetworkError{Op: "push", Err: err}
		}
		defer resp.Body.Close() //nolint:errcheck // best-effort close on read body
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return struct{}{}, &roadmap.NetworkError{Op: "push", StatusCode: resp.StatusCode}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return classify("push", err)
	}
	return nil
}

// classify turns timeouts and cancellations into network errors so callers
// only ever see the three documented failure kinds.
func classify(op string, err error) error {
	if errors.Is(err, roadmap.ErrNotFound) || errors.Is(err, roadmap.ErrNetwork) || errors.Is(err, roadmap.ErrParse) {
		return err
	}
	return &roadmap.NetworkError{Op: op, Err: err}
}
