// Package client is a small HTTP client for the keepsake API used by the CLI.
package client

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
	"time"

	"github.com/papercomputeco/keepsake/api"
	"github.com/papercomputeco/keepsake/pkg/memory"
)

const defaultTimeout = 30 * time.Second

// Client talks to a running keepsake API server.
type Client struct {
	target *url.URL
	http   *http.Client
}

// New creates a client for the API at target, a full URL such as
// http://localhost:8082.
func New(target string) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL %q: scheme and host are required", target)
	}
	return &Client{
		target: u,
		http:   &http.Client{Timeout: defaultTimeout},
	}, nil
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (HTTP %d): %s", e.Code, e.Message)
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var pong string
	return c.do(ctx, http.MethodGet, "/ping", nil, nil, &pong)
}

// Stats returns the engine counters.
func (c *Client) Stats(ctx context.Context) (*memory.Stats, error) {
	var stats memory.Stats
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SearchFacts runs a scope-wide fact search. A zero limit uses the server default.
func (c *Client) SearchFacts(ctx context.Context, query, guildID, channelID string, limit int) (*api.SearchResponse, error) {
	q := url.Values{}
	q.Set("query", query)
	if guildID != "" {
		q.Set("guild_id", guildID)
	}
	if channelID != "" {
		q.Set("channel_id", channelID)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var out api.SearchResponse
	if err := c.do(ctx, http.MethodGet, "/v1/facts/search", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Remember stores an explicit directive line.
func (c *Client) Remember(ctx context.Context, req api.RememberRequest) (bool, error) {
	var out api.RememberResponse
	if err := c.do(ctx, http.MethodPost, "/v1/facts/remember", nil, req, &out); err != nil {
		return false, err
	}
	return out.Stored, nil
}

// Ingest queues a message. When wait is set the server blocks until the job
// resolves.
func (c *Client) Ingest(ctx context.Context, req api.IngestRequest, wait bool) (*api.IngestResponse, error) {
	var q url.Values
	if wait {
		q = url.Values{"wait": {"true"}}
	}

	var out api.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/v1/messages", q, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Slice builds the memory slice for a reply.
func (c *Client) Slice(ctx context.Context, req api.SliceRequest) (*memory.MemorySlice, error) {
	var out memory.MemorySlice
	if err := c.do(ctx, http.MethodPost, "/v1/memory/slice", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot returns the rendered Markdown snapshot.
func (c *Client) Snapshot(ctx context.Context) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, "/v1/memory/snapshot", nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return string(body), nil
}

// RefreshSnapshot asks the server to rewrite its snapshot file.
func (c *Client) RefreshSnapshot(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/memory/snapshot", nil, nil, nil)
}

// Backfill embeds every fact in the guild that lacks a vector.
func (c *Client) Backfill(ctx context.Context, guildID string) (*memory.BackfillResult, error) {
	q := url.Values{}
	if guildID != "" {
		q.Set("guild_id", guildID)
	}

	var out memory.BackfillResult
	if err := c.do(ctx, http.MethodPost, "/v1/backfill", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	resp, err := c.send(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, in any) (*http.Response, error) {
	u := *c.target
	u.Path = path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to keepsake API at %s: %w", c.target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var e api.ErrorResponse
	msg := string(bytes.TrimSpace(raw))
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		msg = e.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

// IsUnavailable reports whether err is a 503 from the server, returned when
// the engine is closed or a collaborator is not configured.
func IsUnavailable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusServiceUnavailable
}
