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
	"strings"
	"time"
)

// ErrDaemonUnavailable is returned when the daemon cannot be reached.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for the API listening on bind (host:port or URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimSpace(bind)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/stages", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health retrieves per-stage readiness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Trigger sets the trigger of one stage.
func (c *Client) Trigger(ctx context.Context, name string) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.do(ctx, http.MethodPost, "/api/stages/"+url.PathEscape(name)+"/trigger", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TriggerAll sets the trigger of every stage.
func (c *Client) TriggerAll(ctx context.Context) (*TriggerResponse, error) {
	var resp TriggerResponse
	if err := c.do(ctx, http.MethodPost, "/api/trigger-all", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scan runs a staging scan of the library roots, or of req.Path.
func (c *Client) Scan(ctx context.Context, req ScanRequest) (*ScanResponse, error) {
	var resp ScanResponse
	if err := c.do(ctx, http.MethodPost, "/api/scan", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recheck re-queues stale finished tasks.
func (c *Client) Recheck(ctx context.Context, req RecheckRequest) (*RecheckResponse, error) {
	var resp RecheckResponse
	if err := c.do(ctx, http.MethodPost, "/api/recheck", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Retry re-queues failed tasks of one stage, or of all stages.
func (c *Client) Retry(ctx context.Context, stageName string) (*RetryResponse, error) {
	var resp RetryResponse
	if err := c.do(ctx, http.MethodPost, "/api/retry", RetryRequest{Stage: stageName}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RunJob runs a periodic job now.
func (c *Client) RunJob(ctx context.Context, name string) (*JobResponse, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(name)+"/run", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Tasks lists tasks, optionally filtered by stage and status.
func (c *Client) Tasks(ctx context.Context, stageName, status string, limit int) ([]Task, error) {
	params := url.Values{}
	if stageName != "" {
		params.Set("stage", stageName)
	}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	path := "/api/tasks"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp TaskListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
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
		var apiErr ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
