package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/flowtask/taskqueue-go/internal/scheduler"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// Client is a Go SDK for the task queue's HTTP surface.
type Client struct {
	baseURL string
	opts    *options
}

// New creates a Client talking to baseURL.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{baseURL: baseURL, opts: o}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("client: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("client: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.opts.applyHeaders(req)

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("client: decode response: %w", err)
		}
	}

	return resp.StatusCode, nil
}

func (c *Client) doErr(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	status, err := c.do(ctx, method, path, body, out)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("client: unexpected status %d from %s %s", status, method, path)
	}
	return nil
}

// SubmitTask creates a new task and returns its serialized record.
func (c *Client) SubmitTask(ctx context.Context, req task.CreateTaskRequest) (*task.Snapshot, error) {
	var snap task.Snapshot
	if err := c.doErr(ctx, http.MethodPost, "/api/v1/tasks/", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetTask fetches a single task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*task.Snapshot, error) {
	var snap task.Snapshot
	path := "/api/v1/tasks/" + url.PathEscape(taskID)
	if err := c.doErr(ctx, http.MethodGet, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// CancelTask cancels a pending or queued task.
func (c *Client) CancelTask(ctx context.Context, taskID string) (*task.Snapshot, error) {
	var snap task.Snapshot
	path := "/api/v1/tasks/" + url.PathEscape(taskID)
	if err := c.doErr(ctx, http.MethodDelete, path, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// taskListResponse mirrors the server's listing envelope.
type taskListResponse struct {
	Tasks      []task.Snapshot `json:"tasks"`
	TotalCount int             `json:"total_count"`
}

// ListTasks lists tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status task.Status) ([]task.Snapshot, error) {
	path := "/api/v1/tasks/"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var resp taskListResponse
	if err := c.doErr(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// CreatePeriodicTask registers a new cron-scheduled task definition.
func (c *Client) CreatePeriodicTask(ctx context.Context, name, funcName, cronExpr string, args []interface{}, kwargs map[string]interface{}, priority int, maxRetries int, timeout *int) (*scheduler.View, error) {
	body := map[string]interface{}{
		"name": name, "func_name": funcName, "cron_expression": cronExpr,
		"args": args, "kwargs": kwargs, "priority": priority,
		"max_retries": maxRetries, "timeout": timeout,
	}
	var view scheduler.View
	if err := c.doErr(ctx, http.MethodPost, "/api/v1/periodic-tasks/", body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ListPeriodicTasks lists every registered periodic task definition.
func (c *Client) ListPeriodicTasks(ctx context.Context) ([]scheduler.View, error) {
	var resp struct {
		PeriodicTasks []scheduler.View `json:"periodic_tasks"`
	}
	if err := c.doErr(ctx, http.MethodGet, "/api/v1/periodic-tasks/", nil, &resp); err != nil {
		return nil, err
	}
	return resp.PeriodicTasks, nil
}

// TriggerPeriodicTask fires a periodic task immediately, returning the
// spawned instance's task id.
func (c *Client) TriggerPeriodicTask(ctx context.Context, name string) (string, error) {
	var resp struct {
		TaskID string `json:"task_id"`
	}
	path := "/api/v1/periodic-tasks/" + url.PathEscape(name) + "/trigger"
	if err := c.doErr(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	return resp.TaskID, nil
}

// DeletePeriodicTask removes a periodic task definition.
func (c *Client) DeletePeriodicTask(ctx context.Context, name string) error {
	path := "/api/v1/periodic-tasks/" + url.PathEscape(name)
	return c.doErr(ctx, http.MethodDelete, path, nil, nil)
}

// Stats returns the worker pool's current operational statistics.
func (c *Client) Stats(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.doErr(ctx, http.MethodGet, "/admin/workers", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// QueueStats returns the queue's derived counters.
func (c *Client) QueueStats(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.doErr(ctx, http.MethodGet, "/api/v1/queue/stats", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Health checks the API server's health endpoint.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var resp map[string]interface{}
	if err := c.doErr(ctx, http.MethodGet, "/api/v1/health", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
