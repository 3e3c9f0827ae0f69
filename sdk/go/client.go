package vowlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Vowline HTTP API client.
type Client struct {
	BaseURL    string
	EventID    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, eventID string) *Client {
	return &Client{
		BaseURL: baseURL,
		EventID: eventID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API vendor task model (partial).
type Task struct {
	ID               string    `json:"id"`
	EventID          string    `json:"event_id"`
	VendorID         string    `json:"vendor_id"`
	Category         string    `json:"category"`
	Title            string    `json:"title"`
	Zone             string    `json:"zone"`
	Start            time.Time `json:"start"`
	DurationMinutes  int       `json:"duration_minutes"`
	SetupMinutes     int       `json:"setup_minutes"`
	BreakdownMinutes int       `json:"breakdown_minutes"`
}

// Conflict represents one detected scheduling conflict.
type Conflict struct {
	ID             string  `json:"id"`
	Kind           string  `json:"kind"`
	TaskA          string  `json:"task_a"`
	TaskB          string  `json:"task_b,omitempty"`
	OverlapMinutes int     `json:"overlap_minutes"`
	Severity       float64 `json:"severity"`
}

// Adjustment is one proposed schedule change.
type Adjustment struct {
	TaskID             string    `json:"task_id"`
	OldStart           time.Time `json:"old_start"`
	NewStart           time.Time `json:"new_start"`
	AddedBufferMinutes int       `json:"added_buffer_minutes,omitempty"`
	Move               string    `json:"move"`
}

// Result is an optimization run outcome.
type Result struct {
	RunID          string       `json:"run_id"`
	EventID        string       `json:"event_id"`
	SnapshotHash   string       `json:"snapshot_hash"`
	Adjustments    []Adjustment `json:"adjustments"`
	RiskScore      float64      `json:"risk_score"`
	Partial        bool         `json:"partial"`
	IterationsUsed int          `json:"iterations_used"`
	CreatedAt      string       `json:"created_at"`
}

// Score is a vendor reliability summary.
type Score struct {
	ExpectedDelayMinutes float64 `json:"expected_delay_minutes"`
	DelayVariance        float64 `json:"delay_variance"`
	Confidence           float64 `json:"confidence"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a vendor task.
func (c *Client) CreateTask(ctx context.Context, t Task) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, c.eventPath("tasks"), t, &resp)
	return resp, err
}

// ListTasks lists the event's vendor tasks.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, c.eventPath("tasks"), nil, &resp)
	return resp, err
}

// AddDependency adds an ordering edge between two tasks.
func (c *Client) AddDependency(ctx context.Context, fromTaskID, toTaskID, kind string) error {
	body := map[string]any{
		"from_task_id": fromTaskID,
		"to_task_id":   toTaskID,
		"kind":         kind,
	}
	return c.do(ctx, http.MethodPost, c.eventPath("dependencies"), body, nil)
}

// Detect runs conflict detection without proposing changes.
func (c *Client) Detect(ctx context.Context) ([]Conflict, error) {
	var resp []Conflict
	err := c.do(ctx, http.MethodPost, c.eventPath("conflicts/detect"), nil, &resp)
	return resp, err
}

// Optimize runs a full optimization and returns the result.
func (c *Client) Optimize(ctx context.Context, budgetIterations int) (Result, error) {
	endpoint := c.eventPath("optimize")
	if budgetIterations > 0 {
		endpoint = fmt.Sprintf("%s?budget_iterations=%d", endpoint, budgetIterations)
	}
	var resp Result
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Results lists past optimization results, newest first.
func (c *Client) Results(ctx context.Context, limit int) ([]Result, error) {
	endpoint := c.eventPath("results")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Result
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RecordActuals records a measured outcome for a task.
func (c *Client) RecordActuals(ctx context.Context, taskID string, actualStart time.Time, actualDurationMinutes int) error {
	body := map[string]any{
		"task_id":                 taskID,
		"actual_start":            actualStart.Format(time.RFC3339),
		"actual_duration_minutes": actualDurationMinutes,
	}
	return c.do(ctx, http.MethodPost, c.eventPath("actuals"), body, nil)
}

// VendorScore returns a vendor's reliability score for one category.
func (c *Client) VendorScore(ctx context.Context, vendorID, category string) (Score, error) {
	var resp struct {
		Score Score `json:"score"`
	}
	endpoint := fmt.Sprintf("v1/vendors/%s/profile?category=%s",
		url.PathEscape(vendorID), url.QueryEscape(category))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Score, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) eventPath(p string) string {
	event := url.PathEscape(c.EventID)
	return fmt.Sprintf("v1/events/%s/%s", event, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
