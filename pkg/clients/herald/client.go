// Package herald is an HTTP client for the herald API, used by heraldctl.
package herald

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
	"frameworks/herald/pkg/clients"
)

// APIError is a non-2xx answer from herald.
type APIError struct {
	StatusCode int            `json:"-"`
	Message    string         `json:"error"`
	Code       string         `json:"code"`
	Details    map[string]any `json:"details"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("herald returned %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("herald returned status: %d", e.StatusCode)
}

type Client struct {
	baseURL      string
	token        string
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
}

type Option func(*Client)

func NewClient(baseURL, token string, opts ...Option) *Client {
	defaultConfig := clients.DefaultHTTPExecutorConfig()
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		client:       &http.Client{Timeout: 30 * time.Second, Transport: clients.DefaultTransport()},
		httpExecutor: clients.NewHTTPExecutor(defaultConfig),
		shouldRetry:  defaultConfig.ShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		if cfg.ShouldRetry == nil {
			cfg.ShouldRetry = clients.DefaultShouldRetry
		}
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
		c.shouldRetry = cfg.ShouldRetry
	}
}

// doRequest sends one request. Only reads go through the retry executor;
// mode changes are sent once.
func (c *Client) doRequest(ctx context.Context, retry bool, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.httpExecutor == nil || !retry {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	}

	return clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if c.shouldRetry != nil && c.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}

// call performs a JSON request and decodes the answer into out. A 207 is
// decoded into out and also returned as an *APIError.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	endpoint := c.baseURL + "/api/v1" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	resp, err := c.doRequest(ctx, method == http.MethodGet, func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read herald response: %w", err)
	}

	if resp.StatusCode == http.StatusMultiStatus {
		var partial struct {
			APIError
			Result json.RawMessage `json:"result"`
		}
		if err := json.Unmarshal(raw, &partial); err != nil {
			return fmt.Errorf("decode herald response: %w", err)
		}
		if out != nil && len(partial.Result) > 0 {
			if err := json.Unmarshal(partial.Result, out); err != nil {
				return fmt.Errorf("decode herald result: %w", err)
			}
		}
		apiErr := partial.APIError
		apiErr.StatusCode = resp.StatusCode
		return &apiErr
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode herald response: %w", err)
	}
	return nil
}

// ModeStatus returns the current system mode.
func (c *Client) ModeStatus(ctx context.Context) (controls.Status, error) {
	var st controls.Status
	err := c.call(ctx, http.MethodGet, "/control/status", nil, nil, &st)
	return st, err
}

// ControlOps lists the accepted SetMode operations.
var ControlOps = []string{"pause", "resume", "manual", "normal", "crisis"}

// SetMode runs one control operation. For a partial crisis sweep both the
// result and an *APIError are returned.
func (c *Client) SetMode(ctx context.Context, op, notes string) (controls.Result, error) {
	valid := false
	for _, o := range ControlOps {
		if o == op {
			valid = true
			break
		}
	}
	if !valid {
		return controls.Result{}, fmt.Errorf("unknown control operation %q", op)
	}

	var res controls.Result
	err := c.call(ctx, http.MethodPost, "/control/"+op, nil, map[string]string{"notes": notes}, &res)
	return res, err
}

// AuditQuery mirrors the /audit query parameters.
type AuditQuery struct {
	TargetType string
	TargetID   string
	ActorID    string
	Action     string
	Since      time.Time
	Limit      int
}

func (q AuditQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("target_type", q.TargetType)
	set("target_id", q.TargetID)
	set("actor_id", q.ActorID)
	set("action", q.Action)
	if !q.Since.IsZero() {
		v.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// QueryAudit returns audit records newest first.
func (c *Client) QueryAudit(ctx context.Context, q AuditQuery) ([]audit.Record, error) {
	var out struct {
		Records []audit.Record `json:"records"`
	}
	if err := c.call(ctx, http.MethodGet, "/audit", q.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// ListContent lists items, optionally filtered by comma-separated statuses
// and platform.
func (c *Client) ListContent(ctx context.Context, status, platform string) ([]content.Item, error) {
	v := url.Values{}
	if status != "" {
		v.Set("status", status)
	}
	if platform != "" {
		v.Set("platform", platform)
	}
	var out struct {
		Items []content.Item `json:"items"`
	}
	if err := c.call(ctx, http.MethodGet, "/content", v, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ContentHistory returns the audit trail of one item.
func (c *Client) ContentHistory(ctx context.Context, id string) ([]audit.Record, error) {
	var out struct {
		Records []audit.Record `json:"records"`
	}
	if err := c.call(ctx, http.MethodGet, "/content/"+url.PathEscape(id)+"/history", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// WorkflowAnalytics returns the workflow report for the last days days. Zero
// leaves the window to the server default.
func (c *Client) WorkflowAnalytics(ctx context.Context, days int) (analytics.Workflow, error) {
	v := url.Values{}
	if days > 0 {
		v.Set("days", strconv.Itoa(days))
	}
	var w analytics.Workflow
	err := c.call(ctx, http.MethodGet, "/analytics/workflow", v, nil, &w)
	return w, err
}
