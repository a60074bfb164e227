package herald

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"frameworks/herald/pkg/clients"
)

// newTestClient skips the executor so tests use the direct client.Do path.
func newTestClient(baseURL string) *Client {
	return &Client{baseURL: baseURL, token: "tok", client: &http.Client{}}
}

func TestModeStatusSendsBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/control/status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Fatalf("unexpected auth header %q", got)
		}
		_, _ = w.Write([]byte(`{"mode":"manual","paused":false,"can_schedule":false,"can_publish":false,"can_create":true}`))
	}))
	defer srv.Close()

	st, err := newTestClient(srv.URL).ModeStatus(context.Background())
	if err != nil {
		t.Fatalf("ModeStatus: %v", err)
	}
	if st.Mode != "manual" || !st.CanCreate {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSetModeDecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"reviewer may not control_mode","code":"FORBIDDEN","details":{"role":"reviewer"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SetMode(context.Background(), "pause", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "FORBIDDEN" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestSetModePartialCrisis(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["notes"] != "incident" {
			t.Fatalf("notes not sent: %v", body)
		}
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"error":"partial","code":"CANCEL_INCOMPLETE","details":{"failed_ids":["b"]},
			"result":{"previous":{"mode":"normal","paused":false},"current":{"mode":"crisis","paused":true},
			"cancellation":{"cancelled":["a"],"failed":[{"item_id":"b","error":"boom"}]}}}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).SetMode(context.Background(), "crisis", "incident")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "CANCEL_INCOMPLETE" {
		t.Fatalf("expected CANCEL_INCOMPLETE, got %v", err)
	}
	if res.Current.Mode != "crisis" || res.Cancellation == nil || len(res.Cancellation.Failed) != 1 {
		t.Fatalf("result not decoded: %+v", res)
	}
}

func TestSetModeRejectsUnknownOp(t *testing.T) {
	if _, err := newTestClient("http://localhost").SetMode(context.Background(), "explode", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestQueryAuditEncodesFilters(t *testing.T) {
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("target_type") != "system" || q.Get("limit") != "5" || q.Get("since") != "2026-01-02T03:04:05Z" {
			t.Fatalf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Has("actor_id") {
			t.Fatalf("empty filters must be omitted")
		}
		_, _ = w.Write([]byte(`{"records":[{"id":"r1","action":"control.pause"}],"count":1}`))
	}))
	defer srv.Close()

	recs, err := newTestClient(srv.URL).QueryAudit(context.Background(), AuditQuery{TargetType: "system", Since: since, Limit: 5})
	if err != nil {
		t.Fatalf("QueryAudit: %v", err)
	}
	if len(recs) != 1 || recs[0].Action != "control.pause" {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestWorkflowAnalytics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/analytics/workflow" || r.URL.Query().Get("days") != "14" {
			t.Fatalf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"period":{"days":14},"content_metrics":{"total_items":3,
			"status_distribution":{"approved":2,"draft":1},"platform_distribution":{"twitter":3}},
			"approval_metrics":{"total_requests":2,"approved":2}}`))
	}))
	defer srv.Close()

	w, err := newTestClient(srv.URL).WorkflowAnalytics(context.Background(), 14)
	if err != nil {
		t.Fatalf("WorkflowAnalytics: %v", err)
	}
	if w.Period.Days != 14 || w.Content.TotalItems != 3 || w.Approvals.Approved != 2 {
		t.Fatalf("unexpected report: %+v", w)
	}
}

func TestReadsRetryButWritesDoNot(t *testing.T) {
	var reads, writes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if reads.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"items":[],"count":0}`))
			return
		}
		writes.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", WithHTTPExecutorConfig(clients.HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
	}))

	if _, err := c.ListContent(context.Background(), "draft", ""); err != nil {
		t.Fatalf("ListContent: %v", err)
	}
	if reads.Load() != 2 {
		t.Fatalf("expected 2 reads, got %d", reads.Load())
	}

	if _, err := c.SetMode(context.Background(), "pause", ""); err == nil {
		t.Fatal("expected error")
	}
	if writes.Load() != 1 {
		t.Fatalf("expected a single write, got %d", writes.Load())
	}
}
