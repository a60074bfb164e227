package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/herald/internal/access"
	"frameworks/herald/internal/analytics"
	"frameworks/herald/internal/apperr"
	"frameworks/herald/internal/approval"
	"frameworks/herald/internal/audit"
	"frameworks/herald/internal/content"
	"frameworks/herald/internal/controls"
	"frameworks/herald/internal/store/memory"
	"frameworks/herald/pkg/auth"
	"frameworks/herald/pkg/logging"
	"frameworks/herald/pkg/testutil"
)

type apiHarness struct {
	router *gin.Engine
	jwt    *testutil.JWTTestHelper
	ctrl   *controls.Controller
}

func setupAPI(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logging.NewDiscardLogger()

	st := memory.New()
	log := audit.NewLog(st, logger)
	ctrl := controls.New(st, controls.WithForwarder(log))
	require.NoError(t, ctrl.Init(context.Background()))
	engine := approval.NewEngine(st, ctrl, log)
	ctrl.SetCanceller(engine)

	jwt := testutil.NewJWTTestHelper()
	router := gin.New()
	api := router.Group("/api/v1", auth.JWTAuthMiddleware(jwt.Secret))
	Register(api,
		NewContentHandler(engine, logger),
		NewControlHandler(ctrl, logger),
		NewAuditHandler(log, logger),
		NewAnalyticsHandler(analytics.NewService(st), logger),
	)
	return &apiHarness{router: router, jwt: jwt, ctrl: ctrl}
}

func (h *apiHarness) do(t *testing.T, user testutil.TestUser, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user.UserID != "" {
		user.Authorize(h.jwt, req)
	}
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)
	return resp
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

type errResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details"`
}

func (h *apiHarness) createItem(t *testing.T) content.Item {
	t.Helper()
	resp := h.do(t, testutil.ClientTestUser, http.MethodPost, "/api/v1/content", map[string]any{
		"platform":     "linkedin",
		"content_text": "We are hiring #jobs",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode[content.Item](t, resp)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	h := setupAPI(t)
	resp := h.do(t, testutil.TestUser{}, http.MethodGet, "/api/v1/content", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestContentLifecycleOverHTTP(t *testing.T) {
	h := setupAPI(t)
	item := h.createItem(t)
	assert.Equal(t, content.StatusDraft, item.Status)
	assert.Equal(t, []string{"jobs"}, item.Hashtags)

	base := "/api/v1/content/" + item.ID
	resp := h.do(t, testutil.ClientTestUser, http.MethodPost, base+"/submit", map[string]any{"expected_version": 1})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, testutil.ReviewerTestUser, http.MethodPost, base+"/approve", map[string]any{"expected_version": 2, "comments": "ship it"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, testutil.ReviewerTestUser, http.MethodPost, base+"/schedule", map[string]any{
		"expected_version": 3,
		"scheduled_for":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	scheduled := decode[content.Item](t, resp)
	assert.Equal(t, content.StatusScheduled, scheduled.Status)
	require.NotNil(t, scheduled.ScheduledFor)

	resp = h.do(t, testutil.AdminTestUser, http.MethodPost, base+"/publish", map[string]any{"expected_version": 4})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, content.StatusPublished, decode[content.Item](t, resp).Status)

	resp = h.do(t, testutil.ClientTestUser, http.MethodGet, base+"/history", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	hist := decode[struct {
		Records []audit.Record `json:"records"`
		Count   int            `json:"count"`
	}](t, resp)
	assert.Equal(t, 5, hist.Count)
	assert.Equal(t, "content.publish", hist.Records[0].Action)
}

func TestErrorStatusMapping(t *testing.T) {
	h := setupAPI(t)
	item := h.createItem(t)
	base := "/api/v1/content/" + item.ID

	tests := []struct {
		name   string
		user   testutil.TestUser
		method string
		path   string
		body   any
		status int
		code   apperr.Code
	}{
		{"invalid transition", testutil.ReviewerTestUser, http.MethodPost, base + "/approve", map[string]any{"expected_version": 1}, http.StatusConflict, apperr.CodeInvalidTransition},
		{"stale version", testutil.ClientTestUser, http.MethodPost, base + "/submit", map[string]any{"expected_version": 7}, http.StatusPreconditionFailed, apperr.CodeStaleVersion},
		{"forbidden", testutil.OtherClientUser, http.MethodPost, base + "/submit", map[string]any{"expected_version": 1}, http.StatusForbidden, apperr.CodeForbidden},
		{"not found", testutil.AdminTestUser, http.MethodGet, "/api/v1/content/nope", nil, http.StatusNotFound, apperr.CodeNotFound},
		{"missing version", testutil.ClientTestUser, http.MethodPost, base + "/submit", map[string]any{}, http.StatusBadRequest, apperr.CodeValidation},
		{"bad platform", testutil.ClientTestUser, http.MethodPost, "/api/v1/content", map[string]any{"platform": "myspace", "content_text": "hi"}, http.StatusBadRequest, apperr.CodeValidation},
		{"client cannot control", testutil.ClientTestUser, http.MethodPost, "/api/v1/control/pause", nil, http.StatusForbidden, apperr.CodeForbidden},
		{"client cannot read audit", testutil.ClientTestUser, http.MethodGet, "/api/v1/audit", nil, http.StatusForbidden, apperr.CodeForbidden},
		{"bad since", testutil.AdminTestUser, http.MethodGet, "/api/v1/audit?since=yesterday", nil, http.StatusBadRequest, apperr.CodeValidation},
		{"client cannot read analytics", testutil.ClientTestUser, http.MethodGet, "/api/v1/analytics/workflow", nil, http.StatusForbidden, apperr.CodeForbidden},
		{"bad days", testutil.ReviewerTestUser, http.MethodGet, "/api/v1/analytics/workflow?days=week", nil, http.StatusBadRequest, apperr.CodeValidation},
		{"days out of range", testutil.ReviewerTestUser, http.MethodGet, "/api/v1/analytics/workflow?days=1000", nil, http.StatusBadRequest, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, tt.user, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, resp.Code, resp.Body.String())
			body := decode[errResponse](t, resp)
			assert.Equal(t, string(tt.code), body.Code)
			assert.NotEmpty(t, body.Error)
			assert.NotNil(t, body.Details)
		})
	}
}

func TestModeBlockedIs423(t *testing.T) {
	h := setupAPI(t)
	item := h.createItem(t)
	base := "/api/v1/content/" + item.ID
	require.Equal(t, http.StatusOK, h.do(t, testutil.ClientTestUser, http.MethodPost, base+"/submit", map[string]any{"expected_version": 1}).Code)
	require.Equal(t, http.StatusOK, h.do(t, testutil.ReviewerTestUser, http.MethodPost, base+"/approve", map[string]any{"expected_version": 2}).Code)

	resp := h.do(t, testutil.AdminTestUser, http.MethodPost, "/api/v1/control/manual", map[string]any{"notes": "review week"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[controls.Result](t, resp)
	assert.Equal(t, controls.ModeNormal, res.Previous.Mode)
	assert.Equal(t, controls.ModeManual, res.Current.Mode)
	assert.False(t, res.Current.CanSchedule)

	resp = h.do(t, testutil.ReviewerTestUser, http.MethodPost, base+"/schedule", map[string]any{
		"expected_version": 3,
		"scheduled_for":    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusLocked, resp.Code, resp.Body.String())
	assert.Equal(t, "manual", decode[errResponse](t, resp).Details["mode"])
}

func TestControlStatusAndAudit(t *testing.T) {
	h := setupAPI(t)

	resp := h.do(t, testutil.AdminTestUser, http.MethodPost, "/api/v1/control/crisis", map[string]any{"notes": "incident"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	resp = h.do(t, testutil.ClientTestUser, http.MethodGet, "/api/v1/control/status", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	st := decode[controls.Status](t, resp)
	assert.Equal(t, controls.ModeCrisis, st.Mode)
	assert.True(t, st.Paused)
	assert.False(t, st.CanCreate)

	resp = h.do(t, testutil.AdminTestUser, http.MethodPost, "/api/v1/control/resume", nil)
	assert.Equal(t, http.StatusLocked, resp.Code)

	resp = h.do(t, testutil.ReviewerTestUser, http.MethodGet, "/api/v1/audit?target_type=system&action=control.set_crisis", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	out := decode[struct {
		Records []audit.Record `json:"records"`
	}](t, resp)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "incident", out.Records[0].Details["notes"])
}

func TestControlAcceptsEmptyChunkedBody(t *testing.T) {
	h := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/control/pause", io.NopCloser(strings.NewReader("")))
	req.TransferEncoding = []string{"chunked"}
	require.Equal(t, int64(-1), req.ContentLength)
	testutil.AdminTestUser.Authorize(h.jwt, req)
	resp := httptest.NewRecorder()
	h.router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.True(t, h.ctrl.State().Paused)
}

func TestWorkflowAnalyticsOverHTTP(t *testing.T) {
	h := setupAPI(t)
	item := h.createItem(t)
	base := "/api/v1/content/" + item.ID
	require.Equal(t, http.StatusOK, h.do(t, testutil.ClientTestUser, http.MethodPost, base+"/submit", map[string]any{"expected_version": 1}).Code)
	require.Equal(t, http.StatusOK, h.do(t, testutil.ReviewerTestUser, http.MethodPost, base+"/approve", map[string]any{"expected_version": 2}).Code)
	h.createItem(t)

	resp := h.do(t, testutil.ReviewerTestUser, http.MethodGet, "/api/v1/analytics/workflow?days=7", nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	w := decode[analytics.Workflow](t, resp)
	assert.Equal(t, 7, w.Period.Days)
	assert.Equal(t, 2, w.Content.TotalItems)
	assert.Equal(t, 2, w.Content.PlatformDistribution[content.PlatformLinkedIn])
	assert.Equal(t, 1, w.Content.StatusDistribution[content.StatusApproved])
	assert.Equal(t, 1, w.Content.StatusDistribution[content.StatusDraft])
	assert.Equal(t, 1, w.Approvals.TotalRequests)
	assert.Equal(t, 1, w.Approvals.Approved)
}

type partialModeService struct{ ModeService }

func (partialModeService) SetCrisis(context.Context, access.Actor, string) (controls.Result, error) {
	report := controls.CancelReport{
		Cancelled: []string{"a"},
		Failed:    []controls.CancelFailure{{ItemID: "b", Error: "boom"}},
	}
	res := controls.Result{Current: controls.StatusOf(controls.State{Mode: controls.ModeCrisis, Paused: true}), Cancellation: &report}
	return res, apperr.New(apperr.CodeCancelIncomplete, "crisis mode set but 1 scheduled item(s) could not be cancelled").
		With("failed_ids", report.FailedIDs())
}

func TestCrisisPartialFailureIs207(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewControlHandler(partialModeService{}, logging.NewDiscardLogger())
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", "admin-1")
		c.Set("role", "admin")
	})
	router.POST("/control/crisis", h.Apply(partialModeService{}.SetCrisis))

	req := httptest.NewRequest(http.MethodPost, "/control/crisis", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusMultiStatus, resp.Code, resp.Body.String())
	var body struct {
		Code    string          `json:"code"`
		Details map[string]any  `json:"details"`
		Result  controls.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "CANCEL_INCOMPLETE", body.Code)
	assert.Equal(t, []any{"b"}, body.Details["failed_ids"])
	require.NotNil(t, body.Result.Cancellation)
	assert.Equal(t, []string{"a"}, body.Result.Cancellation.Cancelled)
}
