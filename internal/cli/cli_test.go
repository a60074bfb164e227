package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/herald/pkg/auth"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	// Keep tests away from the real home directory config.
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestModeStatusText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"mode":"crisis","paused":true,"notes":"incident","updated_by":"admin-1",
			"last_updated_at":"2026-03-01T09:00:00Z","can_schedule":false,"can_publish":false,"can_create":false}`))
	}))
	defer srv.Close()

	out, err := run(t, "--url", srv.URL, "--token", "secret-token", "mode", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "crisis (paused)")
	assert.Contains(t, out, "can create:   no")
	assert.Contains(t, out, "notes: incident")
}

func TestModeCrisisPartialFailureReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/control/crisis", r.URL.Path)
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`{"error":"1 item could not be cancelled","code":"CANCEL_INCOMPLETE","details":{},
			"result":{"previous":{"mode":"normal","paused":false},"current":{"mode":"crisis","paused":true},
			"cancellation":{"cancelled":["a"],"failed":[{"item_id":"b","error":"boom"}]}}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--url", srv.URL, "mode", "crisis", "--notes", "incident")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crisis sweep incomplete")
	assert.Contains(t, out, "cancelled: 1 scheduled item(s)")
	assert.Contains(t, out, "failed b: boom")
}

func TestAuditListJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "content.approve", r.URL.Query().Get("action"))
		_, _ = w.Write([]byte(`{"records":[{"id":"r1","actor_id":"reviewer-1","action":"content.approve"}],"count":1}`))
	}))
	defer srv.Close()

	out, err := run(t, "--url", srv.URL, "-o", "json", "audit", "list", "--action", "content.approve")
	require.NoError(t, err)
	assert.Contains(t, out, `"actor_id": "reviewer-1"`)
}

func TestAnalyticsWorkflowText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/analytics/workflow", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = w.Write([]byte(`{"period":{"start":"2026-02-22T00:00:00Z","end":"2026-03-01T00:00:00Z","days":7},
			"content_metrics":{"total_items":3,"status_distribution":{"approved":2,"draft":1},"platform_distribution":{"twitter":3}},
			"approval_metrics":{"total_requests":4,"approved":2,"rejected":1,"changes_requested":1,"pending":0}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--url", srv.URL, "analytics", "workflow", "--days", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "Period: 2026-02-22 to 2026-03-01 (7 days)")
	assert.Regexp(t, `approved\s+2`, out)
	assert.Regexp(t, `twitter\s+3`, out)
	assert.Contains(t, out, "Review requests: 4  approved: 2  rejected: 1")
}

func TestTokenMint(t *testing.T) {
	out, err := run(t, "token", "mint", "--user", "admin-1", "--role", "admin", "--secret", "s3cret")
	require.NoError(t, err)

	claims, err := auth.ValidateJWT(strings.TrimSpace(out), []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.UserID)
	assert.Equal(t, "admin", claims.Role)

	_, err = run(t, "token", "mint", "--user", "x", "--role", "owner", "--secret", "s3cret")
	assert.Error(t, err)
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("2h", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, err = parseSince("2026-02-01T00:00:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = parseSince("last tuesday", now)
	assert.Error(t, err)
}

func TestConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herald", "config.yaml")
	require.NoError(t, SaveConfig(Config{URL: "http://file:1", Token: "file-token"}, path))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file:1", cfg.URL)

	t.Setenv("HERALD_TOKEN", "env-token")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HERALD_URL", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaultURL, cfg.URL)
}
