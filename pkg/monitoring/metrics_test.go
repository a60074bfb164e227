package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorsAreIsolated(t *testing.T) {
	a := NewMetricsCollector("herald-test", "v1", "abc")
	b := NewMetricsCollector("herald-test", "v1", "abc")

	a.NewCounter("things_total", "things", []string{"kind"}).WithLabelValues("x").Inc()
	b.NewCounter("things_total", "things", []string{"kind"})

	if n := testutil.CollectAndCount(a.Registry(), "herald_test_things_total"); n != 1 {
		t.Fatalf("expected one series on a, got %d", n)
	}
	if n := testutil.CollectAndCount(b.Registry(), "herald_test_things_total"); n != 0 {
		t.Fatalf("expected no series on b, got %d", n)
	}
}

func TestMetricsMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mc := NewMetricsCollector("svc", "v1", "abc")

	r := gin.New()
	r.Use(mc.MetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", mc.Handler())

	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/ping", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	w := httptest.NewRecorder()
	req, _ = http.NewRequestWithContext(context.Background(), "GET", "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `svc_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`) {
		t.Fatalf("expected request counter in output, got:\n%s", w.Body.String())
	}
}
