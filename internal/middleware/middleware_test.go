package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxel-nav/internal/logging"
)

func newRouter(t *testing.T, out *bytes.Buffer, reg *prometheus.Registry) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(NewRequestLogger(logging.NewWriterLogger("server", out, logging.DEBUG)).Handler())
	pm := NewPrometheusMiddleware("test", reg)
	r.Use(pm.Handler())
	pm.RegisterMetricsEndpoint(r, reg)

	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/fail", func(c *gin.Context) { c.String(http.StatusInternalServerError, "fail") })
	return r
}

func TestRequestLoggerSetsTraceID(t *testing.T) {
	var out bytes.Buffer
	r := newRouter(t, &out, prometheus.NewRegistry())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	traceID := rec.Header().Get("X-Trace-Id")
	require.NotEmpty(t, traceID, "каждый ответ получает trace id")
	assert.Contains(t, out.String(), "GET /ok 200")
	assert.Contains(t, out.String(), traceID)
}

func TestPrometheusCountsErrors(t *testing.T) {
	var out bytes.Buffer
	reg := prometheus.NewRegistry()
	r := newRouter(t, &out, reg)

	for _, path := range []string{"/ok", "/fail", "/fail"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `test_http_request_errors_total{method="GET",path="/fail",status="500"} 2`)
	assert.NotContains(t, body, `test_http_request_errors_total{method="GET",path="/ok"`)
	assert.Contains(t, body, "test_http_requests_inflight 1", "в момент выдачи метрик активен сам запрос /metrics")
}
