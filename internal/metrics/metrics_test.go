package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func counterValue(t *testing.T, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, SessionTransitions.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func TestRecordTransition(t *testing.T) {
	before := counterValue(t, "IN_PROGRESS", "COMPLETED", "sweep")
	RecordTransition("IN_PROGRESS", "COMPLETED", "sweep")
	assert.Equal(t, before+1, counterValue(t, "IN_PROGRESS", "COMPLETED", "sweep"))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", PrometheusHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `http_requests_total{endpoint="/ping",method="GET",status="200"}`))
}
