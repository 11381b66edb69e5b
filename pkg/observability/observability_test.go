package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupExposesOtelCounters(t *testing.T) {
	p, err := Setup(Config{ServiceName: "acm-chatbot-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	counter, err := p.Meter("test").Int64Counter("widgets_processed_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "widgets_processed_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTracerIsNoopWhenDisabled(t *testing.T) {
	p, err := Setup(Config{ServiceName: "acm-chatbot-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	_, span := p.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid())
}

func TestHTTPMetricsRecordsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	p, err := Setup(Config{ServiceName: "acm-chatbot-test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	mw, err := HTTPMetrics(p.Meter("http"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.GET("/things/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/things/42", nil))

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "http_requests_total")
	assert.Contains(t, body, `route="/things/:id"`)
	assert.Contains(t, body, "http_request_duration_seconds")
}
