package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m Meter) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)

	c, err := m.Counter("x_total", "x")
	require.NoError(t, err)
	c.Inc(context.Background())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestCounterAndGaugeExported(t *testing.T) {
	m, err := New(&Config{Enabled: true, ServiceName: "meshd-test"})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	ctx := context.Background()
	frames, err := m.Counter("mesh_frames_total", "Frames received.")
	require.NoError(t, err)
	frames.Inc(ctx, L(LabelType, "ping"))
	frames.Add(ctx, 2, L(LabelType, "ping"))
	frames.Add(ctx, -5, L(LabelType, "ping"))

	depth, err := m.Gauge("mesh_queue_depth", "Queued requests.")
	require.NoError(t, err)
	depth.Inc(ctx, L(LabelService, "billing"))
	depth.Inc(ctx, L(LabelService, "billing"))
	depth.Dec(ctx, L(LabelService, "billing"))

	body := scrape(t, m)
	assert.Contains(t, body, "mesh_frames_total")
	assert.Contains(t, body, `type="ping"`)
	assert.Contains(t, body, "mesh_queue_depth")
	assert.Contains(t, body, `service="billing"`)
}

func TestRuntimeMetrics(t *testing.T) {
	m, err := New(&Config{Enabled: true, ServiceName: "meshd-test", Runtime: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	// 运行时指标由异步仪表在抓取时采集
	assert.Contains(t, scrape(t, m), "go_")
}

func TestHistogramWithBuckets(t *testing.T) {
	m, err := New(&Config{Enabled: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	h, err := m.Histogram("proxy_latency_seconds", "Proxy latency.", WithUnit("s"), WithBuckets([]float64{0.1, 1}))
	require.NoError(t, err)
	h.Record(context.Background(), 0.05)

	body := scrape(t, m)
	assert.Contains(t, body, "proxy_latency_seconds")
	assert.Contains(t, body, `le="0.1"`)
}

func TestHTTPStatusHelpers(t *testing.T) {
	assert.Equal(t, "2xx", HTTPStatusClass(204))
	assert.Equal(t, "5xx", HTTPStatusClass(503))
	assert.Equal(t, "unknown", HTTPStatusClass(42))
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(302))
	assert.Equal(t, OutcomeError, HTTPOutcome(404))
	assert.Equal(t, OutcomeSuccess, HTTPOutcome(http.StatusSwitchingProtocols))
}

type captureCounter struct {
	records [][]Label
}

func (c *captureCounter) Inc(_ context.Context, labels ...Label) {
	c.records = append(c.records, append([]Label(nil), labels...))
}

func (c *captureCounter) Add(ctx context.Context, _ float64, labels ...Label) {
	c.Inc(ctx, labels...)
}

type captureHistogram struct {
	records int
}

func (h *captureHistogram) Record(context.Context, float64, ...Label) {
	h.records++
}

func labelValue(labels []Label, key string) string {
	for _, l := range labels {
		if l.Key == key {
			return l.Value
		}
	}
	return ""
}

func TestHTTPMetricsGin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	counter := &captureCounter{}
	histogram := &captureHistogram{}
	httpMetrics := &HTTPMetrics{service: "meshd", requests: counter, duration: histogram}

	router := gin.New()
	router.Use(httpMetrics.Gin())
	router.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/mesh", func(c *gin.Context) { c.Status(http.StatusSwitchingProtocols) })

	for _, path := range []string{"/status", "/nope", "/mesh"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, counter.records, 3)
	// 升级请求不记录耗时
	assert.Equal(t, 2, histogram.records)
	assert.Equal(t, OutcomeSuccess, labelValue(counter.records[2], LabelOutcome))
	assert.Equal(t, "/status", labelValue(counter.records[0], LabelRoute))
	assert.Equal(t, OutcomeSuccess, labelValue(counter.records[0], LabelOutcome))
	assert.Equal(t, UnknownRoute, labelValue(counter.records[1], LabelRoute))
	assert.Equal(t, "4xx", labelValue(counter.records[1], LabelStatusClass))
}

func TestHTTPMetricsObserve(t *testing.T) {
	m, err := New(&Config{Enabled: true})
	require.NoError(t, err)
	defer m.Shutdown(context.Background())

	hm, err := NewHTTPMetrics(m, "meshd")
	require.NoError(t, err)
	hm.Observe(context.Background(), "get", "/status", 200, 10*time.Millisecond)

	body := scrape(t, m)
	assert.Contains(t, body, MetricHTTPRequests)
	assert.Contains(t, body, `method="GET"`)

	_, err = NewHTTPMetrics(nil, "meshd")
	assert.Error(t, err)
}
