package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/meshd/xerrors"
)

const (
	MetricHTTPRequests        = "http_server_requests_total"
	MetricHTTPDurationSeconds = "http_server_request_duration_seconds"
)

var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics meshd HTTP 入口的请求数与耗时
//
// websocket 升级（101）只计数不记录耗时，耗时会覆盖整个连接生命周期。
type HTTPMetrics struct {
	service  string
	requests Counter
	duration Histogram
}

// NewHTTPMetrics 创建 HTTP 指标，service 写入 service 标签
func NewHTTPMetrics(m Meter, service string) (*HTTPMetrics, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "metrics: meter is nil")
	}
	if service = strings.TrimSpace(service); service == "" {
		service = "meshd"
	}

	requests, err := m.Counter(MetricHTTPRequests, "Total number of HTTP requests.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricHTTPRequests)
	}
	duration, err := m.Histogram(MetricHTTPDurationSeconds, "HTTP request duration in seconds.",
		WithUnit("s"), WithBuckets(httpDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricHTTPDurationSeconds)
	}
	return &HTTPMetrics{service: service, requests: requests, duration: duration}, nil
}

// Observe 记录一次请求，route 为路由模板而不是原始路径
func (h *HTTPMetrics) Observe(ctx context.Context, method, route string, status int, d time.Duration) {
	if h == nil {
		return
	}
	method = strings.ToUpper(method)
	if method == "" {
		method = http.MethodGet
	}
	if route == "" {
		route = UnknownRoute
	}

	labels := []Label{
		L(LabelService, h.service),
		L(LabelMethod, method),
		L(LabelRoute, route),
		L(LabelStatusClass, HTTPStatusClass(status)),
		L(LabelOutcome, HTTPOutcome(status)),
	}
	h.requests.Inc(ctx, labels...)
	if status != http.StatusSwitchingProtocols {
		h.duration.Record(ctx, d.Seconds(), labels...)
	}
}

// Gin 返回记录请求指标的中间件
func (h *HTTPMetrics) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// 未命中路由时 FullPath 为空，归入 unknown 以免原始路径成为标签
		h.Observe(c.Request.Context(), c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
