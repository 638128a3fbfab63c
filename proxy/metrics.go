package proxy

import (
	"context"
	"time"

	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	// MetricRequests 代理请求数 (Counter)
	MetricRequests = "proxy_requests_total"

	// MetricDuration 上游调用耗时 (Histogram)
	MetricDuration = "proxy_request_duration_seconds"

	OutcomeSuccess     = metrics.OutcomeSuccess
	OutcomeError       = metrics.OutcomeError
	OutcomeCircuitOpen = "circuit_open"
	OutcomeNotFound    = "not_found"
)

type proxyMetrics struct {
	requests metrics.Counter
	duration metrics.Histogram
}

func newProxyMetrics(m metrics.Meter) (*proxyMetrics, error) {
	requests, err := m.Counter(MetricRequests, "Proxied requests to external services.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricRequests)
	}
	duration, err := m.Histogram(MetricDuration, "Upstream call latency for proxied requests.",
		metrics.WithUnit("s"))
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricDuration)
	}
	return &proxyMetrics{requests: requests, duration: duration}, nil
}

func (m *proxyMetrics) observe(ctx context.Context, service, outcome string) {
	m.requests.Inc(ctx,
		metrics.L(metrics.LabelService, service),
		metrics.L(metrics.LabelOutcome, outcome))
}

func (m *proxyMetrics) latency(ctx context.Context, service string, d time.Duration) {
	m.duration.Record(ctx, d.Seconds(), metrics.L(metrics.LabelService, service))
}
