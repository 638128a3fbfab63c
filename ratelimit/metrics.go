package ratelimit

import (
	"context"

	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	// MetricAllowed 放行次数 (Counter)
	MetricAllowed = "ratelimit_allowed_total"

	// MetricDenied 拒绝次数 (Counter)
	MetricDenied = "ratelimit_denied_total"

	// MetricBuckets 当前令牌桶数量 (Gauge)
	MetricBuckets = "ratelimit_buckets"

	// LabelScope 限流器用途
	LabelScope = "scope"
)

type limiterMetrics struct {
	allowed metrics.Counter
	denied  metrics.Counter
	buckets metrics.Gauge
}

func newLimiterMetrics(m metrics.Meter) (*limiterMetrics, error) {
	var (
		lm  limiterMetrics
		err error
	)
	if lm.allowed, err = m.Counter(MetricAllowed, "Requests or frames admitted by the rate limiter."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricAllowed)
	}
	if lm.denied, err = m.Counter(MetricDenied, "Requests or frames rejected by the rate limiter."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricDenied)
	}
	if lm.buckets, err = m.Gauge(MetricBuckets, "Token buckets currently tracked."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricBuckets)
	}
	return &lm, nil
}

func (m *limiterMetrics) observe(ctx context.Context, scope string, allowed bool) {
	if allowed {
		m.allowed.Inc(ctx, metrics.L(LabelScope, scope))
		return
	}
	m.denied.Inc(ctx, metrics.L(LabelScope, scope))
}

func (m *limiterMetrics) setBuckets(scope string, n int) {
	m.buckets.Set(context.Background(), float64(n), metrics.L(LabelScope, scope))
}
