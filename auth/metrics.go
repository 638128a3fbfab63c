package auth

import (
	"context"

	"github.com/ceyewan/meshd/metrics"
)

// MetricVerifications 凭证校验计数，标签: method, status
const MetricVerifications = "auth_verifications_total"

type verifyCounter struct {
	c metrics.Counter
}

func newVerifyCounter(m metrics.Meter) verifyCounter {
	c, err := m.Counter(MetricVerifications, "Total number of credential verifications.")
	if err != nil {
		c, _ = metrics.Discard().Counter(MetricVerifications, "")
	}
	return verifyCounter{c: c}
}

func (v verifyCounter) observe(ctx context.Context, method string, err error) {
	status := "success"
	if err != nil {
		status = "rejected"
	}
	v.c.Inc(ctx, metrics.L("method", method), metrics.L("status", status))
}
