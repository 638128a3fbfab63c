package connector

import (
	"context"

	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	MetricConnectAttempts   = "connector_connect_attempts_total"
	MetricActiveConnections = "connector_active_connections"
)

// connMetrics 两类连接器共用的连接指标
type connMetrics struct {
	kind     string
	name     string
	attempts metrics.Counter
	active   metrics.Gauge
}

func newConnMetrics(meter metrics.Meter, kind, name string) (*connMetrics, error) {
	attempts, err := meter.Counter(MetricConnectAttempts, "Number of connector connect attempts.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricConnectAttempts)
	}
	active, err := meter.Gauge(MetricActiveConnections, "Whether the connector currently holds a connection.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricActiveConnections)
	}
	return &connMetrics{kind: kind, name: name, attempts: attempts, active: active}, nil
}

func (m *connMetrics) attempt(ctx context.Context, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	m.attempts.Inc(ctx,
		metrics.L("connector", m.kind),
		metrics.L("name", m.name),
		metrics.L(metrics.LabelOutcome, outcome),
	)
}

func (m *connMetrics) setActive(ctx context.Context, up bool) {
	val := 0.0
	if up {
		val = 1
	}
	m.active.Set(ctx, val, metrics.L("connector", m.kind), metrics.L("name", m.name))
}
