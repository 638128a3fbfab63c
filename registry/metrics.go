package registry

import (
	"context"

	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	// MetricLookups 服务发现次数 (Counter)，outcome 为 hit、miss 或 error
	MetricLookups = "registry_lookups_total"

	// MetricRegistered 本进程持有租约的实例数 (Gauge)
	MetricRegistered = "registry_registered_instances"

	outcomeHit  = "hit"
	outcomeMiss = "miss"
)

type registryMetrics struct {
	lookups    metrics.Counter
	registered metrics.Gauge
}

func newRegistryMetrics(m metrics.Meter) (*registryMetrics, error) {
	lookups, err := m.Counter(MetricLookups, "Service lookups against the external catalog.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricLookups)
	}
	registered, err := m.Gauge(MetricRegistered, "Instances registered by this process.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricRegistered)
	}
	return &registryMetrics{lookups: lookups, registered: registered}, nil
}

func (m *registryMetrics) lookup(ctx context.Context, service, outcome string) {
	m.lookups.Inc(ctx, metrics.L(metrics.LabelService, service), metrics.L(metrics.LabelOutcome, outcome))
}

func (m *registryMetrics) setRegistered(n int) {
	m.registered.Set(context.Background(), float64(n))
}
