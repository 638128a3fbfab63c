package server

import (
	"context"

	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	// MetricConnections 当前 websocket 连接数 (Gauge)
	MetricConnections = "server_connections"

	// MetricFramesDropped 入站帧丢弃数 (Counter)，reason 为 malformed 或 rate_limited
	MetricFramesDropped = "server_frames_dropped_total"

	labelReason = "reason"

	reasonMalformed   = "malformed"
	reasonRateLimited = "rate_limited"
)

type serverMetrics struct {
	http        *metrics.HTTPMetrics
	connections metrics.Gauge
	dropped     metrics.Counter
}

func newServerMetrics(m metrics.Meter) (*serverMetrics, error) {
	httpMetrics, err := metrics.NewHTTPMetrics(m, "meshd")
	if err != nil {
		return nil, err
	}
	connections, err := m.Gauge(MetricConnections, "Open websocket connections.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricConnections)
	}
	dropped, err := m.Counter(MetricFramesDropped, "Inbound frames dropped before reaching the mesh.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricFramesDropped)
	}
	return &serverMetrics{http: httpMetrics, connections: connections, dropped: dropped}, nil
}

func (m *serverMetrics) drop(ctx context.Context, reason string) {
	m.dropped.Inc(ctx, metrics.L(labelReason, reason))
}
