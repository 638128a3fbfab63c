package mesh

import (
	"context"

	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	MetricFrames          = "mesh_frames_total"
	MetricRoutingFailures = "mesh_routing_failures_total"
	MetricSendFailures    = "mesh_send_failures_total"
	MetricEndpoints       = "mesh_endpoints"
	MetricQueueDepth      = "mesh_queue_depth"
	MetricQueueDropped    = "mesh_queue_dropped_total"
)

type meshMetrics struct {
	frames          metrics.Counter
	routingFailures metrics.Counter
	sendFailures    metrics.Counter
	endpoints       metrics.Gauge
	queueDepth      metrics.Gauge
	queueDropped    metrics.Counter
}

func newMeshMetrics(m metrics.Meter) (*meshMetrics, error) {
	var (
		mm  meshMetrics
		err error
	)
	if mm.frames, err = m.Counter(MetricFrames, "Frames received from workers, by type."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricFrames)
	}
	if mm.routingFailures, err = m.Counter(MetricRoutingFailures, "Requests answered by the mesh with a routing failure status."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricRoutingFailures)
	}
	if mm.sendFailures, err = m.Counter(MetricSendFailures, "Frames dropped because the endpoint could not accept them."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricSendFailures)
	}
	if mm.endpoints, err = m.Gauge(MetricEndpoints, "Registered endpoints per service."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricEndpoints)
	}
	if mm.queueDepth, err = m.Gauge(MetricQueueDepth, "Queued normal priority requests per destination."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricQueueDepth)
	}
	if mm.queueDropped, err = m.Counter(MetricQueueDropped, "Queued requests dropped because the destination queue was full."); err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricQueueDropped)
	}
	return &mm, nil
}

func (m *meshMetrics) frame(f frame.Frame) {
	typ := string(f.Type())
	if _, ok := f.(*frame.Unknown); ok {
		typ = "unknown"
	}
	m.frames.Inc(context.Background(), metrics.L(metrics.LabelType, typ))
}

func (m *meshMetrics) routingFailure(status frame.Status) {
	m.routingFailures.Inc(context.Background(), metrics.L(metrics.LabelStatus, string(status)))
}

func (m *meshMetrics) sendFailure(service string) {
	m.sendFailures.Inc(context.Background(), metrics.L(metrics.LabelService, service))
}

func (m *meshMetrics) setEndpoints(service string, n int) {
	m.endpoints.Set(context.Background(), float64(n), metrics.L(metrics.LabelService, service))
}

func (m *meshMetrics) setQueueDepth(service string, n int) {
	m.queueDepth.Set(context.Background(), float64(n), metrics.L(metrics.LabelService, service))
}

func (m *meshMetrics) dropped(service string) {
	m.queueDropped.Inc(context.Background(), metrics.L(metrics.LabelService, service))
}
