package event

import (
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
}

// WithLogger 设置 Logger，自动添加 namespace: "event"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("event")
		}
	}
}

// WithMeter 设置指标，记录 mesh_events_published_total
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}
