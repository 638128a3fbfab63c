package mesh

import (
	"time"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	events event.Publisher
	now    func() time.Time
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "mesh"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("mesh")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		if meter != nil {
			o.meter = meter
		}
	}
}

// WithEvents 设置事件发布者
func WithEvents(p event.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.events = p
		}
	}
}

// withClock 替换时钟（测试用）
func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger: clog.Discard(),
		meter:  metrics.Discard(),
		events: event.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
