package ratelimit

import (
	"time"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	scope  string
	now    func() time.Time
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "ratelimit"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("ratelimit")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithScope 设置指标中的 scope 标签，用于区分多个限流器（如 frames、proxy）
func WithScope(scope string) Option {
	return func(o *options) {
		o.scope = scope
	}
}

func withClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	if o.scope == "" {
		o.scope = "default"
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}
