package breaker

import (
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	listeners []StateListener
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 设置指标，记录 breaker_state_changes_total
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithStateListener 注册状态变更回调，可多次调用
func WithStateListener(listener StateListener) Option {
	return func(o *options) {
		if listener != nil {
			o.listeners = append(o.listeners, listener)
		}
	}
}
