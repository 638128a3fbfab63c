package proxy

import (
	"net/http"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	meter     metrics.Meter
	transport http.RoundTripper
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "proxy"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("proxy")
		}
	}
}

// WithMeter 设置指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTransport 替换上游调用使用的 RoundTripper
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
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
	if o.transport == nil {
		o.transport = http.DefaultTransport
	}
	return o
}
