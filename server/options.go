package server

import (
	"context"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/proxy"
	"github.com/ceyewan/meshd/ratelimit"
)

// Option 组件初始化选项函数
type Option func(*options)

// HealthCheck /healthz 中的一项依赖检查
type HealthCheck func(ctx context.Context) error

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	exposeMeter  bool
	authn        auth.Authenticator
	frameLimiter ratelimit.Limiter
	frameLimit   ratelimit.Limit
	proxy        *proxy.Proxy
	proxyLimiter ratelimit.Limiter
	proxyLimit   ratelimit.Limit
	checks       map[string]HealthCheck
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "server"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("server")
		}
	}
}

// WithMeter 设置指标，同时开放 Prometheus 抓取路由
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
		o.exposeMeter = meter != nil
	}
}

// WithAuthenticator 设置 /status 使用的认证器，仅在 StatusAuth 为 true 时生效
func WithAuthenticator(a auth.Authenticator) Option {
	return func(o *options) {
		o.authn = a
	}
}

// WithFrameLimiter 按端点限制入站帧速率，超限的帧被丢弃
func WithFrameLimiter(l ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(o *options) {
		o.frameLimiter = l
		o.frameLimit = limit
	}
}

// WithProxy 开放 ANY /proxy/:service/*path，l 为 nil 时不限流
func WithProxy(p *proxy.Proxy, l ratelimit.Limiter, limit ratelimit.Limit) Option {
	return func(o *options) {
		o.proxy = p
		o.proxyLimiter = l
		o.proxyLimit = limit
	}
}

// WithHealthCheck 注册 /healthz 中的依赖检查，如 etcd、nats 连接器
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(o *options) {
		if o.checks == nil {
			o.checks = make(map[string]HealthCheck)
		}
		o.checks[name] = check
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
	if o.frameLimiter == nil {
		o.frameLimiter = ratelimit.Discard()
	}
	return o
}
