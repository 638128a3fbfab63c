package main

import (
	"context"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/breaker"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/config"
	"github.com/ceyewan/meshd/connector"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/mesh"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/proxy"
	"github.com/ceyewan/meshd/ratelimit"
	"github.com/ceyewan/meshd/registry"
	"github.com/ceyewan/meshd/server"
	"github.com/ceyewan/meshd/trace"
	"github.com/ceyewan/meshd/xerrors"
)

// AppConfig meshd 进程的完整配置
//
// etcd 仅在 registry.enabled 时连接，nats 仅在 events.enabled 时连接。
type AppConfig struct {
	Log       clog.Config          `mapstructure:"log"`
	Server    server.Config        `mapstructure:"server"`
	Mesh      mesh.Config          `mapstructure:"mesh"`
	Breaker   breaker.Config       `mapstructure:"breaker"`
	Auth      auth.Config          `mapstructure:"auth"`
	Metrics   metrics.Config       `mapstructure:"metrics"`
	RateLimit RateLimitConfig      `mapstructure:"ratelimit"`
	Proxy     proxy.Config         `mapstructure:"proxy"`
	Etcd      connector.EtcdConfig `mapstructure:"etcd"`
	Registry  registry.Config      `mapstructure:"registry"`
	NATS      connector.NATSConfig `mapstructure:"nats"`
	Events    event.Config         `mapstructure:"events"`
	Trace     trace.Config         `mapstructure:"trace"`
}

// RateLimitConfig 两个独立的限流作用域
type RateLimitConfig struct {
	// Frames 按端点限制入站帧
	Frames ratelimit.Config `mapstructure:"frames"`
	// Proxy 按客户端 IP 限制代理请求
	Proxy ratelimit.Config `mapstructure:"proxy"`
}

// defaults 只列出需要被环境变量覆盖的 key，其余默认值由各组件 setDefaults 填充
var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "json",
	"log.output": "stdout",

	"server.addr":        ":8080",
	"server.status_auth": false,

	"mesh.mesh_id":               "",
	"mesh.heartbeat.interval":    "30s",
	"mesh.heartbeat.timeout":     "60s",
	"mesh.heartbeat.evict_after": "0s",
	"mesh.queue.drain_interval":  "1s",
	"mesh.queue.drain_batch":     10,
	"mesh.queue.max_depth":       1000,

	"breaker.threshold":           5,
	"breaker.timeout":             "60s",
	"breaker.half_open_successes": 3,

	"auth.mode":           auth.ModeSharedSecret,
	"auth.secret":         "",
	"auth.jwt.secret_key": "",
	"auth.jwt.issuer":     "meshd",

	"metrics.enabled":      true,
	"metrics.service_name": "meshd",
	"metrics.runtime":      true,

	"ratelimit.frames.enabled": false,
	"ratelimit.frames.rate":    100,
	"ratelimit.frames.burst":   200,
	"ratelimit.proxy.enabled":  false,
	"ratelimit.proxy.rate":     50,
	"ratelimit.proxy.burst":    100,

	"proxy.enabled": false,
	"proxy.timeout": "10s",

	"etcd.endpoints": []string{"127.0.0.1:2379"},

	"registry.enabled":       false,
	"registry.namespace":     "/meshd/services",
	"registry.self_register": false,
	"registry.advertise":     "",

	"nats.url": "nats://127.0.0.1:4222",

	"events.enabled":        false,
	"events.subject_prefix": "mesh.events",

	"trace.enabled":      false,
	"trace.service_name": "meshd",
	"trace.endpoint":     "localhost:4317",
	"trace.sampler":      1.0,
	"trace.insecure":     true,
}

// loadConfig 加载 meshd.yaml、.env 与 MESHD_ 环境变量
func loadConfig(ctx context.Context, cfg *config.Config, logger clog.Logger) (*AppConfig, config.Loader, error) {
	loader, err := config.New(cfg, config.WithDefaults(defaults), config.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	if err := loader.Load(ctx); err != nil {
		return nil, nil, err
	}

	var app AppConfig
	if err := loader.Unmarshal(&app); err != nil {
		return nil, nil, xerrors.Wrap(err, "unmarshal config")
	}
	if err := app.validate(); err != nil {
		return nil, nil, err
	}
	return &app, loader, nil
}

func (c *AppConfig) validate() error {
	if c.Registry.SelfRegister && !c.Registry.Enabled {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "registry.self_register requires registry.enabled")
	}
	return nil
}
