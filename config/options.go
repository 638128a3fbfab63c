package config

import "github.com/ceyewan/meshd/clog"

// Option 配置加载器选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	defaults map[string]any
}

// WithLogger 注入日志记录器，组件会自动添加 "config" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("config")
		}
	}
}

// WithDefaults 注册默认值，key 使用点分路径，例如 "mesh.heartbeat.interval"
//
// 注册过默认值的 key 才能被环境变量覆盖后通过 Unmarshal 读出。
func WithDefaults(defaults map[string]any) Option {
	return func(o *options) {
		if o.defaults == nil {
			o.defaults = make(map[string]any, len(defaults))
		}
		for k, v := range defaults {
			o.defaults[k] = v
		}
	}
}
