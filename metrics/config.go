package metrics

// Config 指标系统配置
//
//	metrics:
//	  enabled: true
//	  service_name: "meshd"
//	  version: "v0.1.0"
//	  path: "/metrics"
//	  runtime: true
//
// 指标通过 HTTP 服务上的 Path 暴露，不再单独监听端口。
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 写入 OpenTelemetry Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`

	// Version 写入 OpenTelemetry Resource 的 service.version
	Version string `mapstructure:"version"`

	// Path Prometheus 抓取路径，必须以 "/" 开头
	Path string `mapstructure:"path"`

	// Runtime 是否采集 Go 运行时指标（goroutine、GC、内存）
	Runtime bool `mapstructure:"runtime"`
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "meshd"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
}
