package trace

// Config 链路追踪配置
//
//	trace:
//	  enabled: true
//	  endpoint: "tempo:4317"
//	  sampler: 0.1
type Config struct {
	// Enabled 为 false 时只生成 TraceID，不导出
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 写入 Resource 的 service.name（默认："meshd"）
	ServiceName string `mapstructure:"service_name"`

	// Endpoint OTLP gRPC 地址（默认："localhost:4317"）
	Endpoint string `mapstructure:"endpoint"`

	// Sampler 根 Span 采样率，0 到 1（默认：1）
	Sampler float64 `mapstructure:"sampler"`

	// Batcher batch | simple（默认：batch）
	Batcher string `mapstructure:"batcher"`

	Insecure bool `mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}

func (c *Config) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "meshd"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4317"
	}
	if c.Batcher == "" {
		c.Batcher = "batch"
	}
}
