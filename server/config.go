package server

import (
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Config HTTP 与 websocket 入口配置
//
//	server:
//	  addr: ":8080"
//	  send_buffer: 256
//	  status_auth: true
type Config struct {
	// Addr 监听地址（默认：":8080"）
	Addr string `mapstructure:"addr" json:"addr" yaml:"addr"`

	// ReadHeaderTimeout HTTP 读头超时（默认：5s）
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" json:"read_header_timeout" yaml:"read_header_timeout"`

	// ShutdownTimeout 优雅关闭等待时长（默认：10s）
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// WriteTimeout 单帧写超时（默认：10s）
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`

	// SendBuffer 每个连接的发送缓冲帧数，满后新帧被丢弃（默认：256）
	SendBuffer int `mapstructure:"send_buffer" json:"send_buffer" yaml:"send_buffer"`

	// MaxMessageBytes 单条入站消息上限（默认：1 MiB）
	MaxMessageBytes int64 `mapstructure:"max_message_bytes" json:"max_message_bytes" yaml:"max_message_bytes"`

	// StatusAuth /status 是否要求 admin 凭证
	StatusAuth bool `mapstructure:"status_auth" json:"status_auth" yaml:"status_auth"`

	// AllowedOrigins websocket 允许的 Origin，为空时不校验
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`

	// MetricsPath Prometheus 抓取路径（默认："/metrics"）
	MetricsPath string `mapstructure:"metrics_path" json:"metrics_path" yaml:"metrics_path"`
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 5 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
}

func (c *Config) validate() error {
	if c.MetricsPath[0] != '/' {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "server: metrics_path %q must start with /", c.MetricsPath)
	}
	return nil
}
