package proxy

import (
	"net/url"
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Config 外部代理配置
type Config struct {
	// Enabled 是否开放 /proxy 路由
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Timeout 单次上游调用超时（默认：10s）
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// MaxRequestBytes 调用方请求体上限，超出返回 413（默认：10 MiB）
	MaxRequestBytes int64 `mapstructure:"max_request_bytes" yaml:"max_request_bytes" json:"max_request_bytes"`

	// MaxResponseBytes 上游响应体上限（默认：10 MiB）
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" yaml:"max_response_bytes" json:"max_response_bytes"`

	// ForwardAuthorization 是否把调用方的 Authorization 头转发给上游，默认剥离
	ForwardAuthorization bool `mapstructure:"forward_authorization" yaml:"forward_authorization" json:"forward_authorization"`

	// Targets 静态外部服务目录，优先于 etcd 发现
	Targets []Target `mapstructure:"targets" yaml:"targets" json:"targets"`
}

// Target 一个外部服务及其地址
type Target struct {
	Name string   `mapstructure:"name" yaml:"name" json:"name"`
	URLs []string `mapstructure:"urls" yaml:"urls" json:"urls"`
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 10 << 20
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = 10 << 20
	}
}

func validateTarget(t Target) error {
	if t.Name == "" {
		return xerrors.Wrap(ErrInvalidConfig, "target name is empty")
	}
	if len(t.URLs) == 0 {
		return xerrors.Wrapf(ErrInvalidConfig, "target %s has no urls", t.Name)
	}
	for _, raw := range t.URLs {
		if err := validateURL(raw); err != nil {
			return xerrors.Wrapf(err, "target %s", t.Name)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return xerrors.Wrapf(ErrInvalidConfig, "parse %q: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return xerrors.Wrapf(ErrInvalidConfig, "url %q must be absolute http(s)", raw)
	}
	return nil
}
