package registry

import (
	"strings"
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Config Registry 组件配置
type Config struct {
	// Enabled 是否启用外部服务目录
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Namespace Etcd Key 前缀，默认 "/meshd/services"
	Namespace string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`

	// DefaultTTL 默认注册租约时长，默认 30s
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl" json:"default_ttl"`

	// RetryInterval watch 重连间隔，默认 1s
	RetryInterval time.Duration `mapstructure:"retry_interval" yaml:"retry_interval" json:"retry_interval"`

	// DisableCache 关闭本地发现缓存
	DisableCache bool `mapstructure:"disable_cache" yaml:"disable_cache" json:"disable_cache"`

	// CacheSize 缓存的服务名数量上限，默认 1024
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size" json:"cache_size"`

	// CacheExpiration 本地缓存过期时间，默认 10s
	CacheExpiration time.Duration `mapstructure:"cache_expiration" yaml:"cache_expiration" json:"cache_expiration"`

	// SelfRegister 是否把 meshd 自身的地址注册到 etcd
	SelfRegister bool `mapstructure:"self_register" yaml:"self_register" json:"self_register"`

	// Advertise 自注册时对外公布的地址，如 "http://10.0.0.5:8080"
	Advertise string `mapstructure:"advertise" yaml:"advertise" json:"advertise"`
}

func (c *Config) setDefaults() {
	if c.Namespace == "" {
		c.Namespace = "/meshd/services"
	}
	c.Namespace = strings.TrimSuffix(c.Namespace, "/")
	if c.DefaultTTL == 0 {
		c.DefaultTTL = 30 * time.Second
	}
	if c.RetryInterval == 0 {
		c.RetryInterval = time.Second
	}
	if c.CacheSize == 0 {
		c.CacheSize = 1024
	}
	if c.CacheExpiration == 0 {
		c.CacheExpiration = 10 * time.Second
	}
}

func (c *Config) validate() error {
	if !strings.HasPrefix(c.Namespace, "/") {
		return xerrors.Wrapf(ErrInvalidConfig, "namespace %q must start with /", c.Namespace)
	}
	if c.DefaultTTL < time.Second {
		return xerrors.Wrapf(ErrInvalidConfig, "default_ttl %s is shorter than 1s", c.DefaultTTL)
	}
	if c.RetryInterval < 0 || c.CacheSize < 0 || c.CacheExpiration < 0 {
		return xerrors.Wrap(ErrInvalidConfig, "negative interval or size")
	}
	if c.SelfRegister && c.Advertise == "" {
		return xerrors.Wrap(ErrInvalidConfig, "advertise is required when self_register is set")
	}
	return nil
}
