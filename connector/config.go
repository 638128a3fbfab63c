package connector

import (
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// EtcdConfig Etcd 连接配置
type EtcdConfig struct {
	Name      string   `mapstructure:"name"`      // 连接器名称 (默认: "default")
	Endpoints []string `mapstructure:"endpoints"` // [必填] 连接地址列表
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`

	DialTimeout      time.Duration `mapstructure:"dial_timeout"`       // 默认 5s
	KeepAliveTime    time.Duration `mapstructure:"keep_alive_time"`    // 默认 10s
	KeepAliveTimeout time.Duration `mapstructure:"keep_alive_timeout"` // 默认 3s
}

func (c *EtcdConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.KeepAliveTime == 0 {
		c.KeepAliveTime = 10 * time.Second
	}
	if c.KeepAliveTimeout == 0 {
		c.KeepAliveTimeout = 3 * time.Second
	}
}

func (c *EtcdConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "etcd config is nil")
	}
	c.setDefaults()
	if len(c.Endpoints) == 0 {
		return xerrors.Wrap(ErrConfig, "etcd endpoints are required")
	}
	if c.DialTimeout < 0 {
		return xerrors.Wrap(ErrConfig, "etcd dial timeout must be positive")
	}
	return nil
}

// NATSConfig NATS 连接配置
type NATSConfig struct {
	Name     string `mapstructure:"name"` // 连接器名称 (默认: "default")
	URL      string `mapstructure:"url"`  // [必填] 如 "nats://127.0.0.1:4222"
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`

	Timeout       time.Duration `mapstructure:"timeout"`        // 默认 5s
	MaxReconnects int           `mapstructure:"max_reconnects"` // 默认 60
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"` // 默认 2s
	PingInterval  time.Duration `mapstructure:"ping_interval"`  // 默认 2m
	MaxPingsOut   int           `mapstructure:"max_pings_out"`  // 默认 2
}

func (c *NATSConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 60
	}
	if c.ReconnectWait == 0 {
		c.ReconnectWait = 2 * time.Second
	}
	if c.PingInterval == 0 {
		c.PingInterval = 2 * time.Minute
	}
	if c.MaxPingsOut == 0 {
		c.MaxPingsOut = 2
	}
}

func (c *NATSConfig) validate() error {
	if c == nil {
		return xerrors.Wrap(ErrConfig, "nats config is nil")
	}
	c.setDefaults()
	if c.URL == "" {
		return xerrors.Wrap(ErrConfig, "nats url is required")
	}
	return nil
}
