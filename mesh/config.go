package mesh

import (
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Config mesh 控制面配置
type Config struct {
	// MeshID 实例 ID，为空时启动时生成
	MeshID string `mapstructure:"mesh_id"`

	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Queue     QueueConfig     `mapstructure:"queue"`

	// InboxSize 事件循环入口缓冲，默认 1024
	InboxSize int `mapstructure:"inbox_size"`

	// RouteTTL 请求来源记录的保留时间，超时后响应按服务名路由，默认 5m
	RouteTTL time.Duration `mapstructure:"route_ttl"`

	// ShutdownMessage 关闭时随 mesh_shutdown 发送的消息
	ShutdownMessage string `mapstructure:"shutdown_message"`
}

// HeartbeatConfig 心跳配置
type HeartbeatConfig struct {
	// Interval 扫描与 ping 周期，默认 30s
	Interval time.Duration `mapstructure:"interval"`

	// Timeout 超过该时长无任何入站流量即标记为不健康，默认 60s
	Timeout time.Duration `mapstructure:"timeout"`

	// EvictAfter 超过该时长无流量则注销端点；0 表示从不注销
	EvictAfter time.Duration `mapstructure:"evict_after"`
}

// QueueConfig 普通优先级请求队列配置
type QueueConfig struct {
	// DrainInterval 出队周期，默认 1s
	DrainInterval time.Duration `mapstructure:"drain_interval"`

	// DrainBatch 每个目标每次最多出队数量，默认 10
	DrainBatch int `mapstructure:"drain_batch"`

	// MaxDepth 单个目标的队列上限，满时丢弃最旧的请求，默认 1000
	MaxDepth int `mapstructure:"max_depth"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = 30 * time.Second
	}
	if c.Heartbeat.Timeout == 0 {
		c.Heartbeat.Timeout = 60 * time.Second
	}
	if c.Queue.DrainInterval == 0 {
		c.Queue.DrainInterval = time.Second
	}
	if c.Queue.DrainBatch == 0 {
		c.Queue.DrainBatch = 10
	}
	if c.Queue.MaxDepth == 0 {
		c.Queue.MaxDepth = 1000
	}
	if c.InboxSize == 0 {
		c.InboxSize = 1024
	}
	if c.RouteTTL == 0 {
		c.RouteTTL = 5 * time.Minute
	}
	if c.ShutdownMessage == "" {
		c.ShutdownMessage = "mesh is shutting down"
	}
}

func (c *Config) validate() error {
	switch {
	case c.Heartbeat.Interval < 0:
		return xerrors.Wrap(ErrInvalidConfig, "heartbeat.interval must be positive")
	case c.Heartbeat.Timeout < 0:
		return xerrors.Wrap(ErrInvalidConfig, "heartbeat.timeout must be positive")
	case c.Heartbeat.EvictAfter < 0:
		return xerrors.Wrap(ErrInvalidConfig, "heartbeat.evict_after must not be negative")
	case c.Heartbeat.EvictAfter > 0 && c.Heartbeat.EvictAfter < c.Heartbeat.Timeout:
		return xerrors.Wrap(ErrInvalidConfig, "heartbeat.evict_after must not be shorter than heartbeat.timeout")
	case c.Queue.DrainInterval < 0:
		return xerrors.Wrap(ErrInvalidConfig, "queue.drain_interval must be positive")
	case c.Queue.DrainBatch < 0:
		return xerrors.Wrap(ErrInvalidConfig, "queue.drain_batch must be positive")
	case c.Queue.MaxDepth < 0:
		return xerrors.Wrap(ErrInvalidConfig, "queue.max_depth must be positive")
	case c.InboxSize < 0:
		return xerrors.Wrap(ErrInvalidConfig, "inbox_size must be positive")
	case c.RouteTTL < 0:
		return xerrors.Wrap(ErrInvalidConfig, "route_ttl must be positive")
	}
	return nil
}
