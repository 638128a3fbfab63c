// Package ratelimit 提供基于令牌桶的进程内限流器。
//
// meshd 用它限制单个端点的入站帧速率，以及 /proxy 入口的 HTTP 请求速率。
// 限流器按 key 维护独立的令牌桶，空闲超过 IdleTimeout 的桶会被后台回收。
//
//	limiter, _ := ratelimit.NewStandalone(&ratelimit.Config{
//	    Rate:  50,
//	    Burst: 100,
//	}, ratelimit.WithLogger(logger), ratelimit.WithMeter(meter))
//	defer limiter.Close()
//
//	if ok, _ := limiter.Allow(ctx, endpointID, cfg.Limit()); !ok {
//	    // 丢弃该帧
//	}
package ratelimit

import (
	"context"
	"time"
)

// Limit 令牌桶规则
type Limit struct {
	Rate  float64 // 每秒生成的令牌数
	Burst int     // 桶容量
}

// Valid 规则是否可用
func (l Limit) Valid() bool {
	return l.Rate > 0 && l.Burst > 0
}

// Limiter 限流器接口
type Limiter interface {
	// Allow 尝试获取 1 个令牌，不阻塞
	Allow(ctx context.Context, key string, limit Limit) (bool, error)

	// AllowN 尝试获取 n 个令牌，不阻塞
	AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error)

	// Wait 阻塞直到拿到 1 个令牌或 ctx 结束
	Wait(ctx context.Context, key string, limit Limit) error

	// Forget 丢弃 key 对应的令牌桶，端点断开时调用
	Forget(key string)

	// Close 停止后台回收
	Close() error
}

// Config 限流配置
type Config struct {
	// Enabled 为 false 时使用 Discard
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	// Rate 每个 key 每秒允许的请求或帧数（默认：100）
	Rate float64 `mapstructure:"rate" json:"rate" yaml:"rate"`

	// Burst 桶容量（默认：200）
	Burst int `mapstructure:"burst" json:"burst" yaml:"burst"`

	// CleanupInterval 回收空闲令牌桶的间隔（默认：1 分钟）
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval" yaml:"cleanup_interval"`

	// IdleTimeout 令牌桶空闲超时（默认：5 分钟）
	IdleTimeout time.Duration `mapstructure:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
}

func (c *Config) setDefaults() {
	if c.Rate <= 0 {
		c.Rate = 100
	}
	if c.Burst <= 0 {
		c.Burst = 200
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 5 * time.Minute
	}
}

// Limit 返回配置对应的规则
func (c *Config) Limit() Limit {
	if c == nil {
		return Limit{}
	}
	return Limit{Rate: c.Rate, Burst: c.Burst}
}

// New 根据配置创建限流器，未启用时返回 Discard
func New(cfg *Config, opts ...Option) (Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if !cfg.Enabled {
		return Discard(), nil
	}
	return NewStandalone(cfg, opts...)
}

// NewStandalone 创建单机限流器。cfg 为 nil 时使用默认值。
func NewStandalone(cfg *Config, opts ...Option) (Limiter, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if c.IdleTimeout < c.CleanupInterval {
		return nil, ErrInvalidConfig
	}

	o := applyOptions(opts)
	m, err := newLimiterMetrics(o.meter)
	if err != nil {
		return nil, err
	}
	return newStandalone(&c, o, m), nil
}

// Discard 返回一个永远放行的限流器
func Discard() Limiter {
	return noopLimiter{}
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string, Limit) (bool, error) { return true, nil }

func (noopLimiter) AllowN(context.Context, string, Limit, int) (bool, error) { return true, nil }

func (noopLimiter) Wait(context.Context, string, Limit) error { return nil }

func (noopLimiter) Forget(string) {}

func (noopLimiter) Close() error { return nil }
