package breaker

import (
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Config 熔断器组配置
//
//	breaker:
//	  threshold: 5
//	  timeout: 60s
//	  half_open_successes: 3
type Config struct {
	// Threshold closed 状态下累计失败达到该值即打开（默认：5）
	Threshold uint32 `mapstructure:"threshold" json:"threshold" yaml:"threshold"`

	// Timeout 打开状态持续时间，之后首次访问进入半开（默认：60s）
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`

	// HalfOpenSuccesses 半开状态下关闭所需的连续成功次数（默认：3）
	HalfOpenSuccesses uint32 `mapstructure:"half_open_successes" json:"half_open_successes" yaml:"half_open_successes"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.HalfOpenSuccesses == 0 {
		c.HalfOpenSuccesses = 3
	}
}

func (c *Config) validate() error {
	if c.Timeout < 0 {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "breaker: timeout must be positive")
	}
	return nil
}
