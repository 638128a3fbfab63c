// Package config 基于 Viper 加载 meshd 的配置。
//
// 配置优先级：环境变量 > .env > 环境特定配置 (meshd.<env>.yaml) > 基础配置 > 默认值。
// 环境变量使用 MESHD_ 前缀，层级以下划线分隔，例如 MESHD_MESH_QUEUE_MAX_DEPTH。
//
//	loader, err := config.New(nil, config.WithDefaults(defaults))
//	if err != nil {
//		return err
//	}
//	if err := loader.Load(ctx); err != nil {
//		return err
//	}
//	var cfg AppConfig
//	_ = loader.Unmarshal(&cfg)
//
//	ch, _ := loader.Watch(ctx, "log.level")
//	for event := range ch {
//		// 调整日志级别
//	}
package config

import (
	"context"
	"time"
)

// Loader 配置加载器
type Loader interface {
	// Load 加载配置并启动文件监听
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error

	// ConfigFileUsed 返回实际加载的配置文件路径，未找到时为空
	ConfigFileUsed() string
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
