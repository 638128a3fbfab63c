// Package testkit 提供测试用的公共依赖：日志、指标以及基于 testcontainers 的 etcd、NATS。
//
// 容器类辅助函数在 -short 模式或本机没有可用的 Docker 时跳过测试。
package testkit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

// Kit 包含通用的测试依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回一个包含默认依赖的测试工具包，Ctx 随测试结束取消
func NewKit(t *testing.T) *Kit {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	meter := NewMeter()
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })

	return &Kit{
		Ctx:    ctx,
		Logger: NewLogger(),
		Meter:  meter,
	}
}

// NewLogger 返回 error 级别的 console logger，测试输出保持安静
func NewLogger() clog.Logger {
	logger, err := clog.New(&clog.Config{Level: "error", Format: "console", Output: "stderr"})
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 返回一个独立 Registry 的 Meter
func NewMeter() metrics.Meter {
	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "meshd-test"})
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 返回一个带有超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// NewID 返回一个短的唯一 ID (UUID v4 前 8 位)，用于隔离测试间的 key 与 subject
func NewID() string {
	return uuid.New().String()[:8]
}

// DefaultWait 集成测试中等待异步结果的默认时长
const DefaultWait = 5 * time.Second
