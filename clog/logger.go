// Package clog 是 meshd 的结构化日志组件，底层基于 log/slog。
//
// 组件通过 Option 派生命名空间 Logger，例如 mesh 循环使用 "meshd.mesh"，
// HTTP 入口使用 "meshd.server"。日志级别可以在运行时通过 SetLevel 调整，
// config 热更新时会调用它。
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"},
//	    clog.WithNamespace("meshd"),
//	)
//	logger.Info("endpoint registered", clog.String("service", "billing"))
package clog

import "context"

// Logger 结构化日志接口
//
// *Context 方法在设置 WithTraceContext 时附带 ctx 中 Span 的 trace_id 与 span_id，
// 代理请求与事件发布的日志借此与链路对应。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal 写日志后退出进程，只允许在 main 中使用
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 返回带预设字段的子 Logger，例如每个 websocket 连接带上 endpoint 与 service
	With(fields ...Field) Logger

	// WithNamespace 在现有命名空间后追加，"meshd" + "server" 得到 "meshd.server"
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整级别，对所有派生 Logger 生效
	SetLevel(level Level) error

	// Flush 刷新缓冲；当前 Handler 同步写入，为空操作
	Flush()
}
