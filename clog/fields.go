package clog

import (
	"log/slog"
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// Field 是 slog.Attr 的类型别名，实现零内存分配
type Field = slog.Attr

// String 创建字符串字段
func String(k, v string) Field {
	return slog.String(k, v)
}

// Int 创建整数字段
func Int(k string, v int) Field {
	return slog.Int(k, v)
}

// Float64 创建浮点数字段
func Float64(k string, v float64) Field {
	return slog.Float64(k, v)
}

// Bool 创建布尔字段
func Bool(k string, v bool) Field {
	return slog.Bool(k, v)
}

// Time 创建时间字段
func Time(k string, v time.Time) Field {
	return slog.Time(k, v)
}

// Int64 创建64位整数字段
func Int64(k string, v int64) Field {
	return slog.Int64(k, v)
}

// Duration 创建时间长度字段
func Duration(k string, v time.Duration) Field {
	return slog.Duration(k, v)
}

// Any 创建任意类型字段
func Any(k string, v any) Field {
	return slog.Any(k, v)
}

// Error 错误字段，输出 err_msg；错误链中带有 xerrors 错误码时同时输出 err_code
//
//	logger.Warn("proxy request failed", clog.Error(err))
//	// err_msg="proxy: circuit open: unavailable" err_code=circuit_open
func Error(err error) Field {
	if err == nil {
		return slog.String("", "")
	}
	if code := xerrors.GetCode(err); code != "" {
		// 空 key 的 Group 会被 slog 内联展开
		return slog.Group("", slog.String("err_msg", err.Error()), slog.String("err_code", code))
	}
	return slog.String("err_msg", err.Error())
}
