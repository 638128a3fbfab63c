package ratelimit

import "github.com/ceyewan/meshd/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: config is nil")

	// ErrInvalidConfig idle_timeout 小于 cleanup_interval
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: idle_timeout must not be shorter than cleanup_interval")

	// ErrKeyEmpty 限流键为空
	ErrKeyEmpty = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: key is empty")

	// ErrInvalidLimit 限流规则无效
	ErrInvalidLimit = xerrors.Wrap(xerrors.ErrInvalidInput, "ratelimit: invalid limit")

	// ErrClosed 限流器已关闭
	ErrClosed = xerrors.Wrap(xerrors.ErrClosed, "ratelimit: limiter closed")
)
