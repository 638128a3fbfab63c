package mesh

import "github.com/ceyewan/meshd/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.Wrap(xerrors.ErrInvalidInput, "mesh: config is nil")

	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "mesh: invalid config")

	// ErrServiceNameRequired 握手未声明服务名
	ErrServiceNameRequired = xerrors.Wrap(xerrors.ErrInvalidInput, "mesh: service name required")

	// ErrClosed mesh 已停止
	ErrClosed = xerrors.Wrap(xerrors.ErrClosed, "mesh: closed")

	// ErrAlreadyRunning Run 被重复调用
	ErrAlreadyRunning = xerrors.New("mesh: already running")

	// ErrSendBufferFull 连接发送缓冲已满，帧被丢弃
	ErrSendBufferFull = xerrors.Wrap(xerrors.ErrUnavailable, "mesh: send buffer full")
)
