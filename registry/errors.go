package registry

import "github.com/ceyewan/meshd/xerrors"

var (
	// ErrConnectorNil 未提供 etcd 连接器或连接器尚未连接
	ErrConnectorNil = xerrors.Wrap(xerrors.ErrUnavailable, "registry: etcd client is not available")

	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "registry: invalid config")

	// ErrServiceNotFound 实例未由本进程注册
	ErrServiceNotFound = xerrors.Wrap(xerrors.ErrNotFound, "registry: service not found")

	// ErrServiceAlreadyRegistered 实例已注册
	ErrServiceAlreadyRegistered = xerrors.New("registry: service already registered")

	// ErrInvalidServiceInstance 实例缺少 ID、名称或名称中含有 "/"
	ErrInvalidServiceInstance = xerrors.Wrap(xerrors.ErrInvalidInput, "registry: invalid service instance")

	// ErrInvalidTTL 租约短于 1s
	ErrInvalidTTL = xerrors.Wrap(xerrors.ErrInvalidInput, "registry: invalid ttl")

	// ErrRegistryClosed registry 已关闭
	ErrRegistryClosed = xerrors.Wrap(xerrors.ErrClosed, "registry: closed")
)
