package breaker

import "github.com/ceyewan/meshd/xerrors"

var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("breaker: config is nil")

	// ErrNameEmpty 熔断目标名为空
	ErrNameEmpty = xerrors.New("breaker: name is empty")
)
