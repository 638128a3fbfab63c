// Package breaker 为 mesh 提供按目标服务名划分的熔断器组。
//
// 每个服务名对应一个 gobreaker.TwoStepCircuitBreaker，首次记录结果时惰性创建，
// 进程生命周期内不会删除。状态机：
//
//	closed --(failures >= threshold)--> open
//	open --(timeout 过后首次访问)--> half-open
//	half-open --(任意一次失败)--> open
//	half-open --(连续 HalfOpenSuccesses 次成功)--> closed
//
// open 到 half-open 的转换是惰性的，在 IsOpen/Snapshot 等访问时发生，没有后台定时器。
//
// 基本使用：
//
//	bank, _ := breaker.New(&breaker.Config{Threshold: 5, Timeout: time.Minute},
//		breaker.WithLogger(logger),
//		breaker.WithStateListener(func(name string, from, to breaker.State) {
//			// 发布事件
//		}),
//	)
//	if bank.IsOpen("billing") {
//		// 回复 circuit_open
//	}
//	bank.RecordFailure("billing")
package breaker

import "time"

// Bank 熔断器组，所有方法均可并发调用
type Bank interface {
	// IsOpen 判断目标是否处于熔断中；不存在的熔断器视为 closed
	IsOpen(name string) bool

	// RecordFailure 记录一次失败
	RecordFailure(name string)

	// RecordSuccess 记录一次成功
	RecordSuccess(name string)

	// ManualOpen 管理员强制打开，忽略阈值
	ManualOpen(name string)

	// ManualClose 管理员强制关闭并清空计数
	ManualClose(name string)

	// State 返回指定目标的当前状态
	State(name string) (State, error)

	// Snapshot 返回所有熔断器的状态快照，按名称排序
	Snapshot() []Status
}

// State 熔断器状态
type State int

const (
	// StateClosed 闭合状态（正常）
	StateClosed State = iota
	// StateHalfOpen 半开状态（探测恢复）
	StateHalfOpen
	// StateOpen 打开状态（熔断中）
	StateOpen
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// MarshalText 使状态在 JSON 中以字符串输出
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status 单个熔断器的快照
type Status struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Failures    uint32    `json:"failures"`
	Successes   uint32    `json:"successes"`
	LastFailure time.Time `json:"last_failure,omitzero"`
}

// StateListener 状态变更回调，在 Bank 内部锁释放后调用
type StateListener func(name string, from, to State)

// New 创建熔断器组
func New(cfg *Config, opts ...Option) (Bank, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{logger: nil}
	for _, opt := range opts {
		opt(&o)
	}
	return newBank(cfg, &o), nil
}
