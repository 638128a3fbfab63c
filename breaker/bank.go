package breaker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
)

// entry 单个服务名的熔断器及附加计数
//
// failures/successes 与 gobreaker 内部计数分开维护：gobreaker 在每次状态切换时清零，
// 而快照需要的是自上次进入 closed 以来的累计值。
type entry struct {
	cb          *gobreaker.TwoStepCircuitBreaker[struct{}]
	forceTrip   bool
	failures    uint32
	successes   uint32
	lastFailure time.Time
}

type transition struct {
	name     string
	from, to State
}

// bank Bank 的实现
//
// 所有对 gobreaker 的调用都在 mu 内进行，OnStateChange 回调因此可以直接修改 entry。
type bank struct {
	cfg       *Config
	logger    clog.Logger
	listeners []StateListener
	changes   metrics.Counter

	mu      sync.Mutex
	entries map[string]*entry
	pending []transition
}

func newBank(cfg *Config, o *options) *bank {
	b := &bank{
		cfg:       cfg,
		logger:    o.logger,
		listeners: o.listeners,
		entries:   make(map[string]*entry),
	}
	if b.logger == nil {
		b.logger = clog.Discard()
	}

	meter := o.meter
	if meter == nil {
		meter = metrics.Discard()
	}
	changes, err := meter.Counter(MetricStateChanges, "Circuit breaker state transitions.")
	if err != nil {
		b.logger.Warn("create breaker metric failed", clog.Error(err))
		changes, _ = metrics.Discard().Counter(MetricStateChanges, "")
	}
	b.changes = changes

	return b
}

func (b *bank) IsOpen(name string) bool {
	if name == "" {
		return false
	}

	b.mu.Lock()
	e, ok := b.entries[name]
	open := ok && e.cb.State() == gobreaker.StateOpen
	b.mu.Unlock()

	b.flush()
	return open
}

func (b *bank) RecordFailure(name string) {
	if name == "" {
		return
	}

	b.mu.Lock()
	e := b.getOrCreate(name)
	e.failures++
	if done, err := e.cb.Allow(); err == nil {
		done(false)
	}
	b.mu.Unlock()

	b.flush()
}

func (b *bank) RecordSuccess(name string) {
	if name == "" {
		return
	}

	b.mu.Lock()
	e := b.getOrCreate(name)
	e.successes++
	if done, err := e.cb.Allow(); err == nil {
		done(true)
	}
	b.mu.Unlock()

	b.flush()
}

func (b *bank) ManualOpen(name string) {
	if name == "" {
		return
	}

	b.mu.Lock()
	e := b.getOrCreate(name)
	if e.cb.State() != gobreaker.StateOpen {
		e.forceTrip = true
		done, err := e.cb.Allow()
		if err != nil {
			// 半开探测名额已满：换一个新的熔断器再打开
			e.cb = b.newBreaker(name, e)
			done, err = e.cb.Allow()
		}
		if err == nil {
			done(false)
		}
		e.forceTrip = false
	}
	b.mu.Unlock()

	b.logger.Warn("circuit breaker opened manually", clog.String("service", name))
	b.flush()
}

func (b *bank) ManualClose(name string) {
	if name == "" {
		return
	}

	b.mu.Lock()
	e := b.getOrCreate(name)
	from := fromGobreaker(e.cb.State())
	e.cb = b.newBreaker(name, e)
	e.failures = 0
	e.successes = 0
	if from != StateClosed {
		b.pending = append(b.pending, transition{name: name, from: from, to: StateClosed})
	}
	b.mu.Unlock()

	b.logger.Info("circuit breaker closed manually", clog.String("service", name))
	b.flush()
}

func (b *bank) State(name string) (State, error) {
	if name == "" {
		return StateClosed, ErrNameEmpty
	}

	b.mu.Lock()
	state := StateClosed
	if e, ok := b.entries[name]; ok {
		state = fromGobreaker(e.cb.State())
	}
	b.mu.Unlock()

	b.flush()
	return state, nil
}

func (b *bank) Snapshot() []Status {
	b.mu.Lock()
	out := make([]Status, 0, len(b.entries))
	for name, e := range b.entries {
		out = append(out, Status{
			Name:        name,
			State:       fromGobreaker(e.cb.State()),
			Failures:    e.failures,
			Successes:   e.successes,
			LastFailure: e.lastFailure,
		})
	}
	b.mu.Unlock()

	b.flush()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// getOrCreate 调用方必须持有 mu
func (b *bank) getOrCreate(name string) *entry {
	if e, ok := b.entries[name]; ok {
		return e
	}
	e := &entry{}
	e.cb = b.newBreaker(name, e)
	b.entries[name] = e
	return e
}

func (b *bank) newBreaker(name string, e *entry) *gobreaker.TwoStepCircuitBreaker[struct{}] {
	threshold := b.cfg.Threshold
	return gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: b.cfg.HalfOpenSuccesses,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return e.forceTrip || counts.TotalFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.onStateChange(e, name, fromGobreaker(from), fromGobreaker(to))
		},
	})
}

// onStateChange 在 gobreaker 内部锁中被调用，此时 bank.mu 也已持有
func (b *bank) onStateChange(e *entry, name string, from, to State) {
	switch to {
	case StateOpen:
		// 与 gobreaker 判定半开超时使用同一个时钟
		e.lastFailure = time.Now()
	case StateHalfOpen:
		e.successes = 0
	case StateClosed:
		e.failures = 0
		e.successes = 0
	}
	b.pending = append(b.pending, transition{name: name, from: from, to: to})
}

// flush 在锁外分发状态变更
func (b *bank) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, t := range pending {
		b.logger.Info("circuit breaker state changed",
			clog.String("service", t.name),
			clog.String("from", t.from.String()),
			clog.String("to", t.to.String()))
		b.changes.Inc(context.Background(),
			metrics.L(LabelService, t.name),
			metrics.L(LabelFromState, t.from.String()),
			metrics.L(LabelToState, t.to.String()))
		for _, l := range b.listeners {
			l(t.name, t.from, t.to)
		}
	}
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
