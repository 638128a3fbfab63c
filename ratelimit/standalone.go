package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/xerrors"
)

// bucket 包装 rate.Limiter 并记录最后访问时间（UnixNano）
type bucket struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

type standaloneLimiter struct {
	cfg     *Config
	logger  clog.Logger
	metrics *limiterMetrics
	scope   string
	now     func() time.Time

	buckets sync.Map // map[string]*bucket
	count   atomic.Int64

	stopCh    chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newStandalone(cfg *Config, o options, m *limiterMetrics) *standaloneLimiter {
	l := &standaloneLimiter{
		cfg:     cfg,
		logger:  o.logger,
		metrics: m,
		scope:   o.scope,
		now:     o.now,
		stopCh:  make(chan struct{}),
	}
	go l.cleanup()

	l.logger.Info("standalone rate limiter created",
		clog.String("scope", l.scope),
		clog.Float64("rate", cfg.Rate),
		clog.Int("burst", cfg.Burst),
		clog.Duration("cleanup_interval", cfg.CleanupInterval),
		clog.Duration("idle_timeout", cfg.IdleTimeout))
	return l
}

func (l *standaloneLimiter) Allow(ctx context.Context, key string, limit Limit) (bool, error) {
	return l.AllowN(ctx, key, limit, 1)
}

func (l *standaloneLimiter) AllowN(ctx context.Context, key string, limit Limit, n int) (bool, error) {
	if err := l.check(key, limit); err != nil {
		return false, err
	}
	if n <= 0 {
		return false, xerrors.Wrapf(xerrors.ErrInvalidInput, "ratelimit: n must be positive, got %d", n)
	}

	now := l.now()
	b := l.bucketFor(key, limit, now)
	allowed := b.limiter.AllowN(now, n)
	l.metrics.observe(ctx, l.scope, allowed)

	if !allowed {
		l.logger.Debug("rate limit exceeded",
			clog.String("key", key),
			clog.Float64("rate", limit.Rate),
			clog.Int("burst", limit.Burst),
			clog.Int("requested", n))
	}
	return allowed, nil
}

func (l *standaloneLimiter) Wait(ctx context.Context, key string, limit Limit) error {
	if err := l.check(key, limit); err != nil {
		return err
	}
	b := l.bucketFor(key, limit, l.now())
	if err := b.limiter.Wait(ctx); err != nil {
		l.metrics.observe(ctx, l.scope, false)
		return xerrors.Wrapf(err, "ratelimit: wait %s", key)
	}
	l.metrics.observe(ctx, l.scope, true)
	return nil
}

func (l *standaloneLimiter) Forget(key string) {
	if _, loaded := l.buckets.LoadAndDelete(key); loaded {
		l.metrics.setBuckets(l.scope, int(l.count.Add(-1)))
	}
}

func (l *standaloneLimiter) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopCh)
	})
	return nil
}

func (l *standaloneLimiter) check(key string, limit Limit) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if key == "" {
		return ErrKeyEmpty
	}
	if !limit.Valid() {
		return ErrInvalidLimit
	}
	return nil
}

// bucketFor 获取或创建 key 的令牌桶。规则变化时原地调整速率和容量，保留已有令牌。
func (l *standaloneLimiter) bucketFor(key string, limit Limit, now time.Time) *bucket {
	if v, ok := l.buckets.Load(key); ok {
		b := v.(*bucket)
		b.lastSeen.Store(now.UnixNano())
		if b.limiter.Limit() != rate.Limit(limit.Rate) {
			b.limiter.SetLimitAt(now, rate.Limit(limit.Rate))
		}
		if b.limiter.Burst() != limit.Burst {
			b.limiter.SetBurstAt(now, limit.Burst)
		}
		return b
	}

	b := &bucket{limiter: rate.NewLimiter(rate.Limit(limit.Rate), limit.Burst)}
	// 新桶从 now 开始是满的
	b.limiter.AllowN(now, 0)
	b.lastSeen.Store(now.UnixNano())
	actual, loaded := l.buckets.LoadOrStore(key, b)
	if !loaded {
		l.metrics.setBuckets(l.scope, int(l.count.Add(1)))
	}
	return actual.(*bucket)
}

func (l *standaloneLimiter) cleanup() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := l.evictIdle(l.now()); n > 0 {
				l.logger.Debug("evicted idle buckets", clog.Int("count", n))
			}
		case <-l.stopCh:
			return
		}
	}
}

// evictIdle 删除空闲超过 IdleTimeout 的令牌桶，返回删除数量
func (l *standaloneLimiter) evictIdle(now time.Time) int {
	cutoff := now.Add(-l.cfg.IdleTimeout).UnixNano()
	n := 0
	l.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastSeen.Load() < cutoff {
			if _, loaded := l.buckets.LoadAndDelete(key); loaded {
				l.count.Add(-1)
				n++
			}
		}
		return true
	})
	if n > 0 {
		l.metrics.setBuckets(l.scope, int(l.count.Load()))
	}
	return n
}
