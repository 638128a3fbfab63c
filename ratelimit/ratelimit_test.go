package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

func TestDiscard(t *testing.T) {
	l := Discard()
	ctx := context.Background()

	ok, err := l.Allow(ctx, "", Limit{Rate: -1, Burst: -1})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.AllowN(ctx, "k", Limit{}, 1000)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, l.Wait(ctx, "k", Limit{}))
	l.Forget("k")
	assert.NoError(t, l.Close())
}

func TestNew(t *testing.T) {
	t.Run("nil 配置", func(t *testing.T) {
		l, err := New(nil)
		assert.ErrorIs(t, err, ErrConfigNil)
		assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		assert.Nil(t, l)
	})

	t.Run("未启用返回 Discard", func(t *testing.T) {
		l, err := New(&Config{Enabled: false, Rate: 1, Burst: 1})
		require.NoError(t, err)
		assert.IsType(t, noopLimiter{}, l)
	})

	t.Run("启用", func(t *testing.T) {
		logger, err := clog.New(&clog.Config{Level: "error"})
		require.NoError(t, err)
		meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "ratelimit-test"})
		require.NoError(t, err)
		defer meter.Shutdown(context.Background())

		l, err := New(&Config{Enabled: true}, WithLogger(logger), WithMeter(meter), WithScope("frames"))
		require.NoError(t, err)
		defer l.Close()
		assert.IsType(t, &standaloneLimiter{}, l)

		ok, err := l.Allow(context.Background(), "ep", Limit{Rate: 1, Burst: 1})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("idle_timeout 小于 cleanup_interval", func(t *testing.T) {
		l, err := NewStandalone(&Config{CleanupInterval: time.Minute, IdleTimeout: time.Second})
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, l)
	})
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()

	assert.Equal(t, 100.0, cfg.Rate)
	assert.Equal(t, 200, cfg.Burst)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, Limit{Rate: 100, Burst: 200}, cfg.Limit())

	var nilCfg *Config
	assert.False(t, nilCfg.Limit().Valid())
}
