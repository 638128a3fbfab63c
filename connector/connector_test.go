package connector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/xerrors"
)

func TestEtcdConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *EtcdConfig
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "missing endpoints", cfg: &EtcdConfig{}, wantErr: true},
		{name: "negative dial timeout", cfg: &EtcdConfig{Endpoints: []string{"127.0.0.1:2379"}, DialTimeout: -time.Second}, wantErr: true},
		{name: "valid", cfg: &EtcdConfig{Endpoints: []string{"127.0.0.1:2379"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConfig)
				assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "default", tt.cfg.Name)
			assert.Equal(t, 5*time.Second, tt.cfg.DialTimeout)
			assert.Equal(t, 10*time.Second, tt.cfg.KeepAliveTime)
			assert.Equal(t, 3*time.Second, tt.cfg.KeepAliveTimeout)
		})
	}
}

func TestNATSConfigValidation(t *testing.T) {
	var nilCfg *NATSConfig
	assert.ErrorIs(t, nilCfg.validate(), ErrConfig)
	assert.ErrorIs(t, (&NATSConfig{}).validate(), ErrConfig)

	cfg := &NATSConfig{URL: "nats://127.0.0.1:4222", Name: "events"}
	require.NoError(t, cfg.validate())
	assert.Equal(t, "events", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 60, cfg.MaxReconnects)
	assert.Equal(t, 2*time.Second, cfg.ReconnectWait)
	assert.Equal(t, 2*time.Minute, cfg.PingInterval)
	assert.Equal(t, 2, cfg.MaxPingsOut)
}

func TestNewDoesNotConnect(t *testing.T) {
	etcd, err := NewEtcd(&EtcdConfig{Name: "catalog", Endpoints: []string{"127.0.0.1:1"}}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	assert.Equal(t, "catalog", etcd.Name())
	assert.Nil(t, etcd.GetClient())
	assert.False(t, etcd.IsHealthy())

	nc, err := NewNATS(&NATSConfig{Name: "events", URL: "nats://127.0.0.1:1"}, WithMeter(metrics.Discard()))
	require.NoError(t, err)
	assert.Equal(t, "events", nc.Name())
	assert.Nil(t, nc.GetClient())
	assert.False(t, nc.IsHealthy())
}

func TestHealthCheckWithoutConnect(t *testing.T) {
	ctx := context.Background()

	etcd, err := NewEtcd(&EtcdConfig{Endpoints: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	assert.ErrorIs(t, etcd.HealthCheck(ctx), ErrNotConnected)

	nc, err := NewNATS(&NATSConfig{URL: "nats://127.0.0.1:1"})
	require.NoError(t, err)
	assert.ErrorIs(t, nc.HealthCheck(ctx), ErrNotConnected)
	assert.True(t, xerrors.Is(nc.HealthCheck(ctx), xerrors.ErrUnavailable))
}

func TestCloseIsIdempotent(t *testing.T) {
	etcd, err := NewEtcd(&EtcdConfig{Endpoints: []string{"127.0.0.1:1"}})
	require.NoError(t, err)
	assert.NoError(t, etcd.Close())
	assert.NoError(t, etcd.Close())

	nc, err := NewNATS(&NATSConfig{URL: "nats://127.0.0.1:1"})
	require.NoError(t, err)
	assert.NoError(t, nc.Close())
	assert.NoError(t, nc.Close())
}

func TestConnectFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nc, err := NewNATS(&NATSConfig{URL: "nats://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	err = nc.Connect(ctx)
	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, nc.IsHealthy())
	assert.Nil(t, nc.GetClient())

	etcd, err := NewEtcd(&EtcdConfig{Endpoints: []string{"127.0.0.1:1"}, DialTimeout: 200 * time.Millisecond})
	require.NoError(t, err)
	err = etcd.Connect(ctx)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Nil(t, etcd.GetClient())
}

func TestConcurrentAccessBeforeConnect(t *testing.T) {
	nc, err := NewNATS(&NATSConfig{URL: "nats://127.0.0.1:1"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = nc.IsHealthy()
			_ = nc.GetClient()
			_ = nc.HealthCheck(context.Background())
		}()
	}
	wg.Wait()
}
