package registry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/xerrors"
)

func newTestRegistry(t *testing.T, cfg *Config) (*etcdRegistry, *fakeEtcd) {
	t.Helper()
	fake := newFakeEtcd()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/test/services"
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = 10 * time.Millisecond
	}
	r, err := newRegistry(fake, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, fake
}

func instance(name, id string) *Instance {
	return &Instance{ID: id, Name: name, Endpoints: []string{"http://127.0.0.1:9000"}}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestNew(t *testing.T) {
	t.Run("nil 连接器", func(t *testing.T) {
		r, err := New(nil, &Config{})
		assert.ErrorIs(t, err, ErrConnectorNil)
		assert.Nil(t, r)
	})

	t.Run("默认配置", func(t *testing.T) {
		r, _ := newTestRegistry(t, &Config{Namespace: "/a/b/"})
		assert.Equal(t, "/a/b", r.cfg.Namespace)
		assert.Equal(t, 30*time.Second, r.cfg.DefaultTTL)
		assert.Equal(t, 1024, r.cfg.CacheSize)
		assert.NotNil(t, r.cache)
	})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"namespace 不以 / 开头", Config{Namespace: "services"}},
		{"ttl 过短", Config{DefaultTTL: 500 * time.Millisecond}},
		{"自注册缺少地址", Config{SelfRegister: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newRegistry(newFakeEtcd(), &tt.cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		})
	}
}

func TestRegister(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{DisableCache: true})
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, instance("billing", "b-1"), 0))
	assert.True(t, fake.has("/test/services/billing/b-1"))

	err := r.Register(ctx, instance("billing", "b-1"), 0)
	assert.ErrorIs(t, err, ErrServiceAlreadyRegistered)

	invalid := []*Instance{
		nil,
		{Name: "billing"},
		{ID: "x"},
		{ID: "x", Name: "a/b"},
		{ID: "a/b", Name: "billing"},
	}
	for _, inst := range invalid {
		assert.ErrorIs(t, r.Register(ctx, inst, 0), ErrInvalidServiceInstance)
	}
	assert.ErrorIs(t, r.Register(ctx, instance("billing", "b-2"), 10*time.Millisecond), ErrInvalidTTL)
}

func TestRegister_PutFailureRevokesLease(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{DisableCache: true})
	fake.putErr = errPut

	err := r.Register(context.Background(), instance("billing", "b-1"), 0)
	assert.ErrorIs(t, err, xerrors.ErrUnavailable)
	assert.Len(t, fake.revokedLeases(), 1)
	assert.Empty(t, r.keepAlives)
}

func TestDeregister(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{DisableCache: true})
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, instance("billing", "b-1"), 0))
	require.NoError(t, r.Deregister(ctx, "b-1"))
	assert.False(t, fake.has("/test/services/billing/b-1"))

	assert.ErrorIs(t, r.Deregister(ctx, "b-1"), ErrServiceNotFound)
	assert.ErrorIs(t, r.Deregister(ctx, ""), ErrInvalidServiceInstance)
}

func TestGetService(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{DisableCache: true})
	ctx := context.Background()

	fake.put("/test/services/billing/b-2", mustJSON(t, instance("billing", "b-2")))
	fake.put("/test/services/billing/b-1", mustJSON(t, instance("billing", "b-1")))
	fake.put("/test/services/billing/broken", "{not json")
	fake.put("/test/services/billing-v2/c-1", mustJSON(t, instance("billing-v2", "c-1")))

	got, err := r.GetService(ctx, "billing")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-1", got[0].ID)
	assert.Equal(t, "b-2", got[1].ID)

	none, err := r.GetService(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = r.GetService(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidServiceInstance)
}

func TestGetService_Cache(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{CacheExpiration: time.Minute})
	ctx := context.Background()

	fake.put("/test/services/billing/b-1", mustJSON(t, instance("billing", "b-1")))

	// 等待后台 watch 建立，避免首次失效事件落在 watch 之前
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := r.GetService(ctx, "billing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	gets := fake.getCount()

	got, err = r.GetService(ctx, "billing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, gets, fake.getCount(), "第二次命中缓存")

	// 修改返回的切片不影响缓存
	got[0] = nil
	again, err := r.GetService(ctx, "billing")
	require.NoError(t, err)
	assert.NotNil(t, again[0])

	// 新实例出现后缓存被 watch 失效
	fake.put("/test/services/billing/b-2", mustJSON(t, instance("billing", "b-2")))
	assert.Eventually(t, func() bool {
		got, err := r.GetService(ctx, "billing")
		return err == nil && len(got) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestWatch(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{DisableCache: true})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := r.Watch(ctx, "billing")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		fake.mu.Lock()
		defer fake.mu.Unlock()
		return len(fake.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Register(context.Background(), instance("billing", "b-1"), 0))
	fake.put("/test/services/other/o-1", mustJSON(t, instance("other", "o-1")))
	require.NoError(t, r.Deregister(context.Background(), "b-1"))

	ev := <-events
	assert.Equal(t, EventTypePut, ev.Type)
	assert.Equal(t, "b-1", ev.Instance.ID)
	assert.Equal(t, []string{"http://127.0.0.1:9000"}, ev.Instance.Endpoints)

	ev = <-events
	assert.Equal(t, EventTypeDelete, ev.Type)
	assert.Equal(t, "b-1", ev.Instance.ID)
	assert.Equal(t, "billing", ev.Instance.Name)

	cancel()
	select {
	case _, ok := <-events:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("watch channel not closed after cancel")
	}
}

func TestKeepAliveLost(t *testing.T) {
	r, fake := newTestRegistry(t, &Config{DisableCache: true})
	require.NoError(t, r.Register(context.Background(), instance("billing", "b-1"), 0))

	r.mu.Lock()
	leaseID := r.keepAlives["b-1"].leaseID
	r.mu.Unlock()
	fake.expireLease(leaseID)

	assert.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.keepAlives["b-1"]
		return !ok
	}, time.Second, 5*time.Millisecond)

	// 租约丢失后允许重新注册
	require.NoError(t, r.Register(context.Background(), instance("billing", "b-1"), 0))
}

func TestClose(t *testing.T) {
	r, fake := newTestRegistry(t, nil)
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, instance("billing", "b-1"), 0))
	require.NoError(t, r.Register(ctx, instance("ledger", "l-1"), 0))

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	assert.Len(t, fake.revokedLeases(), 2)
	assert.False(t, fake.has("/test/services/billing/b-1"))

	assert.ErrorIs(t, r.Register(ctx, instance("billing", "b-2"), 0), ErrRegistryClosed)
	_, err := r.GetService(ctx, "billing")
	assert.ErrorIs(t, err, ErrRegistryClosed)
	_, err = r.Watch(ctx, "billing")
	assert.ErrorIs(t, err, xerrors.ErrClosed)
}

func TestParseKey(t *testing.T) {
	r, _ := newTestRegistry(t, &Config{DisableCache: true})

	name, id, ok := r.parseKey("/test/services/billing/b-1")
	assert.True(t, ok)
	assert.Equal(t, "billing", name)
	assert.Equal(t, "b-1", id)

	for _, key := range []string{
		"/other/billing/b-1",
		"/test/services/billing",
		"/test/services/billing/",
		"/test/services/billing/b-1/extra",
	} {
		_, _, ok := r.parseKey(key)
		assert.False(t, ok, key)
	}
}
