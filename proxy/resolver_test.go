package proxy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/registry"
	"github.com/ceyewan/meshd/xerrors"
)

type fakeRegistry struct {
	registry.Registry
	instances map[string][]*registry.Instance
	err       error
}

func (f *fakeRegistry) GetService(_ context.Context, name string) ([]*registry.Instance, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.instances[name], nil
}

func TestStaticResolver(t *testing.T) {
	r, err := NewStaticResolver([]Target{
		{Name: "billing", URLs: []string{"http://a:1", "http://b:2"}},
		{Name: "billing", URLs: []string{"https://c:3"}},
	})
	require.NoError(t, err)

	ctx := context.Background()
	var got []string
	for i := 0; i < 4; i++ {
		base, err := r.Resolve(ctx, "billing")
		require.NoError(t, err)
		got = append(got, base)
	}
	assert.Equal(t, []string{"http://a:1", "http://b:2", "https://c:3", "http://a:1"}, got)

	_, err = r.Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, ErrServiceNotFound)
}

func TestStaticResolver_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		target Target
	}{
		{"空名称", Target{URLs: []string{"http://a:1"}}},
		{"没有地址", Target{Name: "billing"}},
		{"相对地址", Target{Name: "billing", URLs: []string{"/api"}}},
		{"非 http 协议", Target{Name: "billing", URLs: []string{"ws://a:1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticResolver([]Target{tt.target})
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestRegistryResolver(t *testing.T) {
	reg := &fakeRegistry{instances: map[string][]*registry.Instance{
		"ledger": {
			{ID: "l-1", Name: "ledger", Endpoints: []string{"grpc://10.0.0.1:9000", "http://10.0.0.1:8080"}},
			{ID: "l-2", Name: "ledger", Endpoints: []string{"http://10.0.0.2:8080"}},
			{ID: "l-3", Name: "ledger", Endpoints: []string{"grpc://10.0.0.3:9000"}},
		},
	}}
	r := NewRegistryResolver(reg)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "ledger")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.1:8080", first)
	assert.Equal(t, "http://10.0.0.2:8080", second)

	_, err = r.Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	reg.err = registry.ErrRegistryClosed
	_, err = r.Resolve(ctx, "ledger")
	assert.ErrorIs(t, err, xerrors.ErrClosed)
}

func TestChain(t *testing.T) {
	static, err := NewStaticResolver([]Target{{Name: "billing", URLs: []string{"http://static:1"}}})
	require.NoError(t, err)
	reg := &fakeRegistry{instances: map[string][]*registry.Instance{
		"billing": {{ID: "b", Name: "billing", Endpoints: []string{"http://etcd:1"}}},
		"ledger":  {{ID: "l", Name: "ledger", Endpoints: []string{"http://etcd:2"}}},
	}}
	r := Chain(static, nil, NewRegistryResolver(reg))
	ctx := context.Background()

	base, err := r.Resolve(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, "http://static:1", base, "静态目录优先")

	base, err = r.Resolve(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, "http://etcd:2", base)

	_, err = r.Resolve(ctx, "ghost")
	assert.ErrorIs(t, err, ErrServiceNotFound)

	reg.err = xerrors.ErrUnavailable
	_, err = r.Resolve(ctx, "ledger")
	assert.ErrorIs(t, err, xerrors.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrServiceNotFound)
}
