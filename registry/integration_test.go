package registry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/registry"
	"github.com/ceyewan/meshd/testkit"
)

func TestEtcdRegistryIntegration(t *testing.T) {
	kit := testkit.NewKit(t)
	conn := testkit.NewEtcdConnector(t)

	reg, err := registry.New(conn, &registry.Config{
		Namespace:       "/it/" + testkit.NewID(),
		DefaultTTL:      5 * time.Second,
		CacheExpiration: time.Second,
	}, registry.WithLogger(kit.Logger), registry.WithMeter(kit.Meter))
	require.NoError(t, err)
	defer reg.Close()

	events, err := reg.Watch(kit.Ctx, "billing")
	require.NoError(t, err)

	inst := &registry.Instance{ID: "b-1", Name: "billing", Endpoints: []string{"http://10.0.0.1:8080"}}
	require.NoError(t, reg.Register(kit.Ctx, inst, 0))

	select {
	case ev := <-events:
		assert.Equal(t, registry.EventTypePut, ev.Type)
		assert.Equal(t, "b-1", ev.Instance.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no put event")
	}

	got, err := reg.GetService(kit.Ctx, "billing")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inst.Endpoints, got[0].Endpoints)

	require.NoError(t, reg.Deregister(kit.Ctx, "b-1"))
	select {
	case ev := <-events:
		assert.Equal(t, registry.EventTypeDelete, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no delete event")
	}

	assert.Eventually(t, func() bool {
		got, err := reg.GetService(kit.Ctx, "billing")
		return err == nil && len(got) == 0
	}, 5*time.Second, 100*time.Millisecond)
}
