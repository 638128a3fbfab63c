package connector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/meshd/testkit"
)

func TestEtcdConnectorIntegration(t *testing.T) {
	kit := testkit.NewKit(t)
	conn := testkit.NewEtcdConnector(t)

	require.NoError(t, conn.HealthCheck(kit.Ctx))
	assert.True(t, conn.IsHealthy())

	client := conn.GetClient()
	prefix := "/it/" + testkit.NewID()
	_, err := client.Put(kit.Ctx, prefix+"/a", "1")
	require.NoError(t, err)
	resp, err := client.Get(kit.Ctx, prefix+"/", clientv3.WithPrefix())
	require.NoError(t, err)
	assert.Len(t, resp.Kvs, 1)

	require.NoError(t, conn.Close())
	assert.Nil(t, conn.GetClient())
}

func TestNATSConnectorIntegration(t *testing.T) {
	kit := testkit.NewKit(t)
	conn := testkit.NewNATSConnector(t)

	require.NoError(t, conn.HealthCheck(kit.Ctx))
	assert.True(t, conn.IsHealthy())

	nc := conn.GetClient()
	subject := "it." + testkit.NewID()
	sub, err := nc.SubscribeSync(subject)
	require.NoError(t, err)
	require.NoError(t, nc.Publish(subject, []byte("ping")))

	msg, err := sub.NextMsg(testkit.DefaultWait)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(msg.Data))
}
