package testkit

import (
	"context"
	"testing"
	"time"

	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"

	"github.com/ceyewan/meshd/connector"
)

const (
	etcdImage = "quay.io/coreos/etcd:v3.5.9"
	natsImage = "nats:2.10-alpine"
)

// SkipIfShort -short 模式下跳过依赖外部服务的测试
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// NewEtcdContainerConfig 启动 etcd 容器并返回连接配置，生命周期由 t.Cleanup 管理
func NewEtcdContainerConfig(t *testing.T) *connector.EtcdConfig {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := tcetcd.Run(ctx, etcdImage)
	if err != nil {
		t.Skipf("etcd container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("etcd container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "2379")
	if err != nil {
		t.Fatalf("etcd container port: %v", err)
	}

	return &connector.EtcdConfig{
		Name:        "testcontainer-etcd",
		Endpoints:   []string{host + ":" + port.Port()},
		DialTimeout: 5 * time.Second,
	}
}

// NewEtcdConnector 启动 etcd 容器并返回已连接的连接器
func NewEtcdConnector(t *testing.T) connector.EtcdConnector {
	t.Helper()
	conn, err := connector.NewEtcd(NewEtcdContainerConfig(t), connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("create etcd connector: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.Connect(NewContext(t, 10*time.Second)); err != nil {
		t.Fatalf("connect etcd: %v", err)
	}
	return conn
}

// NewNATSContainerConfig 启动 NATS 容器并返回连接配置，生命周期由 t.Cleanup 管理
func NewNATSContainerConfig(t *testing.T) *connector.NATSConfig {
	t.Helper()
	SkipIfShort(t)
	ctx := context.Background()

	container, err := tcnats.Run(ctx, natsImage)
	if err != nil {
		t.Skipf("nats container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("nats container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "4222")
	if err != nil {
		t.Fatalf("nats container port: %v", err)
	}

	return &connector.NATSConfig{
		Name:          "testcontainer-nats",
		URL:           "nats://" + host + ":" + port.Port(),
		MaxReconnects: 10,
		ReconnectWait: 100 * time.Millisecond,
	}
}

// NewNATSConnector 启动 NATS 容器并返回已连接的连接器
func NewNATSConnector(t *testing.T) connector.NATSConnector {
	t.Helper()
	conn, err := connector.NewNATS(NewNATSContainerConfig(t), connector.WithLogger(NewLogger()))
	if err != nil {
		t.Fatalf("create nats connector: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	if err := conn.Connect(NewContext(t, 10*time.Second)); err != nil {
		t.Fatalf("connect nats: %v", err)
	}
	return conn
}
