// Package connector 管理 meshd 对外部基础设施的连接。
//
// 目前有两类连接：
//   - Etcd：外部服务目录与 mesh 自注册（见 registry 包）
//   - NATS：mesh 事件发布（见 event 包）
//
// 连接器遵循延迟连接：NewXXX 只校验配置，Connect 时才真正建立连接；
// Connect 与 Close 都是幂等的。
//
// 基本使用：
//
//	conn, err := connector.NewNATS(&connector.NATSConfig{URL: "nats://127.0.0.1:4222"},
//		connector.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer conn.Close()
//	if err := conn.Connect(ctx); err != nil {
//		return err
//	}
//	nc := conn.GetClient()
//
// 资源所有权：Connector 拥有底层连接，组件（registry、event）只借用，不调用 Close。
// 应用层按 LIFO 顺序释放：先关闭组件，再关闭 Connector。
package connector

import (
	"context"

	"github.com/nats-io/nats.go"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Connector 所有连接器的通用行为，方法均并发安全
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error

	// Close 关闭连接并释放资源，幂等
	Close() error

	// HealthCheck 主动检查连接状态并刷新缓存的健康状态
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最后一次检查的结果，不阻塞
	IsHealthy() bool

	// Name 连接实例名称，用于日志与指标
	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector

	// GetClient 返回底层客户端；Connect 之前或 Close 之后返回零值
	GetClient() T
}

// EtcdConnector Etcd 连接器
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}

// NATSConnector NATS 连接器，底层客户端自带重连
type NATSConnector interface {
	TypedConnector[*nats.Conn]
}
