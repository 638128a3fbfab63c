// Package event 发布 mesh 的生命周期事件。
//
// 事件只用于观测：端点上下线、健康状态变化、熔断器状态变化。发布失败只记录日志，
// 不影响路由。NATS 实现的主题为 <prefix>.<kind>，例如 mesh.events.service_available。
//
//	pub, _ := event.NewNATS(natsConn, &event.Config{Enabled: true}, event.WithLogger(logger))
//	_ = pub.Publish(ctx, event.Event{Kind: event.KindServiceAvailable, Service: "billing"})
package event

import (
	"context"
	"time"
)

// Kind 事件类型
type Kind string

const (
	KindServiceAvailable   Kind = "service_available"
	KindServiceUnavailable Kind = "service_unavailable"
	KindEndpointUnhealthy  Kind = "endpoint_unhealthy"
	KindEndpointRecovered  Kind = "endpoint_recovered"
	KindEndpointEvicted    Kind = "endpoint_evicted"
	KindBreakerOpen        Kind = "circuit_breaker_open"
	KindBreakerHalfOpen    Kind = "circuit_breaker_half_open"
	KindBreakerClosed      Kind = "circuit_breaker_closed"
)

// Event 一条 mesh 事件
type Event struct {
	Kind       Kind      `json:"kind" msgpack:"kind"`
	MeshID     string    `json:"mesh_id,omitempty" msgpack:"mesh_id,omitempty"`
	Service    string    `json:"service,omitempty" msgpack:"service,omitempty"`
	EndpointID string    `json:"endpoint_id,omitempty" msgpack:"endpoint_id,omitempty"`
	Detail     string    `json:"detail,omitempty" msgpack:"detail,omitempty"`
	Time       time.Time `json:"time" msgpack:"time"`
}

// Publisher 事件发布者，实现必须并发安全且不阻塞调用方
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type discard struct{}

// Discard 返回丢弃所有事件的 Publisher
func Discard() Publisher { return discard{} }

func (discard) Publish(context.Context, Event) error { return nil }
func (discard) Close() error                         { return nil }
