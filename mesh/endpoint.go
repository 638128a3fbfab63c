package mesh

import (
	"time"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/frame"
)

// Endpoint 一个已注册的连接，即某个服务的一个运行实例
//
// 同名端点可以有多个。Endpoint 只在事件循环内被读写，外部通过 EndpointStatus 快照观察。
type Endpoint struct {
	ID       string
	Name     string
	Host     string
	Port     int
	Identity *auth.Identity

	Healthy       bool
	LastHeartbeat time.Time
	RegisteredAt  time.Time
	MessageCount  uint64
	ErrorCount    uint64

	conn Conn
	// stale 为 true 表示由心跳扫描标记为不健康，任何入站流量即可恢复；
	// 通过 health_update 主动上报的不健康不会因流量恢复
	stale bool
}

// EndpointStatus 端点快照
type EndpointStatus struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Healthy       bool      `json:"healthy"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	RegisteredAt  time.Time `json:"registered_at"`
	MessageCount  uint64    `json:"message_count"`
	ErrorCount    uint64    `json:"error_count"`
}

func (e *Endpoint) status() EndpointStatus {
	return EndpointStatus{
		ID:            e.ID,
		Name:          e.Name,
		Host:          e.Host,
		Port:          e.Port,
		Healthy:       e.Healthy,
		LastHeartbeat: e.LastHeartbeat,
		RegisteredAt:  e.RegisteredAt,
		MessageCount:  e.MessageCount,
		ErrorCount:    e.ErrorCount,
	}
}

func (e *Endpoint) info() frame.EndpointInfo {
	return frame.EndpointInfo{ID: e.ID, Host: e.Host, Port: e.Port}
}
