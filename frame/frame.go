// Package frame 定义 mesh 与 worker 之间传输的帧。
//
// Frame 是一个封闭的联合类型：只有本包内的结构体实现了它，路由侧通过类型 switch
// 穷举处理。线上格式是带 type 字段的扁平对象：
//
//	{"type":"service_request","target":"billing","requestId":"r-1","payload":{...},"priority":"high"}
//
// JSON 与 msgpack 使用同一组字段名，见 Codec。
package frame

import (
	"bytes"
	"time"
)

// Type 帧类型
type Type string

const (
	// worker -> mesh
	TypeServiceRequest  Type = "service_request"
	TypeServiceResponse Type = "service_response"
	TypeBroadcast       Type = "broadcast"
	TypeHealthUpdate    Type = "health_update"
	TypeCircuitBreaker  Type = "circuit_breaker"
	TypePing            Type = "ping"
	TypePong            Type = "pong"

	// mesh -> worker
	TypeMeshWelcome        Type = "mesh_welcome"
	TypeServiceAvailable   Type = "service_available"
	TypeServiceUnavailable Type = "service_unavailable"
	TypeMeshShutdown       Type = "mesh_shutdown"
)

// Priority 请求优先级
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Status service_response 中由 mesh 生成的路由结果
type Status string

const (
	StatusCircuitOpen        Status = "circuit_open"
	StatusServiceUnavailable Status = "service_unavailable"
	StatusQueueOverflow      Status = "queue_overflow"
)

// BreakerAction circuit_breaker 帧的动作
type BreakerAction string

const (
	ActionOpen  BreakerAction = "open"
	ActionClose BreakerAction = "close"
)

// Frame 帧联合类型
type Frame interface {
	Type() Type
	sealed()
}

// ServiceRequest 请求某个服务；From 由 mesh 在转发时填写
type ServiceRequest struct {
	Target    string
	RequestID string
	Payload   Payload
	Priority  Priority
	From      string
}

// ServiceResponse 对请求的响应
//
// Target 为原请求方的服务名。Error 非空表示失败，会计入响应方的熔断器。
// Status 仅由 mesh 在路由失败时设置。
type ServiceResponse struct {
	Target    string
	RequestID string
	Payload   Payload
	Error     Payload
	Status    Status
	From      string
}

// Failed 响应是否携带错误：缺省、null、"" 与 false 都视为成功
func (r *ServiceResponse) Failed() bool {
	if r.Error.IsEmpty() {
		return false
	}
	switch string(bytes.TrimSpace(r.Error)) {
	case `""`, "false":
		return false
	}
	return true
}

// Broadcast 广播给除 Exclude 中服务名以外的所有端点
type Broadcast struct {
	Payload Payload
	Exclude []string
	From    string
}

// HealthUpdate worker 主动上报的健康状态
type HealthUpdate struct {
	Healthy bool
	Details Payload
}

// CircuitBreakerControl 手动打开或关闭目标服务的熔断器
type CircuitBreakerControl struct {
	Target string
	Action BreakerAction
}

// Ping 心跳探测
type Ping struct {
	Timestamp time.Time
}

// Pong 心跳回应
type Pong struct {
	Timestamp time.Time
}

// EndpointInfo service_available 中携带的端点信息
type EndpointInfo struct {
	ID   string `json:"id" msgpack:"id"`
	Host string `json:"host" msgpack:"host"`
	Port int    `json:"port" msgpack:"port"`
}

// MeshWelcome 注册成功后发送给新端点
type MeshWelcome struct {
	Services   []string
	MeshID     string
	EndpointID string
}

// ServiceAvailable 新端点注册后通知其他端点
type ServiceAvailable struct {
	Service  string
	Endpoint EndpointInfo
}

// ServiceUnavailable 端点注销后通知其他端点
type ServiceUnavailable struct {
	Service string
}

// MeshShutdown mesh 关闭前通知所有端点
type MeshShutdown struct {
	Message string
}

// Unknown 无法识别的帧，保留原始类型名供日志使用
type Unknown struct {
	Name string
}

func (*ServiceRequest) Type() Type        { return TypeServiceRequest }
func (*ServiceResponse) Type() Type       { return TypeServiceResponse }
func (*Broadcast) Type() Type             { return TypeBroadcast }
func (*HealthUpdate) Type() Type          { return TypeHealthUpdate }
func (*CircuitBreakerControl) Type() Type { return TypeCircuitBreaker }
func (*Ping) Type() Type                  { return TypePing }
func (*Pong) Type() Type                  { return TypePong }
func (*MeshWelcome) Type() Type           { return TypeMeshWelcome }
func (*ServiceAvailable) Type() Type      { return TypeServiceAvailable }
func (*ServiceUnavailable) Type() Type    { return TypeServiceUnavailable }
func (*MeshShutdown) Type() Type          { return TypeMeshShutdown }
func (u *Unknown) Type() Type             { return Type(u.Name) }

func (*ServiceRequest) sealed()        {}
func (*ServiceResponse) sealed()       {}
func (*Broadcast) sealed()             {}
func (*HealthUpdate) sealed()          {}
func (*CircuitBreakerControl) sealed() {}
func (*Ping) sealed()                  {}
func (*Pong) sealed()                  {}
func (*MeshWelcome) sealed()           {}
func (*ServiceAvailable) sealed()      {}
func (*ServiceUnavailable) sealed()    {}
func (*MeshShutdown) sealed()          {}
func (*Unknown) sealed()               {}
