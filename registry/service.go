package registry

import "strings"

// Instance 一个外部服务实例，在 etcd 中以 JSON 存储
type Instance struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Version   string            `json:"version,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Endpoints []string          `json:"endpoints"` // 如 http://10.0.0.7:8080
}

func (i *Instance) valid() bool {
	return i != nil && i.ID != "" && validName(i.Name) && !strings.Contains(i.ID, "/")
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, "/")
}

// Event 服务变化事件
type Event struct {
	Type     EventType
	Instance *Instance
}

// EventType 事件类型
type EventType string

const (
	EventTypePut    EventType = "PUT"    // 注册或更新
	EventTypeDelete EventType = "DELETE" // 注销或租约过期
)
