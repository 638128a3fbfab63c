// Package idgen 生成 mesh 内部使用的标识符。
//
// MeshID 在进程启动时生成一次；EndpointID 每个连接一个，带服务名前缀便于在日志中辨认。
// 请求 ID 由 worker 自己生成，mesh 不改写。
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewUUIDV7 生成 UUID v7 (时间排序)
//
//	uid := idgen.NewUUIDV7()
func NewUUIDV7() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return v7.String()
}

// MeshID 生成 mesh 实例 ID，形如 mesh-3f2a9c1e
func MeshID() string {
	return "mesh-" + short(uuid.New())
}

// EndpointID 生成端点 ID，形如 billing-01890a5d-ac96-774b-bcce-b302099a8057
//
// 使用 v7 使同一服务的端点 ID 大致按注册时间排序。
func EndpointID(service string) string {
	service = strings.TrimSpace(service)
	if service == "" {
		return NewUUIDV7()
	}
	return service + "-" + NewUUIDV7()
}

func short(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")[:8]
}
