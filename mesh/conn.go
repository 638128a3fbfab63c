package mesh

import "github.com/ceyewan/meshd/frame"

// 关闭码，与 websocket close code 对应
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	CloseBadHandshake = 4000
	CloseUnauthorized = 4001
	CloseEvicted      = 4002
)

// Conn 端点的出站连接句柄，由 Core 独占使用
//
// 实现不能阻塞事件循环：Send 只把帧放入发送缓冲，缓冲满时返回 ErrSendBufferFull。
// Close 在已缓冲的帧发出后关闭连接，可重复调用。
type Conn interface {
	Send(f frame.Frame) error
	Close(code int, reason string)
}
