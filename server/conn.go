package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/mesh"
)

// wsConn 把 websocket 连接适配为 mesh.Conn
//
// Send 只写入缓冲 channel，由 writeLoop 独占写 socket；Close 之后 writeLoop 先发完
// 已缓冲的帧，再发送 close 控制帧并关闭底层连接。
type wsConn struct {
	ws           *websocket.Conn
	codec        frame.Codec
	writeTimeout time.Duration
	logger       clog.Logger

	send   chan frame.Frame
	closed chan struct{}
	done   chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string
}

func newWSConn(ws *websocket.Conn, codec frame.Codec, buffer int, writeTimeout time.Duration, logger clog.Logger) *wsConn {
	return &wsConn{
		ws:           ws,
		codec:        codec,
		writeTimeout: writeTimeout,
		logger:       logger,
		send:         make(chan frame.Frame, buffer),
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		closeCode:    mesh.CloseNormal,
	}
}

// Send 非阻塞入队
func (c *wsConn) Send(f frame.Frame) error {
	select {
	case <-c.closed:
		return mesh.ErrClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		return mesh.ErrSendBufferFull
	}
}

// Close 可重复调用，只有第一次的 code 生效
func (c *wsConn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.closed)
	})
}

// Done writeLoop 退出后关闭
func (c *wsConn) Done() <-chan struct{} {
	return c.done
}

func (c *wsConn) writeLoop() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				c.logger.Debug("websocket write failed", clog.Error(err))
				c.Close(mesh.CloseGoingAway, "write failed")
				return
			}
		case <-c.closed:
			c.drain()
			deadline := time.Now().Add(c.writeTimeout)
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				c.logger.Debug("websocket close frame failed", clog.Error(err))
			}
			return
		}
	}
}

// drain 发完缓冲中剩余的帧，例如 mesh_shutdown
func (c *wsConn) drain() {
	for {
		select {
		case f := <-c.send:
			if err := c.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *wsConn) write(f frame.Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		// 编码失败只丢弃该帧
		c.logger.Warn("encode frame failed", clog.String("type", string(f.Type())), clog.Error(err))
		return nil
	}
	msgType := websocket.TextMessage
	if c.codec.Binary() {
		msgType = websocket.BinaryMessage
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(msgType, data)
}
