package server

import (
	"context"
	"net"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/mesh"
)

// handleMesh 升级连接、注册端点，然后在当前 goroutine 中读帧直到连接断开
func (s *Server) handleMesh(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应
		s.logger.Debug("websocket upgrade failed", clog.Error(err))
		return
	}
	ws.SetReadLimit(s.cfg.MaxMessageBytes)

	q := c.Request.URL.Query()
	codec, codecErr := frame.Lookup(q.Get("codec"))
	if codec == nil {
		codec = frame.JSON
	}
	conn := newWSConn(ws, codec, s.cfg.SendBuffer, s.cfg.WriteTimeout, s.logger)
	go conn.writeLoop()

	if codecErr != nil {
		s.reject(conn, "unsupported codec", codecErr)
		return
	}
	port, err := parsePort(q.Get("port"))
	if err != nil {
		s.reject(conn, "invalid port", err)
		return
	}
	host := q.Get("host")
	if host == "" {
		host = remoteHost(c.Request.RemoteAddr)
	}

	ctx := c.Request.Context()
	ep, err := s.mesh.Register(ctx, auth.Credentials{
		Token:   auth.ExtractToken(c.Request),
		Service: q.Get("service"),
		Host:    host,
		Port:    port,
	}, conn)
	if err != nil {
		// Register 已按失败原因关闭了 conn
		<-conn.Done()
		return
	}

	s.metrics.connections.Inc(ctx)
	logger := s.logger.With(clog.String("endpoint", ep.ID), clog.String("service", ep.Name))
	logger.Info("endpoint connected", clog.String("codec", codec.Name()), clog.String("host", host))

	s.readLoop(ws, codec, ep.ID, logger)

	s.mesh.Unregister(ep.ID)
	s.opts.frameLimiter.Forget(ep.ID)
	conn.Close(mesh.CloseNormal, "")
	<-conn.Done()
	s.metrics.connections.Dec(ctx)
	logger.Info("endpoint disconnected")
}

func (s *Server) readLoop(ws *websocket.Conn, codec frame.Codec, id string, logger clog.Logger) {
	ctx := context.Background()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("websocket read ended", clog.Error(err))
			}
			return
		}

		f, err := codec.Decode(data)
		if err != nil {
			s.metrics.drop(ctx, reasonMalformed)
			logger.Warn("dropping malformed frame", clog.Error(err))
			continue
		}

		if s.opts.frameLimit.Valid() {
			ok, err := s.opts.frameLimiter.Allow(ctx, id, s.opts.frameLimit)
			if err == nil && !ok {
				s.metrics.drop(ctx, reasonRateLimited)
				logger.Debug("dropping frame over rate limit", clog.String("type", string(f.Type())))
				continue
			}
		}

		if err := s.mesh.Deliver(ctx, id, f); err != nil {
			logger.Debug("deliver failed", clog.Error(err))
			return
		}
	}
}

func (s *Server) reject(conn *wsConn, reason string, err error) {
	s.logger.Warn("handshake rejected", clog.String("reason", reason), clog.Error(err))
	conn.Close(mesh.CloseBadHandshake, reason)
	<-conn.Done()
}

func parsePort(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, strconv.ErrRange
	}
	return port, nil
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
