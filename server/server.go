// Package server 是 meshd 的 HTTP 入口。
//
// 路由：
//   - GET /mesh：websocket 升级，查询参数 auth、service、host、port、codec
//   - GET /status：控制面快照，可要求 admin 凭证
//   - GET /healthz：mesh 循环与外部依赖的健康检查
//   - GET /metrics：Prometheus 抓取（设置 WithMeter 时）
//   - ANY /proxy/:service/*path：外部服务代理（设置 WithProxy 时）
//
// 每个 websocket 连接一个读 goroutine 一个写 goroutine，读侧解码后投递到 mesh
// 事件循环，写侧消费 wsConn 的发送缓冲。
package server

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/mesh"
	"github.com/ceyewan/meshd/proxy"
	"github.com/ceyewan/meshd/ratelimit"
	"github.com/ceyewan/meshd/trace"
	"github.com/ceyewan/meshd/xerrors"
)

// Server HTTP/websocket 服务
type Server struct {
	cfg      *Config
	mesh     *mesh.Mesh
	opts     options
	logger   clog.Logger
	metrics  *serverMetrics
	upgrader websocket.Upgrader
	engine   *gin.Engine
}

// New 创建 Server，m 的事件循环由调用方运行
func New(cfg *Config, m *mesh.Mesh, opts ...Option) (*Server, error) {
	if m == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "server: mesh is required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	if c.StatusAuth && o.authn == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "server: status_auth requires an authenticator")
	}
	sm, err := newServerMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     &c,
		mesh:    m,
		opts:    o,
		logger:  o.logger,
		metrics: sm,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), trace.GinMiddleware("meshd"), s.metrics.http.Gin())

	r.GET("/mesh", s.handleMesh)
	r.GET("/healthz", s.handleHealth)

	status := r.Group("/status")
	if s.cfg.StatusAuth {
		status.Use(auth.GinMiddleware(s.opts.authn), auth.RequireRoles("admin"))
	}
	status.GET("", s.handleStatus)

	if s.opts.exposeMeter {
		r.GET(s.cfg.MetricsPath, gin.WrapH(s.opts.meter.Handler()))
	}

	if s.opts.proxy != nil {
		handlers := []gin.HandlerFunc{}
		if s.opts.proxyLimiter != nil {
			handlers = append(handlers, ratelimit.GinMiddleware(s.opts.proxyLimiter, s.opts.proxyLimit, ratelimit.ClientIP, s.logger))
		}
		handlers = append(handlers, proxy.GinHandler(s.opts.proxy))
		r.Any("/proxy/:service/*path", handlers...)
	}
	return r
}

// Handler 返回路由，测试中配合 httptest 使用
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 监听 Addr 直到 ctx 结束，然后在 ShutdownTimeout 内优雅关闭。
// 监听失败是唯一的致命错误。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", clog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return xerrors.Wrapf(err, "listen on %s", s.cfg.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown incomplete", clog.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	// 非浏览器客户端不带 Origin
	return origin == "" || slices.Contains(s.cfg.AllowedOrigins, origin)
}
