// Package mesh 实现 mesh 控制面的核心：端点注册、心跳、路由、排队与广播。
//
// Core 持有全部状态（端点表、轮询游标、队列、请求来源），本身不加锁，
// 只允许在一个 goroutine 中调用。Mesh 把 Core 放进单一事件循环：
// 连接读协程把帧投递到 inbox，心跳扫描和队列出队由 ticker 驱动，
// 状态查询以带回复通道的命令形式进入同一个循环。
//
//	m, _ := mesh.New(mesh.DefaultConfig(), authenticator, bank, mesh.WithLogger(logger))
//	go m.Run(ctx)
//	ep, err := m.Register(ctx, cred, conn)
//	_ = m.Deliver(ctx, ep.ID, f)
package mesh

import (
	"context"
	"slices"
	"time"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/breaker"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/idgen"
	"github.com/ceyewan/meshd/xerrors"
)

// routeKey 请求方服务名 + 请求 ID
type routeKey struct {
	service   string
	requestID string
}

// route 记录请求来自哪个端点，使响应回到发起请求的实例
type route struct {
	endpointID string
	at         time.Time
}

// Core mesh 状态机，非并发安全
type Core struct {
	cfg    *Config
	meshID string
	authn  auth.Authenticator
	bank   breaker.Bank

	reg    *registry
	lb     *balancer
	queues *outbox
	routes map[routeKey]route

	events  event.Publisher
	logger  clog.Logger
	metrics *meshMetrics
	now     func() time.Time
}

// NewCore 创建 Core
func NewCore(cfg *Config, authn auth.Authenticator, bank breaker.Bank, opts ...Option) (*Core, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if authn == nil || bank == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "authenticator and breaker bank are required")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.MeshID == "" {
		cfg.MeshID = idgen.MeshID()
	}

	o := applyOptions(opts)
	mm, err := newMeshMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	return &Core{
		cfg:     cfg,
		meshID:  cfg.MeshID,
		authn:   authn,
		bank:    bank,
		reg:     newRegistry(),
		lb:      newBalancer(),
		queues:  newOutbox(cfg.Queue.MaxDepth),
		routes:  make(map[routeKey]route),
		events:  o.events,
		logger:  o.logger.With(clog.String("mesh_id", cfg.MeshID)),
		metrics: mm,
		now:     o.now,
	}, nil
}

// MeshID 返回实例 ID
func (c *Core) MeshID() string {
	return c.meshID
}

// Register 校验凭证并登记端点
//
// 成功后向新端点发送 mesh_welcome，并向其他所有端点广播 service_available。
// 校验失败时以 CloseUnauthorized 关闭连接，不创建端点。
func (c *Core) Register(ctx context.Context, cred auth.Credentials, conn Conn) (*Endpoint, error) {
	identity, err := c.authn.Verify(ctx, cred)
	if err != nil {
		c.logger.Warn("registration rejected",
			clog.String("service", cred.Service),
			clog.String("host", cred.Host),
			clog.Error(err),
		)
		conn.Close(CloseUnauthorized, "authentication failed")
		return nil, err
	}

	name := identity.Service
	if name == "" {
		name = cred.Service
	}
	if name == "" {
		conn.Close(CloseBadHandshake, "service name required")
		return nil, ErrServiceNameRequired
	}

	now := c.now()
	ep := &Endpoint{
		ID:            idgen.EndpointID(name),
		Name:          name,
		Host:          cred.Host,
		Port:          cred.Port,
		Identity:      identity,
		Healthy:       true,
		LastHeartbeat: now,
		RegisteredAt:  now,
		conn:          conn,
	}
	c.reg.add(ep)

	c.send(ep, &frame.MeshWelcome{Services: c.reg.names(), MeshID: c.meshID, EndpointID: ep.ID})

	notice := &frame.ServiceAvailable{Service: name, Endpoint: ep.info()}
	for _, other := range c.reg.all() {
		if other.ID != ep.ID {
			c.send(other, notice)
		}
	}

	c.metrics.setEndpoints(name, c.reg.count(name))
	c.publish(event.KindServiceAvailable, ep, "")
	c.logger.Info("endpoint registered",
		clog.String("service", name),
		clog.String("endpoint_id", ep.ID),
		clog.String("host", ep.Host),
		clog.Int("port", ep.Port),
		clog.String("auth", identity.Method),
	)
	return ep, nil
}

// Unregister 移除端点并广播 service_unavailable
//
// 该服务名下已排队的请求保留，出队时若已无任何端点则以 service_unavailable 失败。
func (c *Core) Unregister(id string) bool {
	ep, ok := c.reg.remove(id)
	if !ok {
		return false
	}

	notice := &frame.ServiceUnavailable{Service: ep.Name}
	for _, other := range c.reg.all() {
		c.send(other, notice)
	}

	c.metrics.setEndpoints(ep.Name, c.reg.count(ep.Name))
	c.publish(event.KindServiceUnavailable, ep, "")
	c.logger.Info("endpoint unregistered",
		clog.String("service", ep.Name),
		clog.String("endpoint_id", ep.ID),
		clog.Int64("messages", int64(ep.MessageCount)),
	)
	return true
}

// Select 轮询选择一个健康端点，没有健康端点时返回 nil
func (c *Core) Select(name string) *Endpoint {
	return c.lb.pick(name, c.reg.healthy(name))
}

// Endpoint 按 ID 查找端点
func (c *Core) Endpoint(id string) (*Endpoint, bool) {
	return c.reg.get(id)
}

// Shutdown 通知所有端点并关闭连接，之后 Core 不再持有任何端点
func (c *Core) Shutdown(message string) {
	notice := &frame.MeshShutdown{Message: message}
	for _, ep := range c.reg.all() {
		c.send(ep, notice)
		ep.conn.Close(CloseGoingAway, message)
	}
	for _, name := range c.reg.names() {
		c.metrics.setEndpoints(name, 0)
	}
	c.logger.Info("mesh shut down", clog.Int("endpoints", c.reg.len()))
	c.reg.clear()
}

// send 投递失败只计数，不影响调用方流程
func (c *Core) send(ep *Endpoint, f frame.Frame) bool {
	if err := ep.conn.Send(f); err != nil {
		ep.ErrorCount++
		c.metrics.sendFailure(ep.Name)
		c.logger.Debug("frame dropped",
			clog.String("service", ep.Name),
			clog.String("endpoint_id", ep.ID),
			clog.String("type", string(f.Type())),
			clog.Error(err),
		)
		return false
	}
	return true
}

func (c *Core) publish(kind event.Kind, ep *Endpoint, detail string) {
	_ = c.events.Publish(context.Background(), event.Event{
		Kind:       kind,
		MeshID:     c.meshID,
		Service:    ep.Name,
		EndpointID: ep.ID,
		Detail:     detail,
		Time:       c.now(),
	})
}

// QueueStatus 单个目标的队列深度
type QueueStatus struct {
	Service string `json:"service"`
	Depth   int    `json:"depth"`
}

// Status 控制面只读快照
type Status struct {
	MeshID    string           `json:"mesh_id"`
	Endpoints []EndpointStatus `json:"endpoints"`
	Breakers  []breaker.Status `json:"breakers"`
	Queues    []QueueStatus    `json:"queues"`
}

// Status 返回快照，端点按注册顺序
func (c *Core) Status() Status {
	s := Status{
		MeshID:    c.meshID,
		Endpoints: make([]EndpointStatus, 0, c.reg.len()),
		Breakers:  c.bank.Snapshot(),
		Queues:    []QueueStatus{},
	}
	for _, ep := range c.reg.all() {
		s.Endpoints = append(s.Endpoints, ep.status())
	}
	for _, name := range c.queues.names() {
		s.Queues = append(s.Queues, QueueStatus{Service: name, Depth: c.queues.depth(name)})
	}
	if s.Breakers == nil {
		s.Breakers = []breaker.Status{}
	}
	return s
}

// snapshotEndpoints 供遍历中可能增删端点的场景使用
func (c *Core) snapshotEndpoints() []*Endpoint {
	return slices.Clone(c.reg.all())
}
