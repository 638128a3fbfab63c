package mesh

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/breaker"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/frame"
)

// command 在事件循环中执行的一步
type command interface {
	apply(c *Core)
}

type registerResult struct {
	status EndpointStatus
	err    error
}

type registerCmd struct {
	ctx   context.Context
	cred  auth.Credentials
	conn  Conn
	reply chan registerResult
}

func (cmd registerCmd) apply(c *Core) {
	ep, err := c.Register(cmd.ctx, cmd.cred, cmd.conn)
	if err != nil {
		cmd.reply <- registerResult{err: err}
		return
	}
	cmd.reply <- registerResult{status: ep.status()}
}

type unregisterCmd struct {
	id string
}

func (cmd unregisterCmd) apply(c *Core) {
	c.Unregister(cmd.id)
}

type frameCmd struct {
	id string
	f  frame.Frame
}

func (cmd frameCmd) apply(c *Core) {
	c.HandleFrame(cmd.id, cmd.f)
}

type statusCmd struct {
	reply chan Status
}

func (cmd statusCmd) apply(c *Core) {
	cmd.reply <- c.Status()
}

// Mesh 在单一 goroutine 中驱动 Core
type Mesh struct {
	core    *Core
	cfg     *Config
	inbox   chan command
	done    chan struct{}
	running atomic.Bool
	logger  clog.Logger
}

// New 创建 Mesh，需调用 Run 启动事件循环
func New(cfg *Config, authn auth.Authenticator, bank breaker.Bank, opts ...Option) (*Mesh, error) {
	core, err := NewCore(cfg, authn, bank, opts...)
	if err != nil {
		return nil, err
	}
	return &Mesh{
		core:   core,
		cfg:    core.cfg,
		inbox:  make(chan command, core.cfg.InboxSize),
		done:   make(chan struct{}),
		logger: core.logger,
	}, nil
}

// MeshID 返回实例 ID
func (m *Mesh) MeshID() string {
	return m.core.MeshID()
}

// Done 事件循环退出后关闭
func (m *Mesh) Done() <-chan struct{} {
	return m.done
}

// Run 运行事件循环直到 ctx 取消，退出前向所有端点发送 mesh_shutdown
func (m *Mesh) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	heartbeat := time.NewTicker(m.cfg.Heartbeat.Interval)
	defer heartbeat.Stop()
	drain := time.NewTicker(m.cfg.Queue.DrainInterval)
	defer drain.Stop()

	m.logger.Info("mesh loop started",
		clog.Duration("heartbeat_interval", m.cfg.Heartbeat.Interval),
		clog.Duration("heartbeat_timeout", m.cfg.Heartbeat.Timeout),
		clog.Duration("drain_interval", m.cfg.Queue.DrainInterval),
	)

	for {
		select {
		case <-ctx.Done():
			m.core.Shutdown(m.cfg.ShutdownMessage)
			close(m.done)
			return nil
		case cmd := <-m.inbox:
			m.apply(cmd)
		case <-heartbeat.C:
			m.apply(sweepCmd{})
		case <-drain.C:
			m.apply(drainCmd{})
		}
	}
}

type sweepCmd struct{}

func (sweepCmd) apply(c *Core) { c.SweepHeartbeats() }

type drainCmd struct{}

func (drainCmd) apply(c *Core) { c.DrainQueues() }

// apply 单个命令的 panic 不能终止事件循环
func (m *Mesh) apply(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("mesh command panicked", clog.Any("panic", r))
		}
	}()
	cmd.apply(m.core)
}

func (m *Mesh) post(ctx context.Context, cmd command) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	select {
	case m.inbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrClosed
	}
}

// Register 在事件循环中注册端点
//
// 命令一旦进入循环就等待其结果，保证调用方拿到的端点一定已登记或一定未登记。
func (m *Mesh) Register(ctx context.Context, cred auth.Credentials, conn Conn) (EndpointStatus, error) {
	reply := make(chan registerResult, 1)
	if err := m.post(ctx, registerCmd{ctx: context.WithoutCancel(ctx), cred: cred, conn: conn, reply: reply}); err != nil {
		conn.Close(CloseGoingAway, "mesh unavailable")
		return EndpointStatus{}, err
	}
	select {
	case r := <-reply:
		return r.status, r.err
	case <-m.done:
		conn.Close(CloseGoingAway, "mesh unavailable")
		return EndpointStatus{}, ErrClosed
	}
}

// Unregister 注销端点，mesh 已停止时直接返回
func (m *Mesh) Unregister(id string) {
	_ = m.post(context.Background(), unregisterCmd{id: id})
}

// Deliver 投递一帧；inbox 满时阻塞，从而对单个连接形成背压
func (m *Mesh) Deliver(ctx context.Context, id string, f frame.Frame) error {
	return m.post(ctx, frameCmd{id: id, f: f})
}

// Status 返回控制面快照
func (m *Mesh) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := m.post(ctx, statusCmd{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-m.done:
		return Status{}, ErrClosed
	}
}
