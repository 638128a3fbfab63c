package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/breaker"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/connector"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/idgen"
	"github.com/ceyewan/meshd/mesh"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/proxy"
	"github.com/ceyewan/meshd/ratelimit"
	"github.com/ceyewan/meshd/registry"
	"github.com/ceyewan/meshd/server"
	"github.com/ceyewan/meshd/trace"
	"github.com/ceyewan/meshd/xerrors"
)

const connectTimeout = 10 * time.Second

// secretOut 生成的共享密钥只打印到这里，不进入结构化日志
var secretOut io.Writer = os.Stderr

// app 持有 meshd 的全部组件，按依赖顺序创建，按相反顺序关闭
type app struct {
	cfg           *AppConfig
	logger        clog.Logger
	meter         metrics.Meter
	traceShutdown func(context.Context) error

	etcd   connector.EtcdConnector
	nats   connector.NATSConnector
	reg    registry.Registry
	events event.Publisher

	bank   breaker.Bank
	mesh   *mesh.Mesh
	server *server.Server

	limiters []ratelimit.Limiter
}

func newApp(ctx context.Context, cfg *AppConfig, logger clog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, events: event.Discard()}
	if err := a.init(ctx); err != nil {
		_ = a.close(context.WithoutCancel(ctx))
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	var err error

	if cfg.Mesh.MeshID == "" {
		cfg.Mesh.MeshID = idgen.MeshID()
	}

	if cfg.Metrics.Version == "" {
		cfg.Metrics.Version = version
	}
	a.meter, err = metrics.New(&cfg.Metrics, metrics.WithLogger(logger))
	if err != nil {
		return xerrors.Wrap(err, "create meter")
	}
	a.traceShutdown, err = trace.Init(&cfg.Trace)
	if err != nil {
		return xerrors.Wrap(err, "init tracing")
	}

	if err := a.connect(ctx); err != nil {
		return err
	}

	a.bank, err = breaker.New(&cfg.Breaker,
		breaker.WithLogger(logger),
		breaker.WithMeter(a.meter),
		breaker.WithStateListener(a.publishBreakerChange),
	)
	if err != nil {
		return xerrors.Wrap(err, "create breaker bank")
	}

	generated := cfg.Auth.Mode != auth.ModeJWT && cfg.Auth.Secret == ""
	authn, err := auth.New(&cfg.Auth, auth.WithLogger(logger), auth.WithMeter(a.meter))
	if err != nil {
		return xerrors.Wrap(err, "create authenticator")
	}
	if generated {
		logger.Warn("auth.secret not configured, generated a random shared secret; printed once to stderr")
		fmt.Fprintf(secretOut, "meshd: generated auth secret: %s\n", cfg.Auth.Secret)
	}

	a.mesh, err = mesh.New(&cfg.Mesh, authn, a.bank,
		mesh.WithLogger(logger),
		mesh.WithMeter(a.meter),
		mesh.WithEvents(a.events),
	)
	if err != nil {
		return xerrors.Wrap(err, "create mesh")
	}

	opts := []server.Option{
		server.WithLogger(logger),
		server.WithMeter(a.meter),
		server.WithAuthenticator(authn),
	}
	if cfg.RateLimit.Frames.Enabled {
		limiter, err := a.newLimiter(&cfg.RateLimit.Frames, "frames")
		if err != nil {
			return err
		}
		opts = append(opts, server.WithFrameLimiter(limiter, cfg.RateLimit.Frames.Limit()))
	}
	if cfg.Proxy.Enabled {
		p, err := a.newProxy()
		if err != nil {
			return err
		}
		var limiter ratelimit.Limiter
		if cfg.RateLimit.Proxy.Enabled {
			if limiter, err = a.newLimiter(&cfg.RateLimit.Proxy, "proxy"); err != nil {
				return err
			}
		}
		opts = append(opts, server.WithProxy(p, limiter, cfg.RateLimit.Proxy.Limit()))
	}
	if a.etcd != nil {
		opts = append(opts, server.WithHealthCheck("etcd", a.etcd.HealthCheck))
	}
	if a.nats != nil {
		opts = append(opts, server.WithHealthCheck("nats", a.nats.HealthCheck))
	}

	a.server, err = server.New(&cfg.Server, a.mesh, opts...)
	if err != nil {
		return xerrors.Wrap(err, "create server")
	}
	return nil
}

// connect 按需连接 etcd 与 nats，并创建依赖它们的 registry 与事件发布者
func (a *app) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if a.cfg.Registry.Enabled {
		etcd, err := connector.NewEtcd(&a.cfg.Etcd, connector.WithLogger(a.logger), connector.WithMeter(a.meter))
		if err != nil {
			return xerrors.Wrap(err, "create etcd connector")
		}
		a.etcd = etcd
		if err := etcd.Connect(ctx); err != nil {
			return xerrors.Wrap(err, "connect etcd")
		}
		a.reg, err = registry.New(etcd, &a.cfg.Registry, registry.WithLogger(a.logger), registry.WithMeter(a.meter))
		if err != nil {
			return xerrors.Wrap(err, "create registry")
		}
	}

	if a.cfg.Events.Enabled {
		nc, err := connector.NewNATS(&a.cfg.NATS, connector.WithLogger(a.logger), connector.WithMeter(a.meter))
		if err != nil {
			return xerrors.Wrap(err, "create nats connector")
		}
		a.nats = nc
		if err := nc.Connect(ctx); err != nil {
			return xerrors.Wrap(err, "connect nats")
		}
		a.events, err = event.NewNATS(nc, &a.cfg.Events, event.WithLogger(a.logger), event.WithMeter(a.meter))
		if err != nil {
			return xerrors.Wrap(err, "create event publisher")
		}
	}
	return nil
}

func (a *app) newLimiter(cfg *ratelimit.Config, scope string) (ratelimit.Limiter, error) {
	limiter, err := ratelimit.New(cfg,
		ratelimit.WithLogger(a.logger),
		ratelimit.WithMeter(a.meter),
		ratelimit.WithScope(scope),
	)
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s limiter", scope)
	}
	a.limiters = append(a.limiters, limiter)
	return limiter, nil
}

// newProxy 静态目标优先，其次查询 etcd 目录
func (a *app) newProxy() (*proxy.Proxy, error) {
	static, err := proxy.NewStaticResolver(a.cfg.Proxy.Targets)
	if err != nil {
		return nil, err
	}
	var dynamic proxy.Resolver
	if a.reg != nil {
		dynamic = proxy.NewRegistryResolver(a.reg)
	}
	return proxy.New(&a.cfg.Proxy, proxy.Chain(static, dynamic), a.bank,
		proxy.WithLogger(a.logger),
		proxy.WithMeter(a.meter),
	)
}

func (a *app) publishBreakerChange(name string, from, to breaker.State) {
	kind := event.KindBreakerClosed
	switch to {
	case breaker.StateOpen:
		kind = event.KindBreakerOpen
	case breaker.StateHalfOpen:
		kind = event.KindBreakerHalfOpen
	}
	_ = a.events.Publish(context.Background(), event.Event{
		Kind:    kind,
		MeshID:  a.cfg.Mesh.MeshID,
		Service: name,
		Detail:  from.String() + " -> " + to.String(),
		Time:    time.Now(),
	})
}

// run 运行 mesh 事件循环与 HTTP 服务，监听失败会连带停止事件循环
func (a *app) run(ctx context.Context) error {
	if a.cfg.Registry.SelfRegister {
		a.selfRegister(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.mesh.Run(gctx)
	})
	g.Go(func() error {
		return a.server.Run(gctx)
	})
	return g.Wait()
}

// selfRegister 失败只记录日志，mesh 在没有 etcd 的情况下仍可服务
func (a *app) selfRegister(ctx context.Context) {
	inst := &registry.Instance{
		ID:        a.cfg.Mesh.MeshID,
		Name:      "meshd",
		Version:   version,
		Endpoints: []string{a.cfg.Registry.Advertise},
		Metadata:  map[string]string{"mesh_id": a.cfg.Mesh.MeshID},
	}
	if err := a.reg.Register(ctx, inst, a.cfg.Registry.DefaultTTL); err != nil {
		a.logger.Warn("self registration failed", clog.Error(err))
		return
	}
	a.logger.Info("registered in service directory", clog.String("advertise", a.cfg.Registry.Advertise))
}

// close 按创建的相反顺序释放资源
func (a *app) close(ctx context.Context) error {
	var errs []error
	for _, l := range a.limiters {
		errs = append(errs, l.Close())
	}
	if a.reg != nil {
		errs = append(errs, a.reg.Close())
	}
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.nats != nil {
		errs = append(errs, a.nats.Close())
	}
	if a.etcd != nil {
		errs = append(errs, a.etcd.Close())
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if a.traceShutdown != nil {
		errs = append(errs, a.traceShutdown(shutdownCtx))
	}
	if a.meter != nil {
		errs = append(errs, a.meter.Shutdown(shutdownCtx))
	}
	return xerrors.Combine(errs...)
}
