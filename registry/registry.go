// Package registry 提供基于 Etcd 的外部服务目录。
//
// mesh 之外的 HTTP 服务通过 registry 被 /proxy 发现；meshd 自身也可以把地址注册进来，
// 让其它进程找到它。实例以 JSON 形式存储在：
//
//	<namespace>/<service_name>/<instance_id> -> JSON(Instance)
//
// 例如 /meshd/services/billing/billing-7f3c。
//
// 基本使用：
//
//	etcdConn, _ := connector.NewEtcd(&cfg.Etcd, connector.WithLogger(logger))
//	_ = etcdConn.Connect(ctx)
//	defer etcdConn.Close()
//
//	reg, _ := registry.New(etcdConn, &cfg.Registry, registry.WithLogger(logger))
//	defer reg.Close()
//
//	_ = reg.Register(ctx, &registry.Instance{
//		ID:        "billing-1",
//		Name:      "billing",
//		Endpoints: []string{"http://10.0.0.7:8080"},
//	}, 0)
//	instances, _ := reg.GetService(ctx, "billing")
//
// GetService 的结果缓存在进程内（otter），并由后台 watch 在实例变化时失效。
// registry 借用连接器的客户端，不负责关闭它。
package registry

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/connector"
	"github.com/ceyewan/meshd/xerrors"
)

// New 创建基于 Etcd 的 Registry。conn 必须已经 Connect。
func New(conn connector.EtcdConnector, cfg *Config, opts ...Option) (Registry, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}
	client := conn.GetClient()
	if client == nil {
		return nil, ErrConnectorNil
	}
	return newRegistry(client, cfg, opts...)
}

func newRegistry(client etcdClient, cfg *Config, opts ...Option) (*etcdRegistry, error) {
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	m, err := newRegistryMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &etcdRegistry{
		client:     client,
		cfg:        &c,
		logger:     o.logger,
		metrics:    m,
		keepAlives: make(map[string]*leaseKeepAlive),
		ctx:        ctx,
		cancel:     cancel,
	}

	if !c.DisableCache {
		r.cache, err = otter.New(&otter.Options[string, []*Instance]{
			MaximumSize:      c.CacheSize,
			StatsRecorder:    stats.NewCounter(),
			ExpiryCalculator: otter.ExpiryWriting[string, []*Instance](c.CacheExpiration),
		})
		if err != nil {
			cancel()
			return nil, xerrors.Wrap(err, "build discovery cache")
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.watchPrefix(r.ctx, c.Namespace+"/", r.invalidate)
		}()
	}

	r.logger.Info("registry created",
		clog.String("namespace", c.Namespace),
		clog.Bool("cache", r.cache != nil),
		clog.Duration("default_ttl", c.DefaultTTL))
	return r, nil
}

// leaseKeepAlive 租约保活信息
type leaseKeepAlive struct {
	leaseID     clientv3.LeaseID
	keepAliveCh <-chan *clientv3.LeaseKeepAliveResponse
	cancel      context.CancelFunc
	instance    *Instance
	closed      atomic.Bool
}

type etcdRegistry struct {
	client  etcdClient
	cfg     *Config
	logger  clog.Logger
	metrics *registryMetrics
	cache   *otter.Cache[string, []*Instance]

	keepAlives map[string]*leaseKeepAlive // instanceID -> keepAlive
	mu         sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

func (r *etcdRegistry) Register(ctx context.Context, inst *Instance, ttl time.Duration) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	if !inst.valid() {
		return ErrInvalidServiceInstance
	}
	if ttl == 0 {
		ttl = r.cfg.DefaultTTL
	}
	if ttl < time.Second {
		return ErrInvalidTTL
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.keepAlives[inst.ID]; exists {
		return ErrServiceAlreadyRegistered
	}

	value, err := json.Marshal(inst)
	if err != nil {
		return xerrors.Wrap(err, "marshal instance")
	}

	lease, err := r.client.Grant(ctx, int64(ttl/time.Second))
	if err != nil {
		r.logger.Error("failed to grant lease", clog.String("service_id", inst.ID), clog.Error(err))
		return xerrors.Wrap(err, "grant lease")
	}

	key := r.buildKey(inst.Name, inst.ID)
	if _, err := r.client.Put(ctx, key, string(value), clientv3.WithLease(lease.ID)); err != nil {
		r.revoke(ctx, inst.ID, lease.ID)
		r.logger.Error("failed to put instance", clog.String("key", key), clog.Error(err))
		return xerrors.Wrap(err, "put instance")
	}

	kaCtx, kaCancel := context.WithCancel(r.ctx)
	kaCh, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		kaCancel()
		r.revoke(ctx, inst.ID, lease.ID)
		return xerrors.Wrap(err, "keepalive")
	}

	ka := &leaseKeepAlive{
		leaseID:     lease.ID,
		keepAliveCh: kaCh,
		cancel:      kaCancel,
		instance:    inst,
	}
	r.keepAlives[inst.ID] = ka
	r.metrics.setRegistered(len(r.keepAlives))

	r.wg.Add(1)
	go r.monitorKeepAlive(ka)

	r.logger.Info("service registered",
		clog.String("service_id", inst.ID),
		clog.String("service_name", inst.Name),
		clog.Duration("ttl", ttl))
	return nil
}

func (r *etcdRegistry) Deregister(ctx context.Context, id string) error {
	if r.closed.Load() {
		return ErrRegistryClosed
	}
	if id == "" {
		return ErrInvalidServiceInstance
	}

	r.mu.Lock()
	ka, exists := r.keepAlives[id]
	if !exists {
		r.mu.Unlock()
		return ErrServiceNotFound
	}
	ka.closed.Store(true)
	ka.cancel()
	delete(r.keepAlives, id)
	r.metrics.setRegistered(len(r.keepAlives))
	r.mu.Unlock()

	// 撤销租约会删除关联的 key
	if _, err := r.client.Revoke(ctx, ka.leaseID); err != nil {
		r.logger.Error("failed to revoke lease", clog.String("service_id", id), clog.Error(err))
		return xerrors.Wrap(err, "revoke lease")
	}
	if r.cache != nil {
		r.cache.Invalidate(ka.instance.Name)
	}

	r.logger.Info("service deregistered", clog.String("service_id", id))
	return nil
}

func (r *etcdRegistry) GetService(ctx context.Context, name string) ([]*Instance, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if !validName(name) {
		return nil, ErrInvalidServiceInstance
	}

	if r.cache != nil {
		if instances, ok := r.cache.GetIfPresent(name); ok {
			r.metrics.lookup(ctx, name, outcomeHit)
			return slices.Clone(instances), nil
		}
	}

	instances, err := r.load(ctx, name)
	if err != nil {
		r.metrics.lookup(ctx, name, "error")
		return nil, err
	}
	r.metrics.lookup(ctx, name, outcomeMiss)
	if r.cache != nil {
		r.cache.Set(name, instances)
	}
	return slices.Clone(instances), nil
}

func (r *etcdRegistry) load(ctx context.Context, name string) ([]*Instance, error) {
	resp, err := r.client.Get(ctx, r.buildPrefix(name), clientv3.WithPrefix())
	if err != nil {
		r.logger.Error("failed to get service", clog.String("service_name", name), clog.Error(err))
		return nil, xerrors.Wrap(err, "get service")
	}

	instances := make([]*Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var inst Instance
		if err := json.Unmarshal(kv.Value, &inst); err != nil {
			r.logger.Warn("skipping malformed instance",
				clog.String("key", string(kv.Key)),
				clog.Error(err))
			continue
		}
		instances = append(instances, &inst)
	}
	slices.SortFunc(instances, func(a, b *Instance) int {
		return strings.Compare(a.ID, b.ID)
	})
	return instances, nil
}

func (r *etcdRegistry) Watch(ctx context.Context, name string) (<-chan Event, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}
	if !validName(name) {
		return nil, ErrInvalidServiceInstance
	}

	out := make(chan Event, 100)
	watchCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.ctx, cancel)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(out)
		defer stop()
		defer cancel()

		r.watchPrefix(watchCtx, r.buildPrefix(name), func(events []*clientv3.Event) {
			for _, ev := range events {
				event, ok := r.toEvent(ev)
				if !ok {
					continue
				}
				select {
				case out <- event:
				case <-watchCtx.Done():
					return
				}
			}
		})
	}()
	return out, nil
}

// Close 停止后台任务并撤销所有租约，幂等
func (r *etcdRegistry) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.Lock()
	leases := make(map[string]clientv3.LeaseID, len(r.keepAlives))
	for id, ka := range r.keepAlives {
		leases[id] = ka.leaseID
		ka.closed.Store(true)
		ka.cancel()
	}
	clear(r.keepAlives)
	r.metrics.setRegistered(0)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for id, leaseID := range leases {
		r.revoke(ctx, id, leaseID)
	}

	r.cancel()
	r.wg.Wait()

	r.logger.Info("registry stopped")
	return nil
}

func (r *etcdRegistry) revoke(ctx context.Context, id string, leaseID clientv3.LeaseID) {
	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		r.logger.Warn("failed to revoke lease",
			clog.String("service_id", id),
			clog.String("lease_id", strconv.FormatInt(int64(leaseID), 16)),
			clog.Error(err))
	}
}

// monitorKeepAlive 消费续约响应。通道关闭且不是本进程主动撤销时，说明租约已丢失。
// 此时不自动重新注册，由运维根据日志处理。
func (r *etcdRegistry) monitorKeepAlive(ka *leaseKeepAlive) {
	defer r.wg.Done()

	for resp := range ka.keepAliveCh {
		r.logger.Debug("keepalive renewed",
			clog.String("service_id", ka.instance.ID),
			clog.Int64("ttl", resp.TTL))
	}

	if ka.closed.Load() {
		return
	}
	r.logger.Error("keepalive channel closed, lease expired or connection lost",
		clog.String("service_id", ka.instance.ID),
		clog.String("service_name", ka.instance.Name))

	r.mu.Lock()
	if cur, ok := r.keepAlives[ka.instance.ID]; ok && cur == ka {
		delete(r.keepAlives, ka.instance.ID)
		r.metrics.setRegistered(len(r.keepAlives))
	}
	r.mu.Unlock()
}

// invalidate 根据 watch 事件失效对应服务的缓存
func (r *etcdRegistry) invalidate(events []*clientv3.Event) {
	for _, ev := range events {
		name, _, ok := r.parseKey(string(ev.Kv.Key))
		if !ok {
			continue
		}
		r.cache.Invalidate(name)
		r.logger.Debug("discovery cache invalidated", clog.String("service_name", name))
	}
}

func (r *etcdRegistry) toEvent(ev *clientv3.Event) (Event, bool) {
	name, id, ok := r.parseKey(string(ev.Kv.Key))
	if !ok {
		return Event{}, false
	}
	switch ev.Type {
	case clientv3.EventTypePut:
		var inst Instance
		if err := json.Unmarshal(ev.Kv.Value, &inst); err != nil {
			r.logger.Warn("skipping malformed watch event",
				clog.String("key", string(ev.Kv.Key)),
				clog.Error(err))
			return Event{}, false
		}
		return Event{Type: EventTypePut, Instance: &inst}, true
	case clientv3.EventTypeDelete:
		return Event{Type: EventTypeDelete, Instance: &Instance{ID: id, Name: name}}, true
	default:
		return Event{}, false
	}
}

func (r *etcdRegistry) buildKey(name, id string) string {
	return r.cfg.Namespace + "/" + name + "/" + id
}

func (r *etcdRegistry) buildPrefix(name string) string {
	return r.cfg.Namespace + "/" + name + "/"
}

// parseKey 把 <namespace>/<name>/<id> 拆成 name 和 id
func (r *etcdRegistry) parseKey(key string) (name, id string, ok bool) {
	rest, found := strings.CutPrefix(key, r.cfg.Namespace+"/")
	if !found {
		return "", "", false
	}
	name, id, ok = strings.Cut(rest, "/")
	if !ok || name == "" || id == "" || strings.Contains(id, "/") {
		return "", "", false
	}
	return name, id, true
}
