package registry

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Registry 外部服务目录：注册、发现与监听
type Registry interface {
	// Register 注册实例并在后台续约；ttl 为 0 时使用 DefaultTTL
	Register(ctx context.Context, inst *Instance, ttl time.Duration) error

	// Deregister 撤销本进程注册的实例
	Deregister(ctx context.Context, id string) error

	// GetService 返回服务的全部实例。启用缓存时优先读缓存，返回的实例只读。
	GetService(ctx context.Context, name string) ([]*Instance, error)

	// Watch 监听服务实例变化，ctx 结束或 Close 后通道关闭
	Watch(ctx context.Context, name string) (<-chan Event, error)

	// Close 停止后台任务并撤销本进程持有的租约
	Close() error
}

// etcdClient registry 用到的 etcd 客户端子集，*clientv3.Client 满足该接口
type etcdClient interface {
	Grant(ctx context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error)
	Revoke(ctx context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error)
	KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error)
	Put(ctx context.Context, key, val string, opts ...clientv3.OpOption) (*clientv3.PutResponse, error)
	Get(ctx context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error)
	Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan
}
