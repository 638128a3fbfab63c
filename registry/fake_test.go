package registry

import (
	"context"
	"strings"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/meshd/xerrors"
)

// fakeEtcd 内存版 etcd，只实现 registry 用到的语义：
// Get/Watch 总是按前缀匹配；Put 绑定到最近一次 Grant 的租约。
type fakeEtcd struct {
	mu        sync.Mutex
	kv        map[string]string
	rev       int64
	nextLease clientv3.LeaseID
	pending   clientv3.LeaseID
	leaseKeys map[clientv3.LeaseID][]string
	revoked   []clientv3.LeaseID
	keepAlive map[clientv3.LeaseID]*fakeStream[*clientv3.LeaseKeepAliveResponse]
	watchers  []*fakeWatcher
	gets      int
	putErr    error
}

type fakeStream[T any] struct {
	ch     chan T
	once   sync.Once
	closed bool
}

func (s *fakeStream[T]) close() {
	s.once.Do(func() {
		s.closed = true
		close(s.ch)
	})
}

type fakeWatcher struct {
	prefix string
	stream *fakeStream[clientv3.WatchResponse]
}

func newFakeEtcd() *fakeEtcd {
	return &fakeEtcd{
		kv:        make(map[string]string),
		leaseKeys: make(map[clientv3.LeaseID][]string),
		keepAlive: make(map[clientv3.LeaseID]*fakeStream[*clientv3.LeaseKeepAliveResponse]),
	}
}

func (f *fakeEtcd) Grant(_ context.Context, ttl int64) (*clientv3.LeaseGrantResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextLease++
	f.pending = f.nextLease
	return &clientv3.LeaseGrantResponse{ID: f.nextLease, TTL: ttl}, nil
}

func (f *fakeEtcd) Revoke(_ context.Context, id clientv3.LeaseID) (*clientv3.LeaseRevokeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, id)
	for _, key := range f.leaseKeys[id] {
		f.deleteLocked(key)
	}
	delete(f.leaseKeys, id)
	return &clientv3.LeaseRevokeResponse{}, nil
}

func (f *fakeEtcd) KeepAlive(ctx context.Context, id clientv3.LeaseID) (<-chan *clientv3.LeaseKeepAliveResponse, error) {
	s := &fakeStream[*clientv3.LeaseKeepAliveResponse]{ch: make(chan *clientv3.LeaseKeepAliveResponse, 4)}
	f.mu.Lock()
	f.keepAlive[id] = s
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		s.close()
		f.mu.Unlock()
	}()
	return s.ch, nil
}

func (f *fakeEtcd) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return nil, f.putErr
	}
	if f.pending != 0 {
		f.leaseKeys[f.pending] = append(f.leaseKeys[f.pending], key)
		f.pending = 0
	}
	f.putLocked(key, val)
	return &clientv3.PutResponse{}, nil
}

func (f *fakeEtcd) Get(_ context.Context, key string, _ ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	resp := &clientv3.GetResponse{}
	for k, v := range f.kv {
		if strings.HasPrefix(k, key) {
			resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: []byte(v)})
		}
	}
	return resp, nil
}

func (f *fakeEtcd) Watch(ctx context.Context, key string, _ ...clientv3.OpOption) clientv3.WatchChan {
	w := &fakeWatcher{
		prefix: key,
		stream: &fakeStream[clientv3.WatchResponse]{ch: make(chan clientv3.WatchResponse, 64)},
	}
	f.mu.Lock()
	f.watchers = append(f.watchers, w)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		w.stream.close()
		f.mu.Unlock()
	}()
	return w.stream.ch
}

// put 绕过租约直接写入，模拟其它进程注册
func (f *fakeEtcd) put(key, val string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(key, val)
}

func (f *fakeEtcd) putLocked(key, val string) {
	f.rev++
	f.kv[key] = val
	f.emitLocked(&clientv3.Event{
		Type: clientv3.EventTypePut,
		Kv:   &mvccpb.KeyValue{Key: []byte(key), Value: []byte(val), ModRevision: f.rev},
	})
}

func (f *fakeEtcd) deleteLocked(key string) {
	if _, ok := f.kv[key]; !ok {
		return
	}
	f.rev++
	delete(f.kv, key)
	f.emitLocked(&clientv3.Event{
		Type: clientv3.EventTypeDelete,
		Kv:   &mvccpb.KeyValue{Key: []byte(key), ModRevision: f.rev},
	})
}

func (f *fakeEtcd) emitLocked(ev *clientv3.Event) {
	for _, w := range f.watchers {
		if w.stream.closed || !strings.HasPrefix(string(ev.Kv.Key), w.prefix) {
			continue
		}
		w.stream.ch <- clientv3.WatchResponse{Events: []*clientv3.Event{ev}}
	}
}

// expireLease 模拟租约丢失：关闭续约通道但不撤销
func (f *fakeEtcd) expireLease(id clientv3.LeaseID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.keepAlive[id]; ok {
		s.close()
	}
}

func (f *fakeEtcd) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.kv[key]
	return ok
}

func (f *fakeEtcd) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

func (f *fakeEtcd) revokedLeases() []clientv3.LeaseID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]clientv3.LeaseID(nil), f.revoked...)
}

var errPut = xerrors.Wrap(xerrors.ErrUnavailable, "etcdserver: request timed out")
