package registry

import (
	"context"
	"time"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/xerrors"
)

// watchPrefix 持续监听 prefix，直到 ctx 结束。
// watch 通道关闭或出错时等待 RetryInterval 后从上次处理的 revision 之后重建。
func (r *etcdRegistry) watchPrefix(ctx context.Context, prefix string, handle func([]*clientv3.Event)) {
	var lastRev int64

	for {
		opts := []clientv3.OpOption{clientv3.WithPrefix()}
		if lastRev > 0 {
			opts = append(opts, clientv3.WithRev(lastRev+1))
		}
		watchCh := r.client.Watch(ctx, prefix, opts...)
		r.logger.Debug("watch started", clog.String("prefix", prefix), clog.Int64("from_revision", lastRev+1))

		lastRev = r.consume(ctx, prefix, watchCh, lastRev, handle)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.RetryInterval):
			r.logger.Warn("retrying watch", clog.String("prefix", prefix))
		}
	}
}

// consume 处理一个 watch 通道直到它关闭或出错，返回最后处理的 revision
func (r *etcdRegistry) consume(ctx context.Context, prefix string, watchCh clientv3.WatchChan, lastRev int64, handle func([]*clientv3.Event)) int64 {
	for {
		select {
		case <-ctx.Done():
			return lastRev
		case wresp, ok := <-watchCh:
			if !ok {
				if ctx.Err() == nil {
					r.logger.Warn("watch channel closed", clog.String("prefix", prefix))
				}
				return lastRev
			}
			if err := wresp.Err(); err != nil {
				if xerrors.Is(err, rpctypes.ErrCompacted) {
					r.logger.Warn("watch revision compacted, resyncing", clog.String("prefix", prefix))
					return r.resync(ctx, prefix, lastRev, handle)
				}
				r.logger.Error("watch error", clog.String("prefix", prefix), clog.Error(err))
				return lastRev
			}

			for _, ev := range wresp.Events {
				if ev.Kv.ModRevision > lastRev {
					lastRev = ev.Kv.ModRevision
				}
			}
			if len(wresp.Events) > 0 {
				handle(wresp.Events)
			}
		}
	}
}

// resync 压缩后无法补齐中间事件，重新读取当前 revision 并以一次合成 PUT 通知调用方
func (r *etcdRegistry) resync(ctx context.Context, prefix string, lastRev int64, handle func([]*clientv3.Event)) int64 {
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		r.logger.Error("failed to resync after compaction", clog.String("prefix", prefix), clog.Error(err))
		return lastRev
	}
	events := make([]*clientv3.Event, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		events = append(events, &clientv3.Event{Type: clientv3.EventTypePut, Kv: kv})
	}
	if len(events) > 0 {
		handle(events)
	}
	if resp.Header != nil {
		return resp.Header.Revision
	}
	return lastRev
}
