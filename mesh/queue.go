package mesh

import (
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/frame"
)

func (c *Core) enqueue(from *Endpoint, req *frame.ServiceRequest) {
	dropped := c.queues.push(&queuedMessage{
		Target:   req.Target,
		Request:  req,
		SenderID: from.ID,
		QueuedAt: c.now(),
	})
	c.metrics.setQueueDepth(req.Target, c.queues.depth(req.Target))

	if dropped == nil {
		return
	}
	c.metrics.dropped(dropped.Target)
	c.logger.Warn("queue full, oldest request dropped",
		clog.String("target", dropped.Target),
		clog.String("request_id", dropped.Request.RequestID),
		clog.Int("max_depth", c.cfg.Queue.MaxDepth),
	)
	if sender, ok := c.reg.get(dropped.SenderID); ok {
		c.reject(sender, dropped.Request, frame.StatusQueueOverflow, "request dropped from full queue")
	}
}

// DrainQueues 为每个有健康端点的目标出队至多 Queue.DrainBatch 条并立即转发
//
// 没有健康端点的目标保持不动；已没有任何注册端点的目标，其排队请求全部以
// service_unavailable 失败。
func (c *Core) DrainQueues() {
	for _, name := range c.queues.names() {
		if c.reg.count(name) == 0 {
			for _, m := range c.queues.take(name) {
				c.failQueued(m, frame.StatusServiceUnavailable, "destination is no longer registered")
			}
			c.metrics.setQueueDepth(name, 0)
			continue
		}

		healthy := c.reg.healthy(name)
		if len(healthy) == 0 {
			continue
		}

		for _, m := range c.queues.pop(name, c.cfg.Queue.DrainBatch) {
			c.deliver(c.lb.pick(name, healthy), m.SenderID, m.Request)
		}
		c.metrics.setQueueDepth(name, c.queues.depth(name))
	}
}

func (c *Core) failQueued(m *queuedMessage, status frame.Status, reason string) {
	sender, ok := c.reg.get(m.SenderID)
	if !ok {
		return
	}
	c.reject(sender, m.Request, status, reason)
}
