package mesh

import (
	"time"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/frame"
)

// touch 任何入站流量都刷新心跳，被扫描标记为不健康的端点随之恢复
func (c *Core) touch(ep *Endpoint) {
	ep.LastHeartbeat = c.now()
	ep.MessageCount++
	if ep.Healthy || !ep.stale {
		return
	}
	ep.Healthy = true
	ep.stale = false
	c.publish(event.KindEndpointRecovered, ep, "traffic resumed")
	c.logger.Info("endpoint recovered", clog.String("service", ep.Name), clog.String("endpoint_id", ep.ID))
}

// SweepHeartbeats 检查所有端点的静默时长，然后向每个端点发送 ping
//
// 静默超过 Heartbeat.Timeout 的端点被标记为不健康但保持注册；
// 配置了 EvictAfter 时，静默超过该时长的端点被关闭并注销。
func (c *Core) SweepHeartbeats() {
	now := c.now()
	ping := &frame.Ping{Timestamp: now}

	for _, ep := range c.snapshotEndpoints() {
		silent := now.Sub(ep.LastHeartbeat)

		if evict := c.cfg.Heartbeat.EvictAfter; evict > 0 && silent > evict {
			c.evict(ep, silent)
			continue
		}

		if silent > c.cfg.Heartbeat.Timeout && ep.Healthy {
			ep.Healthy = false
			ep.stale = true
			c.publish(event.KindEndpointUnhealthy, ep, "heartbeat timeout")
			c.logger.Warn("endpoint heartbeat timed out",
				clog.String("service", ep.Name),
				clog.String("endpoint_id", ep.ID),
				clog.Duration("silent", silent),
			)
		}

		c.send(ep, ping)
	}

	c.pruneRoutes(now)
}

func (c *Core) evict(ep *Endpoint, silent time.Duration) {
	c.logger.Warn("evicting silent endpoint",
		clog.String("service", ep.Name),
		clog.String("endpoint_id", ep.ID),
		clog.Duration("silent", silent),
	)
	ep.conn.Close(CloseEvicted, "heartbeat expired")
	if c.Unregister(ep.ID) {
		c.publish(event.KindEndpointEvicted, ep, silent.String())
	}
}

func (c *Core) pruneRoutes(now time.Time) {
	for key, r := range c.routes {
		if now.Sub(r.at) > c.cfg.RouteTTL {
			delete(c.routes, key)
		}
	}
}
