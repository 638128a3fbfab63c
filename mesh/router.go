package mesh

import (
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/frame"
)

// HandleFrame 处理来自端点 fromID 的一帧
//
// 任何路由失败都转化为回复给请求方的帧或一条日志，不会向调用方返回错误。
func (c *Core) HandleFrame(fromID string, f frame.Frame) {
	from, ok := c.reg.get(fromID)
	if !ok {
		c.logger.Debug("frame from unknown endpoint dropped",
			clog.String("endpoint_id", fromID),
			clog.String("type", string(f.Type())),
		)
		return
	}

	c.touch(from)
	c.metrics.frame(f)

	switch v := f.(type) {
	case *frame.ServiceRequest:
		c.routeRequest(from, v)
	case *frame.ServiceResponse:
		c.routeResponse(from, v)
	case *frame.Broadcast:
		c.broadcast(from, v)
	case *frame.HealthUpdate:
		c.updateHealth(from, v)
	case *frame.CircuitBreakerControl:
		c.controlBreaker(from, v)
	case *frame.Ping:
		c.send(from, &frame.Pong{Timestamp: v.Timestamp})
	case *frame.Pong:
		// 心跳已在 touch 中刷新
	case *frame.MeshWelcome, *frame.ServiceAvailable, *frame.ServiceUnavailable, *frame.MeshShutdown:
		c.logger.Debug("mesh-to-worker frame from worker ignored",
			clog.String("service", from.Name),
			clog.String("type", string(f.Type())),
		)
	case *frame.Unknown:
		c.logger.Warn("unknown frame type dropped",
			clog.String("service", from.Name),
			clog.String("endpoint_id", from.ID),
			clog.String("type", v.Name),
		)
	}
}

func (c *Core) routeRequest(from *Endpoint, req *frame.ServiceRequest) {
	req.From = from.Name

	if c.bank.IsOpen(req.Target) {
		c.reject(from, req, frame.StatusCircuitOpen, "circuit breaker is open")
		return
	}

	if req.Priority == frame.PriorityHigh {
		target := c.Select(req.Target)
		if target == nil {
			c.reject(from, req, frame.StatusServiceUnavailable, "no healthy endpoint")
			return
		}
		c.deliver(target, from.ID, req)
		return
	}

	if len(c.reg.healthy(req.Target)) == 0 {
		c.reject(from, req, frame.StatusServiceUnavailable, "no healthy endpoint")
		return
	}
	c.enqueue(from, req)
}

// deliver 立即转发请求，并记录来源以便响应回到同一实例
func (c *Core) deliver(target *Endpoint, senderID string, req *frame.ServiceRequest) {
	if !c.send(target, req) {
		if sender, ok := c.reg.get(senderID); ok {
			c.reject(sender, req, frame.StatusServiceUnavailable, "destination did not accept the request")
		}
		return
	}
	if req.RequestID != "" {
		c.routes[routeKey{service: req.From, requestID: req.RequestID}] = route{endpointID: senderID, at: c.now()}
	}
}

// reject 以 mesh 生成的 service_response 回复请求方
func (c *Core) reject(to *Endpoint, req *frame.ServiceRequest, status frame.Status, reason string) {
	c.metrics.routingFailure(status)
	c.logger.Debug("request rejected",
		clog.String("from", to.Name),
		clog.String("target", req.Target),
		clog.String("request_id", req.RequestID),
		clog.String("status", string(status)),
	)
	c.send(to, &frame.ServiceResponse{
		Target:    to.Name,
		RequestID: req.RequestID,
		Status:    status,
		Error:     frame.Text(reason),
		From:      req.Target,
	})
}

func (c *Core) routeResponse(from *Endpoint, resp *frame.ServiceResponse) {
	resp.From = from.Name

	if resp.Failed() {
		from.ErrorCount++
		c.bank.RecordFailure(from.Name)
	} else {
		c.bank.RecordSuccess(from.Name)
	}

	target := c.replyTarget(resp)
	if target == nil {
		c.logger.Warn("response has no route",
			clog.String("from", from.Name),
			clog.String("target", resp.Target),
			clog.String("request_id", resp.RequestID),
		)
		return
	}
	c.send(target, resp)
}

// replyTarget 优先返回发起请求的端点，否则按服务名轮询
func (c *Core) replyTarget(resp *frame.ServiceResponse) *Endpoint {
	key := routeKey{service: resp.Target, requestID: resp.RequestID}
	if r, ok := c.routes[key]; ok {
		delete(c.routes, key)
		if ep, ok := c.reg.get(r.endpointID); ok {
			return ep
		}
	}
	return c.Select(resp.Target)
}

func (c *Core) broadcast(from *Endpoint, b *frame.Broadcast) {
	b.From = from.Name

	excluded := make(map[string]struct{}, len(b.Exclude))
	for _, name := range b.Exclude {
		excluded[name] = struct{}{}
	}

	delivered := 0
	for _, ep := range c.reg.all() {
		if ep.ID == from.ID {
			continue
		}
		if _, skip := excluded[ep.Name]; skip {
			continue
		}
		if c.send(ep, b) {
			delivered++
		}
	}
	c.logger.Debug("broadcast delivered", clog.String("from", from.Name), clog.Int("endpoints", delivered))
}

func (c *Core) updateHealth(from *Endpoint, h *frame.HealthUpdate) {
	was := from.Healthy
	from.Healthy = h.Healthy
	from.stale = false
	if was == h.Healthy {
		return
	}

	kind := event.KindEndpointRecovered
	if !h.Healthy {
		kind = event.KindEndpointUnhealthy
	}
	c.publish(kind, from, "health_update")
	c.logger.Info("endpoint health updated",
		clog.String("service", from.Name),
		clog.String("endpoint_id", from.ID),
		clog.Bool("healthy", h.Healthy),
	)
}

func (c *Core) controlBreaker(from *Endpoint, ctl *frame.CircuitBreakerControl) {
	if ctl.Target == "" {
		c.logger.Warn("circuit breaker control without target", clog.String("from", from.Name))
		return
	}
	switch ctl.Action {
	case frame.ActionOpen:
		c.bank.ManualOpen(ctl.Target)
	case frame.ActionClose:
		c.bank.ManualClose(ctl.Target)
	default:
		c.logger.Warn("unknown circuit breaker action",
			clog.String("from", from.Name),
			clog.String("target", ctl.Target),
			clog.String("action", string(ctl.Action)),
		)
		return
	}
	c.logger.Info("circuit breaker overridden",
		clog.String("from", from.Name),
		clog.String("target", ctl.Target),
		clog.String("action", string(ctl.Action)),
	)
}
