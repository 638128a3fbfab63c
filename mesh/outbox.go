package mesh

import (
	"slices"
	"time"

	"github.com/ceyewan/meshd/frame"
)

// queuedMessage 等待出队的普通优先级请求
type queuedMessage struct {
	Target   string
	Request  *frame.ServiceRequest
	SenderID string
	QueuedAt time.Time
}

// outbox 按目标服务名划分的 FIFO 队列
type outbox struct {
	queues   map[string][]*queuedMessage
	maxDepth int
}

func newOutbox(maxDepth int) *outbox {
	return &outbox{queues: make(map[string][]*queuedMessage), maxDepth: maxDepth}
}

// push 入队；队列已满时丢弃并返回最旧的一条
func (o *outbox) push(m *queuedMessage) (dropped *queuedMessage) {
	q := o.queues[m.Target]
	if o.maxDepth > 0 && len(q) >= o.maxDepth {
		dropped, q = q[0], q[1:]
	}
	o.queues[m.Target] = append(q, m)
	return dropped
}

// pop 从队头取出至多 n 条
func (o *outbox) pop(name string, n int) []*queuedMessage {
	q := o.queues[name]
	if n > len(q) {
		n = len(q)
	}
	batch := slices.Clone(q[:n])
	if n == len(q) {
		delete(o.queues, name)
	} else {
		o.queues[name] = q[n:]
	}
	return batch
}

// take 取出并清空整个队列
func (o *outbox) take(name string) []*queuedMessage {
	q := o.queues[name]
	delete(o.queues, name)
	return q
}

func (o *outbox) depth(name string) int {
	return len(o.queues[name])
}

// names 非空队列的目标名，排序
func (o *outbox) names() []string {
	out := make([]string, 0, len(o.queues))
	for name, q := range o.queues {
		if len(q) > 0 {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}
