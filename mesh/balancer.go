package mesh

// balancer 按服务名轮询，游标只是建议值，端点变动后最多多绕一轮
type balancer struct {
	cursors map[string]uint64
}

func newBalancer() *balancer {
	return &balancer{cursors: make(map[string]uint64)}
}

// pick 从候选集合中选出下一个端点，集合为空返回 nil
func (b *balancer) pick(name string, set []*Endpoint) *Endpoint {
	if len(set) == 0 {
		return nil
	}
	idx := b.cursors[name]
	b.cursors[name] = idx + 1
	return set[idx%uint64(len(set))]
}
