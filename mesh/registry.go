package mesh

import "slices"

// registry 端点表，按注册顺序保存
type registry struct {
	byID  map[string]*Endpoint
	order []*Endpoint
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*Endpoint)}
}

func (r *registry) add(e *Endpoint) {
	r.byID[e.ID] = e
	r.order = append(r.order, e)
}

func (r *registry) remove(id string) (*Endpoint, bool) {
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	r.order = slices.DeleteFunc(r.order, func(x *Endpoint) bool { return x.ID == id })
	return e, true
}

func (r *registry) get(id string) (*Endpoint, bool) {
	e, ok := r.byID[id]
	return e, ok
}

// all 返回内部切片，调用方在遍历期间不能增删端点
func (r *registry) all() []*Endpoint {
	return r.order
}

func (r *registry) named(name string) []*Endpoint {
	var out []*Endpoint
	for _, e := range r.order {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (r *registry) healthy(name string) []*Endpoint {
	var out []*Endpoint
	for _, e := range r.order {
		if e.Name == name && e.Healthy {
			out = append(out, e)
		}
	}
	return out
}

func (r *registry) count(name string) int {
	n := 0
	for _, e := range r.order {
		if e.Name == name {
			n++
		}
	}
	return n
}

// names 返回去重排序后的服务名
func (r *registry) names() []string {
	out := make([]string, 0, len(r.order))
	for _, e := range r.order {
		out = append(out, e.Name)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *registry) len() int {
	return len(r.order)
}

func (r *registry) clear() {
	clear(r.byID)
	r.order = nil
}
