package proxy

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/meshd/registry"
	"github.com/ceyewan/meshd/xerrors"
)

// Resolver 把外部服务名解析为一个基础 URL
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// ResolverFunc 函数适配器
type ResolverFunc func(ctx context.Context, name string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, name string) (string, error) {
	return f(ctx, name)
}

// roundRobin 每个服务名一个游标
type roundRobin struct {
	cursors sync.Map // name -> *atomic.Uint64
}

func (r *roundRobin) pick(name string, n int) int {
	v, _ := r.cursors.LoadOrStore(name, new(atomic.Uint64))
	return int((v.(*atomic.Uint64).Add(1) - 1) % uint64(n))
}

type staticResolver struct {
	targets map[string][]string
	rr      roundRobin
}

// NewStaticResolver 基于配置中的静态目录，多个地址轮询
func NewStaticResolver(targets []Target) (Resolver, error) {
	r := &staticResolver{targets: make(map[string][]string, len(targets))}
	for _, t := range targets {
		if err := validateTarget(t); err != nil {
			return nil, err
		}
		r.targets[t.Name] = append(r.targets[t.Name], t.URLs...)
	}
	return r, nil
}

func (r *staticResolver) Resolve(_ context.Context, name string) (string, error) {
	urls := r.targets[name]
	if len(urls) == 0 {
		return "", xerrors.Wrapf(ErrServiceNotFound, "%s", name)
	}
	return urls[r.rr.pick(name, len(urls))], nil
}

type registryResolver struct {
	reg registry.Registry
	rr  roundRobin
}

// NewRegistryResolver 从 etcd 目录发现实例，轮询实例并取其第一个 http(s) 地址
func NewRegistryResolver(reg registry.Registry) Resolver {
	return &registryResolver{reg: reg}
}

func (r *registryResolver) Resolve(ctx context.Context, name string) (string, error) {
	instances, err := r.reg.GetService(ctx, name)
	if err != nil {
		return "", xerrors.Wrapf(err, "discover %s", name)
	}

	candidates := make([]string, 0, len(instances))
	for _, inst := range instances {
		for _, ep := range inst.Endpoints {
			if validateURL(ep) == nil {
				candidates = append(candidates, ep)
				break
			}
		}
	}
	if len(candidates) == 0 {
		return "", xerrors.Wrapf(ErrServiceNotFound, "%s", name)
	}
	return candidates[r.rr.pick(name, len(candidates))], nil
}

// Chain 依次尝试多个 Resolver，跳过 ErrServiceNotFound，其它错误直接返回
func Chain(resolvers ...Resolver) Resolver {
	return ResolverFunc(func(ctx context.Context, name string) (string, error) {
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			base, err := r.Resolve(ctx, name)
			if err == nil {
				return base, nil
			}
			if !xerrors.Is(err, ErrServiceNotFound) {
				return "", err
			}
		}
		return "", xerrors.Wrapf(ErrServiceNotFound, "%s", name)
	})
}
