// Package proxy 把普通 HTTP 调用转发给 mesh 之外的服务。
//
// 目标地址来自静态配置或 etcd 目录（见 registry），调用结果记录到与 mesh 路由共用的
// breaker.Bank 上：上游 5xx 和传输错误记为失败，其它记为成功；熔断打开时直接返回
// ErrCircuitOpen，不发起调用。
//
//	p, _ := proxy.New(&cfg.Proxy, proxy.Chain(static, proxy.NewRegistryResolver(reg)), bank,
//		proxy.WithLogger(logger), proxy.WithMeter(meter))
//	resp, err := p.Do(ctx, "billing", "/v1/invoices", &proxy.Request{Method: http.MethodGet})
package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ceyewan/meshd/breaker"
	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/trace"
	"github.com/ceyewan/meshd/xerrors"
)

// Request 代理请求参数，零值表示无 body 的 GET
type Request struct {
	Method string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Response 上游响应
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Proxy 外部服务代理，并发安全
type Proxy struct {
	cfg      *Config
	client   *http.Client
	resolver Resolver
	bank     breaker.Bank
	logger   clog.Logger
	metrics  *proxyMetrics
}

// New 创建 Proxy
func New(cfg *Config, resolver Resolver, bank breaker.Bank, opts ...Option) (*Proxy, error) {
	if resolver == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "resolver is required")
	}
	if bank == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "breaker bank is required")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c.setDefaults()

	o := applyOptions(opts)
	m, err := newProxyMetrics(o.meter)
	if err != nil {
		return nil, err
	}

	return &Proxy{
		cfg:      &c,
		client:   &http.Client{Transport: o.transport, Timeout: c.Timeout},
		resolver: resolver,
		bank:     bank,
		logger:   o.logger,
		metrics:  m,
	}, nil
}

// Do 解析 name，检查熔断，调用 base+path。
// 上游返回 5xx 时仍返回 Response（err 为 nil），只是记为一次失败。
func (p *Proxy) Do(ctx context.Context, name, path string, req *Request) (*Response, error) {
	if req == nil {
		req = &Request{}
	}

	base, err := p.resolver.Resolve(ctx, name)
	if err != nil {
		p.metrics.observe(ctx, name, OutcomeNotFound)
		return nil, err
	}

	if p.bank.IsOpen(name) {
		p.metrics.observe(ctx, name, OutcomeCircuitOpen)
		p.logger.Debug("proxy request rejected by open circuit", clog.String("service", name))
		return nil, xerrors.Wrapf(ErrCircuitOpen, "%s", name)
	}

	ctx, span := trace.StartClientSpan(ctx, name, req.Method, nil)
	var (
		status  int
		callErr error
	)
	defer func() { trace.EndClientSpan(span, status, callErr) }()

	httpReq, err := p.build(ctx, base, path, req)
	if err != nil {
		callErr = err
		return nil, err
	}
	trace.InjectHTTP(ctx, httpReq.Header)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	p.metrics.latency(ctx, name, time.Since(start))
	if err != nil {
		callErr = err
		// 调用方取消不计入熔断
		if ctx.Err() != nil {
			p.metrics.observe(ctx, name, OutcomeError)
			return nil, xerrors.Wrapf(ctx.Err(), "proxy %s", name)
		}
		p.fail(ctx, name, err)
		return nil, xerrors.Wrapf(ErrUpstream, "%s %s: %v", httpReq.Method, httpReq.URL.Redacted(), err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxResponseBytes+1))
	if err != nil {
		callErr = err
		p.fail(ctx, name, err)
		return nil, xerrors.Wrapf(ErrUpstream, "read body from %s: %v", name, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		p.fail(ctx, name, xerrors.New(resp.Status))
	} else {
		p.bank.RecordSuccess(name)
		p.metrics.observe(ctx, name, OutcomeSuccess)
	}

	if int64(len(body)) > p.cfg.MaxResponseBytes {
		callErr = ErrResponseTooLarge
		return nil, xerrors.Wrapf(ErrResponseTooLarge, "%s exceeded %d bytes", name, p.cfg.MaxResponseBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (p *Proxy) fail(ctx context.Context, name string, err error) {
	p.bank.RecordFailure(name)
	p.metrics.observe(ctx, name, OutcomeError)
	p.logger.WarnContext(ctx, "proxy request failed", clog.String("service", name), clog.Error(err))
}

func (p *Proxy) build(ctx context.Context, base, path string, req *Request) (*http.Request, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, xerrors.Wrapf(ErrInvalidConfig, "parse %q: %v", base, err)
	}
	if path != "" && path != "/" {
		u = u.JoinPath(path)
	}
	if len(req.Query) > 0 {
		q := u.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, err.Error())
	}
	for k, vs := range req.Header {
		if skipHeader(k, p.cfg.ForwardAuthorization) {
			continue
		}
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// hop-by-hop 头不转发
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

func skipHeader(key string, forwardAuth bool) bool {
	key = http.CanonicalHeaderKey(key)
	if _, hop := hopHeaders[key]; hop {
		return true
	}
	return !forwardAuth && strings.EqualFold(key, "Authorization")
}
