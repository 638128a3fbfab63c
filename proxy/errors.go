package proxy

import (
	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/xerrors"
)

var (
	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = xerrors.Wrap(xerrors.ErrInvalidInput, "proxy: invalid config")

	// ErrServiceNotFound 没有可用的外部地址，错误码与 mesh 路由失败的 status 一致
	ErrServiceNotFound = xerrors.WithCode(xerrors.Wrap(xerrors.ErrNotFound, "proxy: service not found"),
		string(frame.StatusServiceUnavailable))

	// ErrCircuitOpen 目标服务熔断中
	ErrCircuitOpen = xerrors.WithCode(xerrors.Wrap(xerrors.ErrUnavailable, "proxy: circuit open"),
		string(frame.StatusCircuitOpen))

	// ErrUpstream 上游调用失败（连接错误、超时等）
	ErrUpstream = xerrors.Wrap(xerrors.ErrUnavailable, "proxy: upstream request failed")

	// ErrRequestTooLarge 调用方请求体超过 MaxRequestBytes
	ErrRequestTooLarge = xerrors.Wrap(xerrors.ErrInvalidInput, "proxy: request body too large")

	// ErrResponseTooLarge 上游响应体超过 MaxResponseBytes
	ErrResponseTooLarge = xerrors.New("proxy: upstream response too large")
)
