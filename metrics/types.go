// Package metrics 基于 OpenTelemetry 提供 Counter、Gauge、Histogram 指标接口，
// 并通过 Prometheus exporter 暴露给抓取端。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{Enabled: true, ServiceName: "meshd"})
//	if err != nil {
//	    return err
//	}
//	defer meter.Shutdown(ctx)
//
//	frames, _ := meter.Counter("mesh_frames_total", "Frames received from workers.")
//	frames.Inc(ctx, metrics.L("type", "service_request"))
//
//	router.GET("/metrics", gin.WrapH(meter.Handler()))
package metrics

import (
	"context"
	"net/http"
)

// Counter 计数器，只能增加
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加给定的值，负数会被忽略
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘，记录可以任意增减的瞬时值，例如队列长度、端点数量
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图，记录值的分布情况
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂
//
// 通过 Meter 创建的指标是并发安全的。同名指标重复创建时返回同一组底层数据。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Handler 返回 Prometheus 抓取 Handler；禁用时返回 404
	Handler() http.Handler

	// Shutdown 关闭 Meter，通常在进程退出时调用
	Shutdown(ctx context.Context) error
}

// MetricOption 指标配置选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit 指标单位，建议使用 UCUM 代码，例如 "s"、"By"
	Unit string

	// Buckets 直方图桶边界，仅对 Histogram 生效
	Buckets []float64
}

// WithUnit 设置指标的单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图桶边界
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}

func applyMetricOptions(opts []MetricOption) *MetricOptions {
	o := &MetricOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
