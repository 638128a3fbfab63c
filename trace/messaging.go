package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Relation 消费者 Span 与发布者 Span 的关系
type Relation string

const (
	// RelationLink 消费者开启新 Trace，通过 Link 指向发布者（默认）
	RelationLink Relation = "link"
	// RelationChildOf 消费者作为发布者的子 Span，串成单条 Trace
	RelationChildOf Relation = "child_of"
)

func natsAttributes(subject, operation string, extra []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(extra)+3)
	attrs = append(attrs,
		attribute.String(AttrMessagingSystem, MessagingSystemNATS),
		attribute.String(AttrMessagingDestination, subject),
		attribute.String(AttrMessagingOperation, operation),
	)
	return append(attrs, extra...)
}

// StartPublishSpan 为发往 subject 的消息启动生产者 Span，返回需要写入消息头的链路上下文
func StartPublishSpan(ctx context.Context, subject string, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span, map[string]string) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := Tracer().Start(ctx, SpanNamePublish(subject),
		oteltrace.WithSpanKind(oteltrace.SpanKindProducer),
		oteltrace.WithAttributes(natsAttributes(subject, MessagingOperationPublish, attrs)...),
	)
	headers := make(map[string]string)
	Inject(ctx, headers)
	return ctx, span, headers
}

// StartConsumeSpan 从消息头恢复发布方的链路上下文并启动消费者 Span。
// 消息头里没有有效上下文时，两种关系都退化为一个新的根 Span。
func StartConsumeSpan(ctx context.Context, subject string, headers map[string]string, rel Relation, attrs ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := []oteltrace.SpanStartOption{
		oteltrace.WithSpanKind(oteltrace.SpanKindConsumer),
		oteltrace.WithAttributes(natsAttributes(subject, MessagingOperationConsume, attrs)...),
	}

	parent := ctx
	remote := oteltrace.SpanContextFromContext(Extract(ctx, headers))
	if remote.IsValid() {
		if rel == RelationChildOf {
			parent = oteltrace.ContextWithRemoteSpanContext(ctx, remote)
		} else {
			opts = append(opts, oteltrace.WithLinks(oteltrace.Link{SpanContext: remote}))
		}
	}
	return Tracer().Start(parent, SpanNameConsume(subject), opts...)
}

// MarkSpanError err 不为 nil 时记录错误并标记 Span 状态
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
