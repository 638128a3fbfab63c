package trace

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// StartClientSpan 为一次出站 HTTP 调用启动客户端 Span，并把上下文写入 header
func StartClientSpan(ctx context.Context, service, method string, header http.Header) (context.Context, oteltrace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	spanCtx, span := Tracer().Start(ctx, SpanNameProxy(service),
		oteltrace.WithSpanKind(oteltrace.SpanKindClient),
		oteltrace.WithAttributes(
			attribute.String(AttrPeerService, service),
			attribute.String(AttrHTTPMethod, method),
		),
	)
	if header != nil {
		InjectHTTP(spanCtx, header)
	}
	return spanCtx, span
}

// EndClientSpan 记录响应状态码；5xx 标记为错误
func EndClientSpan(span oteltrace.Span, status int, err error) {
	if status > 0 {
		span.SetAttributes(attribute.Int(AttrHTTPStatus, status))
	}
	if err == nil && status >= http.StatusInternalServerError {
		err = &statusError{status: status}
	}
	MarkSpanError(span, err)
	span.End()
}

type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return "upstream returned " + http.StatusText(e.status)
}
