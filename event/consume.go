package event

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/meshd/trace"
	"github.com/ceyewan/meshd/xerrors"
)

const (
	// HeaderContentType 消息头中事件的编码
	HeaderContentType = "Content-Type"

	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"

	// AttrKind Span 上的事件类型属性
	AttrKind = "meshd.event.kind"
)

// Decode 按消息头的 Content-Type 解码事件，缺省为 JSON
func Decode(msg *nats.Msg) (Event, error) {
	var e Event
	if msg == nil {
		return e, xerrors.Wrap(xerrors.ErrInvalidInput, "event: nil message")
	}
	var err error
	if msg.Header.Get(HeaderContentType) == ContentTypeMsgpack {
		err = msgpack.Unmarshal(msg.Data, &e)
	} else {
		err = json.Unmarshal(msg.Data, &e)
	}
	if err != nil {
		return e, xerrors.Wrapf(err, "decode event from %s", msg.Subject)
	}
	return e, nil
}

// Handle 供订阅 mesh 事件的一方使用：解码消息，在以 Link 关联发布方的消费者 Span 中调用 fn
//
//	sub, _ := nc.Subscribe("mesh.events.>", func(msg *nats.Msg) {
//		_ = event.Handle(ctx, msg, audit)
//	})
func Handle(ctx context.Context, msg *nats.Msg, fn func(context.Context, Event) error) error {
	e, err := Decode(msg)
	if err != nil {
		return err
	}

	ctx, span := trace.StartConsumeSpan(ctx, msg.Subject, headerMap(msg.Header), trace.RelationLink,
		attribute.String(trace.AttrMeshID, e.MeshID),
		attribute.String(AttrKind, string(e.Kind)),
	)
	defer span.End()

	err = fn(ctx, e)
	trace.MarkSpanError(span, err)
	return err
}

func headerMap(h nats.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
