package event

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ceyewan/meshd/clog"
	"github.com/ceyewan/meshd/connector"
	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/metrics"
	"github.com/ceyewan/meshd/trace"
	"github.com/ceyewan/meshd/xerrors"
)

// MetricPublished 事件发布计数
const MetricPublished = "mesh_events_published_total"

// publishConn *nats.Conn 的发布子集
type publishConn interface {
	PublishMsg(m *nats.Msg) error
}

type natsPublisher struct {
	cfg       *Config
	conn      publishConn
	logger    clog.Logger
	published metrics.Counter
}

// NewNATS 基于 NATS 连接器创建 Publisher
//
// cfg.Enabled 为 false 时返回 Discard()。连接器必须已经 Connect。
func NewNATS(conn connector.NATSConnector, cfg *Config, opts ...Option) (Publisher, error) {
	if cfg == nil || !cfg.Enabled {
		return Discard(), nil
	}
	if conn == nil || conn.GetClient() == nil {
		return nil, xerrors.Wrap(connector.ErrNotConnected, "event: nats connector")
	}
	return newPublisher(conn.GetClient(), cfg, opts...)
}

func newPublisher(conn publishConn, cfg *Config, opts ...Option) (*natsPublisher, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := options{logger: clog.Discard(), meter: metrics.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	published, err := o.meter.Counter(MetricPublished, "Mesh events published to NATS.")
	if err != nil {
		return nil, xerrors.Wrapf(err, "create %s", MetricPublished)
	}
	return &natsPublisher{cfg: cfg, conn: conn, logger: o.logger, published: published}, nil
}

// Publish 编码并发布事件；nats 客户端内部缓冲，不等待服务端确认。
// 链路上下文写入消息头，订阅方用 Handle 关联。
func (p *natsPublisher) Publish(ctx context.Context, e Event) error {
	subject := p.cfg.Subject(e.Kind)
	spanCtx, span, headers := trace.StartPublishSpan(ctx, subject,
		attribute.String(trace.AttrMeshID, e.MeshID),
		attribute.String(AttrKind, string(e.Kind)),
	)
	defer span.End()

	data, contentType, err := p.encode(e)
	if err == nil {
		msg := nats.NewMsg(subject)
		msg.Data = data
		msg.Header.Set(HeaderContentType, contentType)
		for k, v := range headers {
			msg.Header.Set(k, v)
		}
		err = p.conn.PublishMsg(msg)
	}
	trace.MarkSpanError(span, err)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		p.logger.WarnContext(spanCtx, "failed to publish mesh event",
			clog.String("kind", string(e.Kind)),
			clog.String("service", e.Service),
			clog.Error(err),
		)
	}
	p.published.Inc(ctx, metrics.L("kind", string(e.Kind)), metrics.L(metrics.LabelOutcome, outcome))
	return err
}

func (p *natsPublisher) encode(e Event) ([]byte, string, error) {
	if p.cfg.Encoding == frame.CodecMsgpack {
		data, err := msgpack.Marshal(e)
		return data, ContentTypeMsgpack, err
	}
	data, err := json.Marshal(e)
	return data, ContentTypeJSON, err
}

// Close 连接由 connector 负责关闭
func (p *natsPublisher) Close() error {
	return nil
}
