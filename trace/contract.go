package trace

const (
	// Messaging 语义属性键
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
	AttrMessagingOperation   = "messaging.operation"

	// 代理与 mesh 属性键
	AttrPeerService = "peer.service"
	AttrHTTPMethod  = "http.request.method"
	AttrHTTPStatus  = "http.response.status_code"
	AttrMeshID      = "meshd.mesh_id"
)

const MessagingSystemNATS = "nats"

const (
	MessagingOperationPublish = "publish"
	MessagingOperationConsume = "consume"
)

// SpanNamePublish 发布到主题的 Span 名
func SpanNamePublish(subject string) string {
	if subject == "" {
		return "nats.publish"
	}
	return "nats.publish " + subject
}

// SpanNameConsume 从主题消费的 Span 名
func SpanNameConsume(subject string) string {
	if subject == "" {
		return "nats.consume"
	}
	return "nats.consume " + subject
}

// SpanNameProxy 代理调用外部服务的 Span 名
func SpanNameProxy(service string) string {
	return "proxy " + service
}
