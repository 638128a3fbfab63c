package metrics

import "strconv"

// Label 指标标签，为指标添加维度信息
//
// 标签值应当保持低基数：服务名、帧类型、状态码可以，连接 ID、请求 ID 不行。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

const (
	// 常见的标签
	LabelService     = "service"
	LabelMethod      = "method"
	LabelRoute       = "route"
	LabelStatusClass = "status_class"
	LabelOutcome     = "outcome"
	LabelType        = "type"
	LabelStatus      = "status"
)

const (
	// 常见的结果
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// UnknownRoute 未命中路由时使用的 route 标签值
const UnknownRoute = "unknown"

// HTTPStatusClass 返回 HTTP 状态类标签值：1xx/2xx/3xx/4xx/5xx/unknown
func HTTPStatusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

// HTTPOutcome 将 HTTP 状态码映射到结果标签，websocket 升级成功（101）记为 success
func HTTPOutcome(status int) string {
	if status == 101 || (status >= 200 && status < 400) {
		return OutcomeSuccess
	}
	return OutcomeError
}
