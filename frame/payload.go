package frame

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload 不透明的消息体
//
// JSON 编码时，合法的 JSON 原样输出，否则作为字符串输出；msgpack 编码为 bin。
type Payload []byte

// IsEmpty 空值或 JSON null 视为空
func (p Payload) IsEmpty() bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// MarshalJSON 实现 json.Marshaler
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	if json.Valid(p) {
		return p, nil
	}
	return json.Marshal(string(p))
}

// UnmarshalJSON 实现 json.Unmarshaler，保留原始字节
func (p *Payload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}

// Text 构造一个 JSON 字符串载荷
func Text(s string) Payload {
	b, _ := json.Marshal(s)
	return b
}

// EncodeMsgpack 实现 msgpack.CustomEncoder：JSON 载荷转换为原生 msgpack 值
func (p Payload) EncodeMsgpack(enc *msgpack.Encoder) error {
	if p.IsEmpty() {
		return enc.EncodeNil()
	}
	if !json.Valid(p) {
		return enc.EncodeBytes(p)
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return enc.Encode(normalizeNumbers(v))
}

// DecodeMsgpack 实现 msgpack.CustomDecoder：原生值转换为 JSON，bin 原样保留
func (p *Payload) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		*p = append((*p)[:0], val...)
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*p = b
	return nil
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}
