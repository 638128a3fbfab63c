package frame

import (
	"encoding/json"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/meshd/xerrors"
)

var (
	// ErrUnknownCodec 不支持的编解码名称
	ErrUnknownCodec = xerrors.Wrap(xerrors.ErrInvalidInput, "frame: unknown codec")

	// ErrMalformed 帧无法解析
	ErrMalformed = xerrors.Wrap(xerrors.ErrInvalidInput, "frame: malformed")
)

// Codec 帧编解码器，实现必须是无状态且并发安全的
type Codec interface {
	// Name 编解码名称，用于握手协商
	Name() string

	// Binary 是否使用二进制 websocket 消息
	Binary() bool

	Encode(f Frame) ([]byte, error)

	// Decode 解析一帧；未知 type 返回 *Unknown 而不是错误
	Decode(data []byte) (Frame, error)
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// JSON 默认编解码器
var JSON Codec = jsonCodec{}

// Msgpack msgpack 编解码器，字段名与 JSON 相同
var Msgpack Codec = msgpackCodec{}

// Lookup 按名称查找编解码器，空名称返回 JSON
func Lookup(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSON, nil
	case CodecMsgpack:
		return Msgpack, nil
	default:
		return nil, xerrors.Wrapf(ErrUnknownCodec, "%q", name)
	}
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(f Frame) ([]byte, error) {
	if f == nil {
		return nil, xerrors.Wrap(ErrMalformed, "nil frame")
	}
	return json.Marshal(toWire(f))
}

func (jsonCodec) Decode(data []byte) (Frame, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, xerrors.Wrap(ErrMalformed, err.Error())
	}
	return fromWire(&w)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return CodecMsgpack }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Encode(f Frame) ([]byte, error) {
	if f == nil {
		return nil, xerrors.Wrap(ErrMalformed, "nil frame")
	}
	return msgpack.Marshal(toWire(f))
}

func (msgpackCodec) Decode(data []byte) (Frame, error) {
	var w wire
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, xerrors.Wrap(ErrMalformed, err.Error())
	}
	return fromWire(&w)
}
