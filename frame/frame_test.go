package frame

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestLookup(t *testing.T) {
	c, err := Lookup("")
	require.NoError(t, err)
	assert.Equal(t, CodecJSON, c.Name())
	assert.False(t, c.Binary())

	c, err = Lookup("MsgPack")
	require.NoError(t, err)
	assert.Equal(t, CodecMsgpack, c.Name())
	assert.True(t, c.Binary())

	_, err = Lookup("protobuf")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}

func TestJSONDecodeWorkerFrames(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Frame
	}{
		{
			name:  "service request defaults to normal priority",
			input: `{"type":"service_request","target":"billing","requestId":"r-1","payload":{"amount":3}}`,
			want:  &ServiceRequest{Target: "billing", RequestID: "r-1", Payload: Payload(`{"amount":3}`), Priority: PriorityNormal},
		},
		{
			name:  "high priority request",
			input: `{"type":"service_request","target":"vault","requestId":"r-2","priority":"high"}`,
			want:  &ServiceRequest{Target: "vault", RequestID: "r-2", Priority: PriorityHigh},
		},
		{
			name:  "response with error",
			input: `{"type":"service_response","target":"gateway","requestId":"r-1","error":"timeout"}`,
			want:  &ServiceResponse{Target: "gateway", RequestID: "r-1", Error: Payload(`"timeout"`)},
		},
		{
			name:  "broadcast",
			input: `{"type":"broadcast","payload":[1,2],"exclude":["auditor"]}`,
			want:  &Broadcast{Payload: Payload(`[1,2]`), Exclude: []string{"auditor"}},
		},
		{
			name:  "health update false",
			input: `{"type":"health_update","healthy":false,"details":{"disk":"full"}}`,
			want:  &HealthUpdate{Healthy: false, Details: Payload(`{"disk":"full"}`)},
		},
		{
			name:  "breaker control",
			input: `{"type":"circuit_breaker","target":"billing","action":"open"}`,
			want:  &CircuitBreakerControl{Target: "billing", Action: ActionOpen},
		},
		{
			name:  "pong",
			input: `{"type":"pong"}`,
			want:  &Pong{},
		},
		{
			name:  "unknown",
			input: `{"type":"ritual_started","level":3}`,
			want:  &Unknown{Name: "ritual_started"},
		},
		{
			name:  "missing type",
			input: `{"target":"billing"}`,
			want:  &Unknown{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JSON.Decode([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJSONDecodeMalformed(t *testing.T) {
	_, err := JSON.Decode([]byte(`{"type":`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Msgpack.Decode([]byte{0xc1})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestHealthUpdateWithoutFlagIsMalformed(t *testing.T) {
	_, err := JSON.Decode([]byte(`{"type":"health_update","details":{"disk":"ok"}}`))
	assert.ErrorIs(t, err, ErrMalformed)

	data, err := msgpack.Marshal(map[string]any{"type": "health_update"})
	require.NoError(t, err)
	_, err = Msgpack.Decode(data)
	assert.ErrorIs(t, err, ErrMalformed)

	f, err := JSON.Decode([]byte(`{"type":"health_update","healthy":true}`))
	require.NoError(t, err)
	assert.Equal(t, &HealthUpdate{Healthy: true}, f)
}

func TestJSONEncodeSystemFrames(t *testing.T) {
	data, err := JSON.Encode(&MeshWelcome{Services: []string{"billing", "vault"}, MeshID: "mesh-1", EndpointID: "ep-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mesh_welcome","services":["billing","vault"],"mesh_id":"mesh-1","endpoint_id":"ep-1"}`, string(data))

	data, err = JSON.Encode(&ServiceAvailable{Service: "billing", Endpoint: EndpointInfo{ID: "ep-2", Host: "10.0.0.2", Port: 9000}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_available","service":"billing","endpoint":{"id":"ep-2","host":"10.0.0.2","port":9000}}`, string(data))

	data, err = JSON.Encode(&ServiceResponse{Target: "gateway", RequestID: "r-9", Status: StatusCircuitOpen, Error: Text("circuit open")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_response","target":"gateway","requestId":"r-9","status":"circuit_open","error":"circuit open"}`, string(data))

	data, err = JSON.Encode(&MeshShutdown{Message: "bye"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mesh_shutdown","message":"bye"}`, string(data))

	data, err = JSON.Encode(&HealthUpdate{Healthy: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"health_update","healthy":false}`, string(data))

	_, err = JSON.Encode(nil)
	assert.Error(t, err)
}

func TestPayloadNonJSONBytes(t *testing.T) {
	data, err := JSON.Encode(&Broadcast{Payload: Payload("not json")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"broadcast","payload":"not json"}`, string(data))
}

func TestMsgpackRoundTripPreservesFrames(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123)
	frames := []Frame{
		&ServiceRequest{Target: "billing", RequestID: "r-1", Payload: Payload(`{"amount":3,"items":["a"]}`), Priority: PriorityHigh, From: "gateway"},
		&ServiceResponse{Target: "gateway", RequestID: "r-1", Error: Text("boom"), From: "billing"},
		&Broadcast{Payload: Payload(`{"note":"hi"}`), Exclude: []string{"auditor"}},
		&Ping{Timestamp: ts},
		&ServiceUnavailable{Service: "billing"},
	}

	for _, f := range frames {
		t.Run(string(f.Type()), func(t *testing.T) {
			data, err := Msgpack.Encode(f)
			require.NoError(t, err)
			got, err := Msgpack.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, f.Type(), got.Type())

			// 载荷比较语义，而不是字节
			want, _ := JSON.Encode(f)
			have, _ := JSON.Encode(got)
			assert.JSONEq(t, string(want), string(have))
		})
	}
}

func TestMsgpackToJSONBridge(t *testing.T) {
	data, err := Msgpack.Encode(&ServiceRequest{Target: "billing", RequestID: "r-1", Payload: Payload(`{"n":42,"ok":true}`)})
	require.NoError(t, err)

	f, err := Msgpack.Decode(data)
	require.NoError(t, err)
	req, ok := f.(*ServiceRequest)
	require.True(t, ok)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.Payload, &payload))
	assert.Equal(t, float64(42), payload["n"])
	assert.Equal(t, true, payload["ok"])
}

func TestServiceResponseFailed(t *testing.T) {
	assert.False(t, (&ServiceResponse{}).Failed())
	assert.False(t, (&ServiceResponse{Error: Payload("null")}).Failed())
	assert.True(t, (&ServiceResponse{Error: Text("x")}).Failed())
	assert.False(t, (&ServiceResponse{Error: Payload(`""`)}).Failed())
	assert.False(t, (&ServiceResponse{Error: Payload(" false ")}).Failed())
	assert.True(t, (&ServiceResponse{Error: Payload("0")}).Failed())
}
