package frame

import (
	"time"

	"github.com/ceyewan/meshd/xerrors"
)

// wire 线上扁平结构，JSON 与 msgpack 共用
type wire struct {
	Type       Type          `json:"type" msgpack:"type"`
	Target     string        `json:"target,omitempty" msgpack:"target,omitempty"`
	RequestID  string        `json:"requestId,omitempty" msgpack:"requestId,omitempty"`
	Payload    Payload       `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Priority   Priority      `json:"priority,omitempty" msgpack:"priority,omitempty"`
	Error      Payload       `json:"error,omitempty" msgpack:"error,omitempty"`
	Status     Status        `json:"status,omitempty" msgpack:"status,omitempty"`
	From       string        `json:"from,omitempty" msgpack:"from,omitempty"`
	Exclude    []string      `json:"exclude,omitempty" msgpack:"exclude,omitempty"`
	Healthy    *bool         `json:"healthy,omitempty" msgpack:"healthy,omitempty"`
	Details    Payload       `json:"details,omitempty" msgpack:"details,omitempty"`
	Action     BreakerAction `json:"action,omitempty" msgpack:"action,omitempty"`
	Services   []string      `json:"services,omitempty" msgpack:"services,omitempty"`
	MeshID     string        `json:"mesh_id,omitempty" msgpack:"mesh_id,omitempty"`
	EndpointID string        `json:"endpoint_id,omitempty" msgpack:"endpoint_id,omitempty"`
	Service    string        `json:"service,omitempty" msgpack:"service,omitempty"`
	Endpoint   *EndpointInfo `json:"endpoint,omitempty" msgpack:"endpoint,omitempty"`
	Message    string        `json:"message,omitempty" msgpack:"message,omitempty"`
	Timestamp  int64         `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
}

func toWire(f Frame) *wire {
	w := &wire{Type: f.Type()}
	switch v := f.(type) {
	case *ServiceRequest:
		w.Target, w.RequestID, w.Payload, w.Priority, w.From = v.Target, v.RequestID, v.Payload, v.Priority, v.From
	case *ServiceResponse:
		w.Target, w.RequestID, w.Payload, w.Error, w.Status, w.From = v.Target, v.RequestID, v.Payload, v.Error, v.Status, v.From
	case *Broadcast:
		w.Payload, w.Exclude, w.From = v.Payload, v.Exclude, v.From
	case *HealthUpdate:
		healthy := v.Healthy
		w.Healthy, w.Details = &healthy, v.Details
	case *CircuitBreakerControl:
		w.Target, w.Action = v.Target, v.Action
	case *Ping:
		w.Timestamp = unixMilli(v.Timestamp)
	case *Pong:
		w.Timestamp = unixMilli(v.Timestamp)
	case *MeshWelcome:
		w.Services, w.MeshID, w.EndpointID = v.Services, v.MeshID, v.EndpointID
	case *ServiceAvailable:
		endpoint := v.Endpoint
		w.Service, w.Endpoint = v.Service, &endpoint
	case *ServiceUnavailable:
		w.Service = v.Service
	case *MeshShutdown:
		w.Message = v.Message
	case *Unknown:
	}
	return w
}

func fromWire(w *wire) (Frame, error) {
	switch w.Type {
	case TypeServiceRequest:
		priority := w.Priority
		if priority == "" {
			priority = PriorityNormal
		}
		return &ServiceRequest{Target: w.Target, RequestID: w.RequestID, Payload: w.Payload, Priority: priority, From: w.From}, nil
	case TypeServiceResponse:
		return &ServiceResponse{Target: w.Target, RequestID: w.RequestID, Payload: w.Payload, Error: w.Error, Status: w.Status, From: w.From}, nil
	case TypeBroadcast:
		return &Broadcast{Payload: w.Payload, Exclude: w.Exclude, From: w.From}, nil
	case TypeHealthUpdate:
		// 缺少 healthy 的更新不能当成健康上报
		if w.Healthy == nil {
			return nil, xerrors.Wrap(ErrMalformed, "health_update without healthy")
		}
		return &HealthUpdate{Healthy: *w.Healthy, Details: w.Details}, nil
	case TypeCircuitBreaker:
		return &CircuitBreakerControl{Target: w.Target, Action: w.Action}, nil
	case TypePing:
		return &Ping{Timestamp: fromUnixMilli(w.Timestamp)}, nil
	case TypePong:
		return &Pong{Timestamp: fromUnixMilli(w.Timestamp)}, nil
	case TypeMeshWelcome:
		return &MeshWelcome{Services: w.Services, MeshID: w.MeshID, EndpointID: w.EndpointID}, nil
	case TypeServiceAvailable:
		sa := &ServiceAvailable{Service: w.Service}
		if w.Endpoint != nil {
			sa.Endpoint = *w.Endpoint
		}
		return sa, nil
	case TypeServiceUnavailable:
		return &ServiceUnavailable{Service: w.Service}, nil
	case TypeMeshShutdown:
		return &MeshShutdown{Message: w.Message}, nil
	default:
		return &Unknown{Name: string(w.Type)}, nil
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
