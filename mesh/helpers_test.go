package mesh

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/meshd/auth"
	"github.com/ceyewan/meshd/breaker"
	"github.com/ceyewan/meshd/event"
	"github.com/ceyewan/meshd/frame"
)

const testSecret = "mesh-test-secret"

type fakeConn struct {
	mu     sync.Mutex
	frames []frame.Frame
	closed bool
	code   int
	reason string
	full   bool
}

func (c *fakeConn) Send(f frame.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.full {
		return ErrSendBufferFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed, c.code, c.reason = true, code, reason
}

func (c *fakeConn) received() []frame.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeConn) isClosed() (bool, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code
}

// ofType 过滤出指定类型的帧
func ofType[T frame.Frame](c *fakeConn) []T {
	var out []T
	for _, f := range c.received() {
		if v, ok := f.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

type recordingEvents struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingEvents) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) kinds() []event.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

type clock struct {
	t time.Time
}

func (c *clock) now() time.Time           { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	core   *Core
	bank   breaker.Bank
	clock  *clock
	events *recordingEvents
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()

	cfg := &Config{MeshID: "mesh-test"}
	for _, fn := range mutate {
		fn(cfg)
	}

	authn, err := auth.NewSharedSecret(testSecret)
	require.NoError(t, err)
	bank, err := breaker.New(&breaker.Config{Threshold: 5, Timeout: time.Minute})
	require.NoError(t, err)

	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	events := &recordingEvents{}
	core, err := NewCore(cfg, authn, bank, withClock(clk.now), WithEvents(events))
	require.NoError(t, err)

	return &harness{core: core, bank: bank, clock: clk, events: events}
}

// register 注册端点并清空其欢迎帧
func (h *harness) register(t *testing.T, name string) (*Endpoint, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	ep, err := h.core.Register(context.Background(), auth.Credentials{
		Token:   testSecret,
		Service: name,
		Host:    "10.0.0.1",
		Port:    9000,
	}, conn)
	require.NoError(t, err)
	return ep, conn
}

func resetAll(conns ...*fakeConn) {
	for _, c := range conns {
		c.reset()
	}
}
