package clog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/meshd/xerrors"
)

func newBufferLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	opts = append(opts, WithWriter(&buf))
	logger, err := New(&Config{Level: level, Format: "json"}, opts...)
	require.NoError(t, err)
	return logger, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNew(t *testing.T) {
	logger, err := New(nil)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = New(&Config{Level: "verbose"})
	assert.Error(t, err)

	_, err = New(&Config{Level: "info", Format: "xml"})
	assert.Error(t, err)
}

func TestLoggerLevels(t *testing.T) {
	logger, buf := newBufferLogger(t, "debug")

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)
	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "INFO", lines[1]["level"])
	assert.Equal(t, "WARN", lines[2]["level"])
	assert.Equal(t, "ERROR", lines[3]["level"])
}

func TestLoggerSetLevel(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel(DebugLevel))
	logger.Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestLoggerFields(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	logger.Info("routed",
		String("service", "billing"),
		Int("endpoints", 2),
		Bool("healthy", true),
		Error(errors.New("boom")),
		Error(nil),
	)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "billing", lines[0]["service"])
	assert.Equal(t, float64(2), lines[0]["endpoints"])
	assert.Equal(t, true, lines[0]["healthy"])
	assert.Equal(t, "boom", lines[0]["err_msg"])
}

func TestLoggerWithTraceContext(t *testing.T) {
	logger, buf := newBufferLogger(t, "info", WithTraceContext())

	traceID, err := oteltrace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := oteltrace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: oteltrace.FlagsSampled,
	})
	ctx := oteltrace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "with span")
	logger.InfoContext(context.Background(), "without span")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", lines[0][TraceIDKey])
	assert.Equal(t, "00f067aa0ba902b7", lines[0][SpanIDKey])
	assert.NotContains(t, lines[1], TraceIDKey)
}

func TestLoggerWithNamespace(t *testing.T) {
	logger, buf := newBufferLogger(t, "info", WithNamespace("meshd"))

	logger.WithNamespace("mesh").Info("child")
	logger.Info("parent")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "meshd.mesh", lines[0][NamespaceKey])
	assert.Equal(t, "meshd", lines[1][NamespaceKey])
}

func TestLoggerWith(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")

	child := logger.With(String("endpoint", "ep-1"))
	child.Info("one")
	logger.Info("two")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "ep-1", lines[0]["endpoint"])
	assert.NotContains(t, lines[1], "endpoint")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"warn", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"fatal", FatalLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestErrorField(t *testing.T) {
	logger, buf := newBufferLogger(t, "info")
	logger.Error("plain", Error(errors.New("bad frame")))
	logger.Error("coded", Error(xerrors.WithCode(errors.New("breaker open"), "circuit_open")))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "bad frame", lines[0]["err_msg"])
	assert.NotContains(t, lines[0], "err_code")
	assert.Equal(t, "circuit_open", lines[1]["err_code"])
	assert.Contains(t, lines[1]["err_msg"], "breaker open")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: "info", Format: "console"}, WithWriter(&buf))
	require.NoError(t, err)

	logger.Info("plain text", String("k", "v"))
	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "k=v")
}

func TestAddSource(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: "info", Format: "json", AddSource: true}, WithWriter(&buf))
	require.NoError(t, err)

	logger.Info("where")
	assert.Contains(t, buf.String(), `"caller":"clog/clog_test.go:`)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.With(String("a", "b")).WithNamespace("x").Info("nothing")
	assert.NoError(t, logger.SetLevel(DebugLevel))
	logger.Flush()
}
