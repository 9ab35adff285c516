package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

func TestInitializeDisabled(t *testing.T) {
	shutdown, err := Initialize(Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	ctx, span := StartSpan(context.Background(), "noop", "task_id", "resp_1")
	defer span.End()
	assert.NotNil(t, ctx)
}

func TestTraceparentRoundTrip(t *testing.T) {
	traceID, _ := oteltrace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := oteltrace.SpanIDFromHex("00f067aa0ba902b7")
	sc := oteltrace.NewSpanContext(oteltrace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: oteltrace.FlagsSampled,
	})
	ctx := oteltrace.ContextWithSpanContext(context.Background(), sc)

	header := W3CTraceparent(ctx)
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", header)

	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	InjectTraceparent(ctx, req)
	assert.Equal(t, header, req.Header.Get("traceparent"))

	tid, sid, flags, ok := ParseTraceparent(header)
	require.True(t, ok)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", tid)
	assert.Equal(t, "00f067aa0ba902b7", sid)
	assert.Equal(t, byte(1), flags)
}

func TestParseTraceparentRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "01-a-b-00", "00-short-00f067aa0ba902b7-01", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7"} {
		_, _, _, ok := ParseTraceparent(in)
		assert.False(t, ok, in)
	}
}

func TestInjectWithoutSpanLeavesHeaderUnset(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	InjectTraceparent(context.Background(), req)
	assert.Empty(t, req.Header.Get("traceparent"))
}
