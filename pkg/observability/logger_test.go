package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/passcrack/pkg/observability"
)

func newJSONLogger(buf *bytes.Buffer, reveal bool) *slog.Logger {
	inner := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(observability.NewTracingHandler(inner, "passcrack", observability.ModeCLI, reveal))
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	return record
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, false)

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.InfoContext(ctx, "test message")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["trace_id"])
	assert.Equal(t, "0102030405060708", record["span_id"])
	assert.Equal(t, "passcrack", record["service"])
	assert.Equal(t, "cli", record["mode"])
}

func TestTracingHandler_NoTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	newJSONLogger(&buf, false).InfoContext(context.Background(), "no span")

	record := decodeRecord(t, &buf)

	_, hasTraceID := record["trace_id"]
	assert.False(t, hasTraceID)
	assert.Equal(t, "passcrack", record["service"])
}

func TestTracingHandler_RedactsCandidate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	newJSONLogger(&buf, false).Debug("check failed",
		slog.String(observability.AttrCandidate, "hunter2"),
		slog.Group("hit", slog.String(observability.AttrCandidate, "hunter2"), slog.Int("worker", 3)),
	)

	assert.NotContains(t, buf.String(), "hunter2")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "[REDACTED]", record[observability.AttrCandidate])

	hit, ok := record["hit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", hit[observability.AttrCandidate])
	assert.InDelta(t, 3, hit["worker"], 0)
}

func TestTracingHandler_RedactsWithAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := newJSONLogger(&buf, false).With(observability.AttrCandidate, "hunter2", "op", "check")
	logger.Info("started")

	assert.NotContains(t, buf.String(), "hunter2")

	record := decodeRecord(t, &buf)
	assert.Equal(t, "check", record["op"])
}

func TestTracingHandler_RevealKeepsCandidate(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	newJSONLogger(&buf, true).Info("hit", slog.String(observability.AttrCandidate, "hunter2"))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "hunter2", record[observability.AttrCandidate])
}

func TestTracingHandler_WithGroup(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	grouped := newJSONLogger(&buf, false).WithGroup("pipeline")
	grouped.InfoContext(context.Background(), "stage done", slog.String("stage", "drain"))

	record := decodeRecord(t, &buf)
	assert.Equal(t, "passcrack", record["service"])

	pipeline, ok := record["pipeline"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "drain", pipeline["stage"])
}
