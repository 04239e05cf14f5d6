package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/spetersoncode/toolflow/event"
)

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

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	t.Run("adds span ids", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "info", "json")

		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())
		ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
		logger.InfoContext(ctx, "inside")
		span.End()
		logger.Info("outside")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 2)
		assert.Equal(t, span.SpanContext().TraceID().String(), lines[0]["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), lines[0]["span_id"])
		assert.NotContains(t, lines[1], "trace_id")
	})

	t.Run("keeps explicit trace ids", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "info", "json")

		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())
		ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
		defer span.End()
		logger.InfoContext(ctx, "msg", "trace_id", "custom")

		lines := decodeLines(t, &buf)
		require.Len(t, lines, 1)
		assert.Equal(t, "custom", lines[0]["trace_id"])
	})

	t.Run("respects level", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(&buf, "warn", "text")
		logger.Info("hidden")
		logger.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("configure sets the default", func(t *testing.T) {
		prev := slog.Default()
		defer slog.SetDefault(prev)

		var buf bytes.Buffer
		logger := ConfigureSlog(&buf, "debug", "text")
		assert.Same(t, logger, slog.Default())
	})
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(NewLogger(&buf, "debug", "json"))

	sink.Emit(event.Event{Type: event.FieldResolved, Capability: "sendMessage", Field: "channel", Source: event.SourceMemory, Cycle: 1})
	sink.Emit(event.Event{Type: event.CapabilityFailed, Capability: "sendMessage", Error: errors.New("rate_limited"), Message: "capability failed"})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "DEBUG", lines[0]["level"])
	assert.Equal(t, "field_resolved", lines[0]["msg"])
	assert.Equal(t, "channel", lines[0]["field"])
	assert.Equal(t, "memory", lines[0]["source"])
	assert.EqualValues(t, 1, lines[0]["cycle"])
	assert.NotContains(t, lines[0], "peer")

	assert.Equal(t, "WARN", lines[1]["level"])
	assert.Equal(t, "capability failed", lines[1]["msg"])
	assert.Equal(t, "rate_limited", lines[1]["error"])
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string, match func(attribute.Set) bool) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if match == nil || match(dp.Attributes) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func attrIs(key, value string) func(attribute.Set) bool {
	return func(s attribute.Set) bool {
		v, ok := s.Value(attribute.Key(key))
		return ok && v.AsString() == value
	}
}

func TestMetricsSink(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	sink, err := NewMetricsSink(mp)
	require.NoError(t, err)

	for _, e := range []event.Event{
		{Type: event.TurnStart},
		{Type: event.FieldResolved, Field: "channel", Source: event.SourceMemory},
		{Type: event.FieldResolved, Field: "text", Source: event.SourcePrompt},
		{Type: event.FieldUnresolved, Field: "ts"},
		{Type: event.RetryAttempt, Attempt: 1},
		{Type: event.CapabilityResult, Capability: "sendMessage"},
		{Type: event.CapabilityFailed, Capability: "addReaction"},
		{Type: event.TurnEnd},
	} {
		sink.Emit(e)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	assert.EqualValues(t, 8, sumOf(t, rm, "toolflow.events", nil))
	assert.EqualValues(t, 2, sumOf(t, rm, "toolflow.events", attrIs("type", "field_resolved")))
	assert.EqualValues(t, 1, sumOf(t, rm, "toolflow.turns", attrIs("outcome", "success")))
	assert.EqualValues(t, 1, sumOf(t, rm, "toolflow.fields.resolved", attrIs("source", "memory")))
	assert.EqualValues(t, 1, sumOf(t, rm, "toolflow.fields.unresolved", nil))
	assert.EqualValues(t, 1, sumOf(t, rm, "toolflow.retries", nil))
	assert.EqualValues(t, 1, sumOf(t, rm, "toolflow.capability.invocations", attrIs("outcome", "error")))
	assert.EqualValues(t, 1, sumOf(t, rm, "toolflow.capability.invocations", attrIs("capability", "sendMessage")))
}

func TestInit(t *testing.T) {
	t.Run("none installs nothing", func(t *testing.T) {
		shutdown, err := Init(context.Background(), "toolflow", "test", Config{Exporter: "none"})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("stdout", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Init(context.Background(), "toolflow", "test", Config{Exporter: "stdout", Writer: &buf})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("otlp needs an endpoint", func(t *testing.T) {
		_, err := Init(context.Background(), "toolflow", "test", Config{Exporter: "otlp"})
		assert.Error(t, err)
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := Init(context.Background(), "toolflow", "test", Config{Exporter: "zipkin"})
		assert.Error(t, err)
	})
}
