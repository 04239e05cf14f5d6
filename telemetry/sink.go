package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/spetersoncode/toolflow/event"
)

// LogSink writes events to a slog logger. Failures are logged at Warn,
// retries at Info and everything else at Debug.
type LogSink struct {
	logger *slog.Logger
}

var _ event.Sink = (*LogSink)(nil)

// NewLogSink creates a LogSink. A nil logger uses slog.Default().
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Emit logs e.
func (s *LogSink) Emit(e event.Event) {
	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs, slog.String("event", string(e.Type)))
	if e.Capability != "" {
		attrs = append(attrs, slog.String("capability", e.Capability))
	}
	if e.InvocationID != "" {
		attrs = append(attrs, slog.String("invocation_id", e.InvocationID))
	}
	if e.Field != "" {
		attrs = append(attrs, slog.String("field", e.Field))
	}
	if e.Source != "" {
		attrs = append(attrs, slog.String("source", string(e.Source)))
	}
	if e.Peer != "" {
		attrs = append(attrs, slog.String("peer", e.Peer))
	}
	if e.Step > 0 {
		attrs = append(attrs, slog.Int("step", e.Step))
	}
	if e.Cycle > 0 {
		attrs = append(attrs, slog.Int("cycle", e.Cycle))
	}
	if e.Type == event.RetryAttempt {
		attrs = append(attrs, slog.Int("attempt", e.Attempt), slog.Duration("delay", e.Delay))
	}
	if e.Error != nil {
		attrs = append(attrs, slog.Any("error", e.Error))
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Type)
	}
	s.logger.LogAttrs(context.Background(), levelFor(e.Type), msg, attrs...)
}

func levelFor(t event.Type) slog.Level {
	switch t {
	case event.TurnError, event.CapabilityFailed, event.FieldUnresolved, event.PeerFailed:
		return slog.LevelWarn
	case event.RetryAttempt:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// MetricsSink counts events with OpenTelemetry instruments.
//
// Instruments:
//   - toolflow.events: every event, by type
//   - toolflow.turns: finished turns, by outcome
//   - toolflow.capability.invocations: capability runs, by capability and outcome
//   - toolflow.fields.resolved: resolved arguments, by source
//   - toolflow.fields.unresolved: arguments no source could supply
//   - toolflow.retries: retried attempts
type MetricsSink struct {
	events      metric.Int64Counter
	turns       metric.Int64Counter
	invocations metric.Int64Counter
	resolved    metric.Int64Counter
	unresolved  metric.Int64Counter
	retries     metric.Int64Counter
}

var _ event.Sink = (*MetricsSink)(nil)

// NewMetricsSink creates the instruments on mp. A nil mp uses the global
// meter provider.
func NewMetricsSink(mp metric.MeterProvider) (*MetricsSink, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("github.com/spetersoncode/toolflow")

	s := &MetricsSink{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&s.events, "toolflow.events", "Events emitted by type"},
		{&s.turns, "toolflow.turns", "Finished turns by outcome"},
		{&s.invocations, "toolflow.capability.invocations", "Capability runs by capability and outcome"},
		{&s.resolved, "toolflow.fields.resolved", "Resolved arguments by source"},
		{&s.unresolved, "toolflow.fields.unresolved", "Arguments no source could supply"},
		{&s.retries, "toolflow.retries", "Retried attempts"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return s, nil
}

// Emit records e.
func (s *MetricsSink) Emit(e event.Event) {
	ctx := context.Background()
	s.events.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(e.Type))))

	switch e.Type {
	case event.TurnEnd:
		s.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	case event.TurnError:
		s.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
	case event.CapabilityResult:
		s.invocations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("capability", e.Capability),
			attribute.String("outcome", "success"),
		))
	case event.CapabilityFailed:
		s.invocations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("capability", e.Capability),
			attribute.String("outcome", "error"),
		))
	case event.FieldResolved:
		s.resolved.Add(ctx, 1, metric.WithAttributes(attribute.String("source", string(e.Source))))
	case event.FieldUnresolved:
		s.unresolved.Add(ctx, 1)
	case event.RetryAttempt:
		s.retries.Add(ctx, 1)
	}
}
