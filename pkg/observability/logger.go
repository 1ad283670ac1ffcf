package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrMode    = "mode"

	// AttrCandidate is the log attribute key for a candidate passphrase.
	// Its value is redacted unless secrets are revealed explicitly.
	AttrCandidate = "candidate"

	redacted = "[REDACTED]"
)

// TracingHandler is an [slog.Handler] that injects OpenTelemetry trace context
// (trace_id, span_id) and service metadata into every log record, and redacts
// candidate passphrases.
type TracingHandler struct {
	inner  slog.Handler
	reveal bool
}

// NewTracingHandler wraps an [slog.Handler], injecting trace context and service metadata.
// Service attributes are pre-attached so they stay at the top level under WithGroup.
// When reveal is false, [AttrCandidate] values are replaced with a placeholder.
func NewTracingHandler(inner slog.Handler, service string, appMode AppMode, reveal bool) *TracingHandler {
	return &TracingHandler{
		inner: inner.WithAttrs([]slog.Attr{
			slog.String(attrService, service),
			slog.String(attrMode, string(appMode)),
		}),
		reveal: reveal,
	}
}

// Enabled delegates to the inner handler.
func (th *TracingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return th.inner.Enabled(ctx, level)
}

// Handle redacts secrets and adds trace context attributes, then delegates.
func (th *TracingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := record

	if !th.reveal {
		out = slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
		record.Attrs(func(attr slog.Attr) bool {
			out.AddAttrs(th.redact(attr))

			return true
		})
	}

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		out.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := th.inner.Handle(ctx, out)
	if err != nil {
		return fmt.Errorf("tracing handler: %w", err)
	}

	return nil
}

func (th *TracingHandler) redact(attr slog.Attr) slog.Attr {
	if th.reveal {
		return attr
	}

	if attr.Key == AttrCandidate {
		return slog.String(attr.Key, redacted)
	}

	if attr.Value.Kind() != slog.KindGroup {
		return attr
	}

	group := attr.Value.Group()
	cleaned := make([]any, 0, len(group))

	for _, member := range group {
		cleaned = append(cleaned, th.redact(member))
	}

	return slog.Group(attr.Key, cleaned...)
}

// WithAttrs returns a new TracingHandler with additional (redacted) attributes on the inner handler.
func (th *TracingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, 0, len(attrs))
	for _, attr := range attrs {
		cleaned = append(cleaned, th.redact(attr))
	}

	return &TracingHandler{
		inner:  th.inner.WithAttrs(cleaned),
		reveal: th.reveal,
	}
}

// WithGroup returns a new TracingHandler with a group prefix on the inner handler.
func (th *TracingHandler) WithGroup(name string) slog.Handler {
	return &TracingHandler{
		inner:  th.inner.WithGroup(name),
		reveal: th.reveal,
	}
}
