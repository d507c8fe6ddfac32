package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/svclife/internal/domain"
)

// TracingNotifier wraps a domain.Notifier with OpenTelemetry tracing.
type TracingNotifier struct {
	next   domain.Notifier
	tracer trace.Tracer
}

// Compile-time check: TracingNotifier implements domain.Notifier.
var _ domain.Notifier = (*TracingNotifier)(nil)

// NewTracingNotifier creates a tracing decorator around the given notifier.
func NewTracingNotifier(next domain.Notifier) *TracingNotifier {
	return &TracingNotifier{
		next:   next,
		tracer: otel.Tracer(instrumentationName),
	}
}

func (n *TracingNotifier) Notify(ctx context.Context, note domain.Notification) error {
	ctx, span := n.tracer.Start(ctx, "Notifier.Notify",
		trace.WithAttributes(
			attribute.String("notification.kind", string(note.Kind)),
			attribute.String("instance.id", note.InstanceID),
		),
	)
	defer span.End()

	err := n.next.Notify(ctx, note)
	finish(span, err)
	return err
}
