package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/neomorfeo/svclife/internal/domain"
)

// Option configures the ambient dependencies shared by the services.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	notifier domain.Notifier
	now      func() time.Time
}

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithNotifier sets where lifecycle notifications are sent.
func WithNotifier(n domain.Notifier) Option {
	return func(o *options) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		notifier: noopNotifier{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// notify sends n and only logs a failure: notifications must never undo or
// fail an operation that already committed.
func (o options) notify(ctx context.Context, n domain.Notification) {
	if err := o.notifier.Notify(ctx, n); err != nil {
		o.logger.Warn("notification failed",
			zap.String("kind", string(n.Kind)),
			zap.String("instance_id", n.InstanceID),
			zap.Error(err),
		)
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, domain.Notification) error { return nil }
