package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/svclife/internal/domain"
)

// Compile-time check: Notifier implements domain.Notifier.
var _ domain.Notifier = (*Notifier)(nil)

// NotificationJobArgs is the queued form of a domain.Notification. River
// stores it as JSON in its job table.
type NotificationJobArgs struct {
	NotificationKind string `json:"kind"`
	InstanceID       string `json:"instance_id"`
	EventID          string `json:"event_id,omitempty"`
	TaskID           string `json:"task_id,omitempty"`
	Action           string `json:"action,omitempty"`
	State            string `json:"state,omitempty"`
	ActorID          string `json:"actor_id,omitempty"`
}

// Kind returns the unique job type identifier used by River's job routing.
// The notification's own kind travels in NotificationKind.
func (NotificationJobArgs) Kind() string { return "lifecycle.notification" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Notifier implements domain.Notifier by enqueuing River jobs.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier backed by the given River client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Notify enqueues n for asynchronous delivery.
func (p *Notifier) Notify(ctx context.Context, n domain.Notification) error {
	_, err := p.client.Insert(ctx, NotificationJobArgs{
		NotificationKind: string(n.Kind),
		InstanceID:       n.InstanceID,
		EventID:          n.EventID,
		TaskID:           n.TaskID,
		Action:           string(n.Action),
		State:            string(n.State),
		ActorID:          n.ActorID,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	return nil
}
