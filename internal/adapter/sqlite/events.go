package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/neomorfeo/svclife/internal/domain"
)

const eventColumns = `id, service_instance_id, target_state, action, scheduled_time,
	assigned_to, priority, is_completed, completed_at, history_entry_id, created_at`

func (s *Store) CreateEvent(ctx context.Context, e domain.ScheduledEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ServiceInstanceID, string(e.TargetState), string(e.Action),
		formatNullTime(e.ScheduledTime),
		e.AssignedTo, string(e.Priority.OrDefault()), e.IsCompleted,
		formatNullTime(e.CompletedTime),
		sql.NullString{String: e.HistoryEntryID, Valid: e.HistoryEntryID != ""},
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrInstanceNotFound
		}
		return &domain.PersistenceError{Op: "inserting scheduled event", Err: err}
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (domain.ScheduledEvent, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM scheduled_events WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ScheduledEvent{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.ScheduledEvent{}, &domain.PersistenceError{Op: "scanning scheduled event", Err: err}
	}
	return e, nil
}

// ListEvents returns matching events ordered by scheduled time, unscheduled
// events last.
func (s *Store) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.ScheduledEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM scheduled_events WHERE 1 = 1`
	var args []any

	if filter.InstanceID != "" {
		query += ` AND service_instance_id = ?`
		args = append(args, filter.InstanceID)
	}

	if filter.Pending != nil {
		query += ` AND is_completed = ?`
		args = append(args, !*filter.Pending)
	}

	if filter.DueBefore != nil {
		query += ` AND scheduled_time IS NOT NULL AND scheduled_time < ?`
		args = append(args, formatTime(*filter.DueBefore))
	}

	query += ` ORDER BY scheduled_time IS NULL, scheduled_time, created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "listing scheduled events", Err: err}
	}
	defer rows.Close()

	var out []domain.ScheduledEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scanning scheduled event row", Err: err}
		}
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "listing scheduled events", Err: err}
	}
	return out, nil
}

// CancelEvent removes a pending event with its tasks and stores the
// cancellation record in the same transaction.
func (s *Store) CancelEvent(ctx context.Context, c domain.Cancellation) error {
	return s.withTx(ctx, "event cancellation", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tasks WHERE event_id = ?
			 AND EXISTS (SELECT 1 FROM scheduled_events WHERE id = ? AND is_completed = 0)`,
			c.EventID, c.EventID,
		); err != nil {
			return &domain.PersistenceError{Op: "deleting event tasks", Err: err}
		}

		result, err := tx.ExecContext(ctx,
			`DELETE FROM scheduled_events WHERE id = ? AND is_completed = 0`, c.EventID,
		)
		if err != nil {
			return &domain.PersistenceError{Op: "deleting scheduled event", Err: err}
		}

		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return eventNotPending(ctx, tx, c.EventID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_cancellations
			 (id, event_id, service_instance_id, action, reason, cancelled_by, cancelled_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.EventID, c.ServiceInstanceID, string(c.Action),
			c.Reason, c.CancelledBy, formatTime(c.CancelledAt),
		)
		if err != nil {
			return &domain.PersistenceError{Op: "inserting event cancellation", Err: err}
		}
		return nil
	})
}

// ListCancellations returns an instance's cancellation records, newest first.
func (s *Store) ListCancellations(ctx context.Context, instanceID string) ([]domain.Cancellation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, service_instance_id, action, reason, cancelled_by, cancelled_at
		 FROM event_cancellations
		 WHERE service_instance_id = ?
		 ORDER BY cancelled_at DESC, id`, instanceID,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "listing cancellations", Err: err}
	}
	defer rows.Close()

	var out []domain.Cancellation
	for rows.Next() {
		var c domain.Cancellation
		var action, cancelledAt string

		if err := rows.Scan(&c.ID, &c.EventID, &c.ServiceInstanceID, &action,
			&c.Reason, &c.CancelledBy, &cancelledAt); err != nil {
			return nil, &domain.PersistenceError{Op: "scanning cancellation row", Err: err}
		}

		c.Action = domain.Action(action)
		if c.CancelledAt, err = parseTime("cancelled_at", cancelledAt); err != nil {
			return nil, &domain.PersistenceError{Op: "scanning cancellation row", Err: err}
		}
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "listing cancellations", Err: err}
	}
	return out, nil
}

// eventNotPending explains why a write guarded by is_completed = 0 matched no
// rows.
func eventNotPending(ctx context.Context, tx *sql.Tx, eventID string) error {
	var completed bool
	err := tx.QueryRowContext(ctx,
		`SELECT is_completed FROM scheduled_events WHERE id = ?`, eventID,
	).Scan(&completed)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrEventNotFound
	}
	if err != nil {
		return &domain.PersistenceError{Op: "reading event status", Err: err}
	}
	if completed {
		return domain.ErrEventCompleted
	}
	return domain.ErrEventNotFound
}

func scanEvent(row scanner) (domain.ScheduledEvent, error) {
	var e domain.ScheduledEvent
	var target, action, priority, createdAt string
	var scheduled, completedAt, historyID sql.NullString

	err := row.Scan(&e.ID, &e.ServiceInstanceID, &target, &action, &scheduled,
		&e.AssignedTo, &priority, &e.IsCompleted, &completedAt, &historyID, &createdAt)
	if err != nil {
		return domain.ScheduledEvent{}, err
	}

	e.TargetState = domain.State(target)
	e.Action = domain.Action(action)
	e.Priority = domain.Priority(priority)
	e.HistoryEntryID = historyID.String

	if e.ScheduledTime, err = parseNullTime("scheduled_time", scheduled); err != nil {
		return domain.ScheduledEvent{}, err
	}
	if e.CompletedTime, err = parseNullTime("completed_at", completedAt); err != nil {
		return domain.ScheduledEvent{}, err
	}
	if e.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return domain.ScheduledEvent{}, err
	}
	return e, nil
}
