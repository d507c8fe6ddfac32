package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/neomorfeo/svclife/internal/domain"
)

// CommitTransition appends the history entry, moves the instance to the
// entry's resulting state, and optionally completes a scheduled event, all in
// one transaction. The state update is conditioned on the instance still being
// in commit.Expected and, when set, at commit.ExpectedVersion.
func (s *Store) CommitTransition(ctx context.Context, commit domain.TransitionCommit) error {
	entry := commit.Entry

	return s.withTx(ctx, "transition", func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE service_instances SET current_state = ?, version = version + 1, updated_at = ?
			 WHERE id = ? AND current_state = ? AND (? = 0 OR version = ?)`,
			string(entry.ResultingState), formatTime(entry.Timestamp),
			entry.ServiceInstanceID, string(commit.Expected),
			commit.ExpectedVersion, commit.ExpectedVersion,
		)
		if err != nil {
			return &domain.PersistenceError{Op: "updating current state", Err: err}
		}

		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return conflictOrMissing(ctx, tx, entry.ServiceInstanceID, commit.Expected, commit.ExpectedVersion)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO history_entries
			 (id, service_instance_id, previous_state, resulting_state, action,
			  performed_by, performed_by_role, comments, event_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.ServiceInstanceID,
			string(entry.PreviousState), string(entry.ResultingState), string(entry.Action),
			entry.PerformedBy, string(entry.PerformedByRole), entry.Comments,
			sql.NullString{String: entry.EventID, Valid: entry.EventID != ""},
			formatTime(entry.Timestamp),
		)
		if err != nil {
			return &domain.PersistenceError{Op: "inserting history entry", Err: err}
		}

		if commit.CompleteEventID == "" {
			return nil
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE scheduled_events SET is_completed = 1, completed_at = ?, history_entry_id = ?
			 WHERE id = ? AND service_instance_id = ? AND is_completed = 0`,
			formatTime(entry.Timestamp), entry.ID,
			commit.CompleteEventID, entry.ServiceInstanceID,
		)
		if err != nil {
			return &domain.PersistenceError{Op: "completing scheduled event", Err: err}
		}

		n, err = rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return eventNotPending(ctx, tx, commit.CompleteEventID)
		}
		return nil
	})
}

// conflictOrMissing explains why a conditional state update matched no rows.
func conflictOrMissing(ctx context.Context, tx *sql.Tx, instanceID string, expected domain.State, expectedVersion int64) error {
	var actual string
	var version int64
	err := tx.QueryRowContext(ctx,
		`SELECT current_state, version FROM service_instances WHERE id = ?`, instanceID,
	).Scan(&actual, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrInstanceNotFound
	}
	if err != nil {
		return &domain.PersistenceError{Op: "reading current state", Err: err}
	}

	return &domain.ConcurrencyConflictError{
		InstanceID:      instanceID,
		Expected:        expected,
		Actual:          domain.State(actual),
		ExpectedVersion: expectedVersion,
		ActualVersion:   version,
	}
}

func (s *Store) ListHistory(ctx context.Context, instanceID string) ([]domain.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, service_instance_id, previous_state, resulting_state, action,
		        performed_by, performed_by_role, comments, event_id, created_at
		 FROM history_entries
		 WHERE service_instance_id = ?
		 ORDER BY seq DESC`, instanceID,
	)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "listing history", Err: err}
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		var prev, next, action, role, createdAt string
		var eventID sql.NullString

		err := rows.Scan(&e.ID, &e.ServiceInstanceID, &prev, &next, &action,
			&e.PerformedBy, &role, &e.Comments, &eventID, &createdAt)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scanning history row", Err: err}
		}

		e.PreviousState = domain.State(prev)
		e.ResultingState = domain.State(next)
		e.Action = domain.Action(action)
		e.PerformedByRole = domain.Role(role)
		e.EventID = eventID.String
		if e.Timestamp, err = parseTime("created_at", createdAt); err != nil {
			return nil, &domain.PersistenceError{Op: "scanning history row", Err: err}
		}
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "listing history", Err: err}
	}
	return out, nil
}
