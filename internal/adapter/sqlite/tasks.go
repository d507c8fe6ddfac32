package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/neomorfeo/svclife/internal/domain"
)

const taskColumns = `t.id, t.event_id, t.title, t.description, t.assigned_to, t.due_date,
	t.priority, t.status, t.completed_by, t.completed_at, t.created_at`

func (s *Store) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks
		 (id, event_id, title, description, assigned_to, due_date,
		  priority, status, completed_by, completed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.Title, t.Description, t.AssignedTo,
		formatNullTime(t.DueDate),
		string(t.Priority.OrDefault()), string(t.Status), t.CompletedBy,
		formatNullTime(t.CompletedAt),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return &domain.PersistenceError{Op: "inserting task", Err: err}
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	if err != nil {
		return domain.Task{}, &domain.PersistenceError{Op: "scanning task", Err: err}
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t`
	var args []any

	if filter.InstanceID != "" {
		query += ` JOIN scheduled_events e ON e.id = t.event_id AND e.service_instance_id = ?`
		args = append(args, filter.InstanceID)
	}

	query += ` WHERE 1 = 1`

	if filter.EventID != "" {
		query += ` AND t.event_id = ?`
		args = append(args, filter.EventID)
	}

	if filter.Status != nil {
		query += ` AND t.status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY t.created_at, t.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "listing tasks", Err: err}
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scanning task row", Err: err}
		}
		out = append(out, t)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "listing tasks", Err: err}
	}
	return out, nil
}

// CompleteTask marks a pending task completed. Completed tasks are never
// reopened or re-attributed.
func (s *Store) CompleteTask(ctx context.Context, id, completedBy string, completedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_by = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.TaskCompleted), completedBy, formatTime(completedAt),
		id, string(domain.TaskPending),
	)
	if err != nil {
		return &domain.PersistenceError{Op: "completing task", Err: err}
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := s.GetTask(ctx, id); err != nil {
		return err
	}
	return domain.ErrTaskCompleted
}

func scanTask(row scanner) (domain.Task, error) {
	var t domain.Task
	var priority, status, createdAt string
	var due, completedAt sql.NullString

	err := row.Scan(&t.ID, &t.EventID, &t.Title, &t.Description, &t.AssignedTo, &due,
		&priority, &status, &t.CompletedBy, &completedAt, &createdAt)
	if err != nil {
		return domain.Task{}, err
	}

	t.Priority = domain.Priority(priority)
	t.Status = domain.TaskStatus(status)

	if t.DueDate, err = parseNullTime("due_date", due); err != nil {
		return domain.Task{}, err
	}
	if t.CompletedAt, err = parseNullTime("completed_at", completedAt); err != nil {
		return domain.Task{}, err
	}
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}
