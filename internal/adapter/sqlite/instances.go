package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/neomorfeo/svclife/internal/domain"
)

const instanceColumns = `id, client_id, service_name, current_state, version, created_at, updated_at`

func (s *Store) CreateInstance(ctx context.Context, si domain.ServiceInstance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service_instances (`+instanceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		si.ID, si.ClientID, si.ServiceName, string(si.CurrentState),
		max(si.Version, 1),
		formatTime(si.CreatedAt),
		formatTime(si.UpdatedAt),
	)
	if err != nil {
		return &domain.PersistenceError{Op: "inserting service instance", Err: err}
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (domain.ServiceInstance, error) {
	si, err := scanInstance(s.db.QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM service_instances WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ServiceInstance{}, domain.ErrInstanceNotFound
	}
	if err != nil {
		return domain.ServiceInstance{}, &domain.PersistenceError{Op: "scanning service instance", Err: err}
	}
	return si, nil
}

func (s *Store) ListInstances(ctx context.Context, filter domain.InstanceFilter) ([]domain.ServiceInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM service_instances WHERE 1 = 1`
	var args []any

	if filter.State != nil {
		query += ` AND current_state = ?`
		args = append(args, string(*filter.State))
	}

	if filter.ClientID != "" {
		query += ` AND client_id = ?`
		args = append(args, filter.ClientID)
	}

	query += ` ORDER BY created_at DESC, id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "listing service instances", Err: err}
	}
	defer rows.Close()

	var out []domain.ServiceInstance
	for rows.Next() {
		si, err := scanInstance(rows)
		if err != nil {
			return nil, &domain.PersistenceError{Op: "scanning service instance row", Err: err}
		}
		out = append(out, si)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "listing service instances", Err: err}
	}
	return out, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (domain.ServiceInstance, error) {
	var si domain.ServiceInstance
	var state, createdAt, updatedAt string

	if err := row.Scan(&si.ID, &si.ClientID, &si.ServiceName, &state, &si.Version, &createdAt, &updatedAt); err != nil {
		return domain.ServiceInstance{}, err
	}

	si.CurrentState = domain.State(state)

	var err error
	if si.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return domain.ServiceInstance{}, err
	}
	if si.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return domain.ServiceInstance{}, err
	}
	return si, nil
}
