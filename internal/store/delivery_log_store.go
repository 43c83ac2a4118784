package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/jackc/pgx/v5"
)

const deliveryLogColumns = `id, subscription_id, event_name, payload, status_code, error, finished, attempts, created_at, updated_at`

// DeliveryLogFilter narrows ListDeliveryLogs. Zero values mean "any".
type DeliveryLogFilter struct {
	SubscriptionID *int64
	Finished       *bool
	Abandoned      bool // finished without a 2xx
	Limit          int
}

func scanDeliveryLog(row pgx.Row) (*domain.DeliveryLogEntry, error) {
	var e domain.DeliveryLogEntry
	err := row.Scan(
		&e.ID, &e.SubscriptionID, &e.EventName, &e.Payload, &e.StatusCode,
		&e.Error, &e.Finished, &e.Attempts, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// CreateDeliveryLog inserts a new entry and assigns its ID.
func (s *PostgresStore) CreateDeliveryLog(ctx context.Context, e *domain.DeliveryLogEntry) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO delivery_logs (subscription_id, event_name, payload, status_code, error, finished, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.SubscriptionID, e.EventName, payloadParam(e.Payload), e.StatusCode, e.Error,
		e.Finished, e.Attempts, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("inserting delivery log: %w", err)
	}
	return nil
}

// UpdateDeliveryLog writes every mutable field of an existing entry.
func (s *PostgresStore) UpdateDeliveryLog(ctx context.Context, e *domain.DeliveryLogEntry) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE delivery_logs
		SET payload = $1, status_code = $2, error = $3, finished = $4, attempts = $5, updated_at = $6
		WHERE id = $7
	`, payloadParam(e.Payload), e.StatusCode, e.Error, e.Finished, e.Attempts, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("updating delivery log: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetDeliveryLog(ctx context.Context, id int64) (*domain.DeliveryLogEntry, error) {
	e, err := scanDeliveryLog(s.pool.QueryRow(ctx,
		`SELECT `+deliveryLogColumns+` FROM delivery_logs WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying delivery log: %w", err)
	}
	return e, nil
}

// ListUnfinishedDeliveryLogs returns up to limit unfinished entries with
// id > afterID, oldest first. Callers page by passing the last id seen.
func (s *PostgresStore) ListUnfinishedDeliveryLogs(ctx context.Context, afterID int64, limit int) ([]domain.DeliveryLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+deliveryLogColumns+`
		FROM delivery_logs
		WHERE finished = FALSE AND id > $1
		ORDER BY id
		LIMIT $2
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unfinished delivery logs: %w", err)
	}
	return collectDeliveryLogs(rows)
}

// ListDeliveryLogs returns entries newest first.
func (s *PostgresStore) ListDeliveryLogs(ctx context.Context, f DeliveryLogFilter) ([]domain.DeliveryLogEntry, error) {
	query := `SELECT ` + deliveryLogColumns + ` FROM delivery_logs`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if f.SubscriptionID != nil {
		conditions = append(conditions, fmt.Sprintf("subscription_id = $%d", argIdx))
		args = append(args, *f.SubscriptionID)
		argIdx++
	}
	if f.Finished != nil {
		conditions = append(conditions, fmt.Sprintf("finished = $%d", argIdx))
		args = append(args, *f.Finished)
		argIdx++
	}
	if f.Abandoned {
		conditions = append(conditions, "finished AND (status_code IS NULL OR status_code NOT BETWEEN 200 AND 299)")
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying delivery logs: %w", err)
	}
	return collectDeliveryLogs(rows)
}

// DeleteDeliveryLogsBefore removes entries created before cutoff,
// finished or not.
func (s *PostgresStore) DeleteDeliveryLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `DELETE FROM delivery_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning delivery logs: %w", err)
	}
	return result.RowsAffected(), nil
}

func collectDeliveryLogs(rows pgx.Rows) ([]domain.DeliveryLogEntry, error) {
	defer rows.Close()

	entries := []domain.DeliveryLogEntry{}
	for rows.Next() {
		e, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery log: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery logs: %w", err)
	}
	return entries, nil
}

func payloadParam(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}
