package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/jackc/pgx/v5"
)

const subscriptionColumns = `id, url, events, routing_keys, secret, last_attempt_at, last_error, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID, &sub.URL, &sub.Events, &sub.RoutingKeys, &sub.Secret,
		&sub.LastAttemptAt, &sub.LastError, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubscriptions returns every subscription, newest first.
func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []domain.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}

	return subs, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, in domain.SubscriptionInput) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (url, events, routing_keys, secret)
		VALUES ($1, $2, $3, $4)
		RETURNING `+subscriptionColumns,
		in.URL, in.Events, routingKeysParam(in.RoutingKeys), in.Secret,
	))
	if err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, id int64, in domain.SubscriptionInput) (*domain.Subscription, error) {
	sub, err := scanSubscription(s.pool.QueryRow(ctx, `
		UPDATE subscriptions
		SET url = $1, events = $2, routing_keys = $3, secret = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING `+subscriptionColumns,
		in.URL, in.Events, routingKeysParam(in.RoutingKeys), in.Secret, id,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	return sub, nil
}

// DeleteSubscription removes the subscription; its delivery logs go with it.
func (s *PostgresStore) DeleteSubscription(ctx context.Context, id int64) error {
	result, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscriptionHealth records the outcome of the latest attempt.
// A missing subscription is not an error.
func (s *PostgresStore) UpdateSubscriptionHealth(ctx context.Context, id int64, at time.Time, lastError *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET last_attempt_at = $1, last_error = $2
		WHERE id = $3
	`, at, lastError, id)
	if err != nil {
		return fmt.Errorf("updating subscription health: %w", err)
	}
	return nil
}

// routingKeysParam stores an empty filter as SQL NULL rather than a JSON
// null or [] literal.
func routingKeysParam(keys []int64) any {
	if len(keys) == 0 {
		return nil
	}
	return keys
}
