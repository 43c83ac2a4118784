package store

import (
	"context"
	"fmt"
)

// DeliveryStats holds aggregated delivery log statistics.
type DeliveryStats struct {
	TotalEntries  int `json:"total_entries"`
	Delivered     int `json:"delivered"`
	Retrying      int `json:"retrying"`
	Abandoned     int `json:"abandoned"`
	Subscriptions int `json:"subscriptions"`
	Failing       int `json:"failing_subscriptions"`
}

// GetDeliveryStats returns aggregated delivery statistics from the database.
func (s *PostgresStore) GetDeliveryStats(ctx context.Context) (*DeliveryStats, error) {
	var st DeliveryStats

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE finished AND status_code BETWEEN 200 AND 299) AS delivered,
			COUNT(*) FILTER (WHERE NOT finished) AS retrying,
			COUNT(*) FILTER (WHERE finished AND (status_code IS NULL OR status_code NOT BETWEEN 200 AND 299)) AS abandoned
		FROM delivery_logs
	`).Scan(&st.TotalEntries, &st.Delivered, &st.Retrying, &st.Abandoned)
	if err != nil {
		return nil, fmt.Errorf("querying delivery stats: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE last_error IS NOT NULL)
		FROM subscriptions
	`).Scan(&st.Subscriptions, &st.Failing)
	if err != nil {
		return nil, fmt.Errorf("querying subscription stats: %w", err)
	}

	return &st, nil
}
