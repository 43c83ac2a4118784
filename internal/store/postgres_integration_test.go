//go:build integration

package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Priya8975/hookrelay/internal/domain"
)

func setupPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("hookrelay_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := NewPostgres(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.RunMigrations(ctx, slog.New(slog.NewTextHandler(io.Discard, nil))))
	return s
}

func TestPostgres_SubscriptionLifecycle(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	secret := "s3cr3t"
	first, err := s.CreateSubscription(ctx, domain.SubscriptionInput{
		URL: "https://a.example", Events: []string{"conversation.created"}, RoutingKeys: []int64{1, 2}, Secret: &secret,
	})
	require.NoError(t, err)
	second, err := s.CreateSubscription(ctx, domain.SubscriptionInput{
		URL: "https://b.example", Events: []string{"customer.created"},
	})
	require.NoError(t, err)

	subs, err := s.ListSubscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, second.ID, subs[0].ID, "newest first")
	assert.Equal(t, []int64{1, 2}, subs[1].RoutingKeys)
	require.NotNil(t, subs[1].Secret)
	assert.Nil(t, subs[0].RoutingKeys)

	_, err = s.UpdateSubscription(ctx, 9999, domain.SubscriptionInput{URL: "https://x.example", Events: []string{"x"}})
	assert.ErrorIs(t, err, ErrNotFound)

	errMsg := "HTTP 500"
	require.NoError(t, s.UpdateSubscriptionHealth(ctx, first.ID, time.Now(), &errMsg))
	got, err := s.GetSubscription(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "HTTP 500", *got.LastError)

	missing, err := s.GetSubscription(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgres_DeliveryLogs(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	sub, err := s.CreateSubscription(ctx, domain.SubscriptionInput{URL: "https://a.example", Events: []string{"x"}})
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Microsecond)
	var ids []int64
	for i := 0; i < 3; i++ {
		e := domain.NewDeliveryLogEntry(sub.ID, "x", now)
		code := 500
		msg := domain.HTTPError(code)
		require.NoError(t, e.RecordResult(json.RawMessage(`{"b":1,"a":2}`), &code, &msg, now))
		require.NoError(t, s.CreateDeliveryLog(ctx, e))
		ids = append(ids, e.ID)
	}

	page, err := s.ListUnfinishedDeliveryLogs(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[:2], []int64{page[0].ID, page[1].ID})
	assert.Equal(t, `{"b":1,"a":2}`, string(page[0].Payload), "payload bytes are stored verbatim")

	rest, err := s.ListUnfinishedDeliveryLogs(ctx, page[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)

	entry := page[0]
	require.NoError(t, entry.IncrementAttempts(now))
	require.NoError(t, s.UpdateDeliveryLog(ctx, &entry))
	stored, err := s.GetDeliveryLog(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)

	stats, err := s.GetDeliveryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Retrying)
	assert.Equal(t, 1, stats.Subscriptions)

	require.NoError(t, s.DeleteSubscription(ctx, sub.ID))
	logs, err := s.ListDeliveryLogs(ctx, DeliveryLogFilter{})
	require.NoError(t, err)
	assert.Empty(t, logs, "logs cascade with their subscription")
}

func TestPostgres_PruneAndForeignKey(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	sub, err := s.CreateSubscription(ctx, domain.SubscriptionInput{URL: "https://a.example", Events: []string{"x"}})
	require.NoError(t, err)

	old := domain.NewDeliveryLogEntry(sub.ID, "x", time.Now().Add(-40*24*time.Hour))
	old.Finished = true
	require.NoError(t, s.CreateDeliveryLog(ctx, old))
	recent := domain.NewDeliveryLogEntry(sub.ID, "x", time.Now())
	require.NoError(t, s.CreateDeliveryLog(ctx, recent))

	n, err := s.DeleteDeliveryLogsBefore(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	orphan := domain.NewDeliveryLogEntry(9999, "x", time.Now())
	err = s.CreateDeliveryLog(ctx, orphan)
	require.Error(t, err)
	assert.True(t, IsForeignKeyViolation(err))
}
