// Package memstore is an in-memory implementation of the subscription and
// delivery log stores, used by tests and local tooling.
package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Priya8975/hookrelay/internal/domain"
	"github.com/Priya8975/hookrelay/internal/store"
)

type Store struct {
	mu     sync.Mutex
	subs   map[int64]domain.Subscription
	logs   map[int64]domain.DeliveryLogEntry
	nextID int64
	logID  int64

	// Now stamps created_at/updated_at on subscriptions. Defaults to time.Now.
	Now func() time.Time
}

func New() *Store {
	return &Store{
		subs: make(map[int64]domain.Subscription),
		logs: make(map[int64]domain.DeliveryLogEntry),
		Now:  time.Now,
	}
}

func (s *Store) ListSubscriptions(_ context.Context) ([]domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, cloneSubscription(sub))
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID > subs[j].ID })
	return subs, nil
}

func (s *Store) GetSubscription(_ context.Context, id int64) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	out := cloneSubscription(sub)
	return &out, nil
}

func (s *Store) CreateSubscription(_ context.Context, in domain.SubscriptionInput) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	now := s.Now()
	sub := domain.Subscription{
		ID:          s.nextID,
		URL:         in.URL,
		Events:      slices.Clone(in.Events),
		RoutingKeys: slices.Clone(in.RoutingKeys),
		Secret:      cloneString(in.Secret),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.subs[sub.ID] = sub

	out := cloneSubscription(sub)
	return &out, nil
}

// PutSubscription stores sub as-is, bypassing validation. Tests use it to
// seed rows the admin API would reject.
func (s *Store) PutSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == 0 {
		s.nextID++
		sub.ID = s.nextID
	} else if sub.ID > s.nextID {
		s.nextID = sub.ID
	}
	s.subs[sub.ID] = cloneSubscription(sub)
}

func (s *Store) UpdateSubscription(_ context.Context, id int64, in domain.SubscriptionInput) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sub.URL = in.URL
	sub.Events = slices.Clone(in.Events)
	sub.RoutingKeys = slices.Clone(in.RoutingKeys)
	sub.Secret = cloneString(in.Secret)
	sub.UpdatedAt = s.Now()
	s.subs[id] = sub

	out := cloneSubscription(sub)
	return &out, nil
}

// DeleteSubscription removes the subscription and cascades to its logs.
func (s *Store) DeleteSubscription(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.subs, id)
	for logID, e := range s.logs {
		if e.SubscriptionID == id {
			delete(s.logs, logID)
		}
	}
	return nil
}

// DropSubscription removes the subscription without cascading, leaving
// orphaned delivery logs behind.
func (s *Store) DropSubscription(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *Store) UpdateSubscriptionHealth(_ context.Context, id int64, at time.Time, lastError *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil
	}
	sub.LastAttemptAt = &at
	sub.LastError = cloneString(lastError)
	s.subs[id] = sub
	return nil
}

func (s *Store) CreateDeliveryLog(_ context.Context, e *domain.DeliveryLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logID++
	e.ID = s.logID
	s.logs[e.ID] = cloneEntry(*e)
	return nil
}

func (s *Store) UpdateDeliveryLog(_ context.Context, e *domain.DeliveryLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.logs[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	updated := cloneEntry(*e)
	updated.SubscriptionID = existing.SubscriptionID
	updated.EventName = existing.EventName
	updated.CreatedAt = existing.CreatedAt
	s.logs[e.ID] = updated
	return nil
}

// PutDeliveryLog stores e as-is, assigning an ID when it has none.
func (s *Store) PutDeliveryLog(e domain.DeliveryLogEntry) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == 0 {
		s.logID++
		e.ID = s.logID
	} else if e.ID > s.logID {
		s.logID = e.ID
	}
	s.logs[e.ID] = cloneEntry(e)
	return e.ID
}

func (s *Store) GetDeliveryLog(_ context.Context, id int64) (*domain.DeliveryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.logs[id]
	if !ok {
		return nil, nil
	}
	out := cloneEntry(e)
	return &out, nil
}

func (s *Store) ListUnfinishedDeliveryLogs(_ context.Context, afterID int64, limit int) ([]domain.DeliveryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := []domain.DeliveryLogEntry{}
	for _, e := range s.logs {
		if !e.Finished && e.ID > afterID {
			entries = append(entries, cloneEntry(e))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) ListDeliveryLogs(_ context.Context, f store.DeliveryLogFilter) ([]domain.DeliveryLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := []domain.DeliveryLogEntry{}
	for _, e := range s.logs {
		if f.SubscriptionID != nil && e.SubscriptionID != *f.SubscriptionID {
			continue
		}
		if f.Finished != nil && e.Finished != *f.Finished {
			continue
		}
		if f.Abandoned && !e.Abandoned() {
			continue
		}
		entries = append(entries, cloneEntry(e))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	if f.Limit > 0 && len(entries) > f.Limit {
		entries = entries[:f.Limit]
	}
	return entries, nil
}

func (s *Store) DeleteDeliveryLogsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, e := range s.logs {
		if e.CreatedAt.Before(cutoff) {
			delete(s.logs, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) GetDeliveryStats(_ context.Context) (*store.DeliveryStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &store.DeliveryStats{TotalEntries: len(s.logs), Subscriptions: len(s.subs)}
	for _, e := range s.logs {
		switch {
		case !e.Finished:
			st.Retrying++
		case e.Delivered():
			st.Delivered++
		default:
			st.Abandoned++
		}
	}
	for _, sub := range s.subs {
		if sub.LastError != nil {
			st.Failing++
		}
	}
	return st, nil
}

// LogCount returns the number of stored delivery log entries.
func (s *Store) LogCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func cloneSubscription(sub domain.Subscription) domain.Subscription {
	sub.Events = slices.Clone(sub.Events)
	sub.RoutingKeys = slices.Clone(sub.RoutingKeys)
	sub.Secret = cloneString(sub.Secret)
	sub.LastError = cloneString(sub.LastError)
	if sub.LastAttemptAt != nil {
		at := *sub.LastAttemptAt
		sub.LastAttemptAt = &at
	}
	return sub
}

func cloneEntry(e domain.DeliveryLogEntry) domain.DeliveryLogEntry {
	e.Payload = slices.Clone(e.Payload)
	e.Error = cloneString(e.Error)
	if e.StatusCode != nil {
		code := *e.StatusCode
		e.StatusCode = &code
	}
	return e
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
