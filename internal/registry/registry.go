// Package registry caches webhook subscriptions in process and answers
// which subscriptions want a given event.
//
// Mutations write through to the store and then force a full reload; the
// cache is never patched incrementally. Writes for the same subscription id
// are serialized, reloads are collapsed, and readers share the cache.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/Priya8975/hookrelay/internal/domain"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence the registry writes through to.
type Store interface {
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	GetSubscription(ctx context.Context, id int64) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, in domain.SubscriptionInput) (*domain.Subscription, error)
	UpdateSubscription(ctx context.Context, id int64, in domain.SubscriptionInput) (*domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

// Notifier tells other processes that the subscription set changed.
type Notifier interface {
	NotifyChanged(ctx context.Context) error
}

type Registry struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger

	mu     sync.RWMutex
	cache  []domain.Subscription
	loaded bool
	gen    uint64 // bumped by Invalidate; loads from an older gen are discarded

	reloads singleflight.Group
	locks   sync.Map // subscription id -> *sync.Mutex
}

func New(store Store, logger *slog.Logger) *Registry {
	return &Registry{store: store, logger: logger}
}

// SetNotifier installs a cross-process change notifier.
func (r *Registry) SetNotifier(n Notifier) {
	r.notifier = n
}

// All returns the cached subscriptions, newest first, loading them on
// first use. The returned slice is a copy.
func (r *Registry) All(ctx context.Context) ([]domain.Subscription, error) {
	for {
		r.mu.RLock()
		if r.loaded {
			out := make([]domain.Subscription, len(r.cache))
			copy(out, r.cache)
			r.mu.RUnlock()
			return out, nil
		}
		r.mu.RUnlock()

		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
	}
}

// ForEvent returns the subscriptions whose event filter contains name, in
// the order of All.
func (r *Registry) ForEvent(ctx context.Context, name string) ([]domain.Subscription, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	return FilterByEvent(all, name), nil
}

// FilterByEvent is the pure filter behind ForEvent.
func FilterByEvent(subs []domain.Subscription, name string) []domain.Subscription {
	matched := []domain.Subscription{}
	for _, sub := range subs {
		if sub.WantsEvent(name) {
			matched = append(matched, sub)
		}
	}
	return matched
}

// MatchesRouting reports whether sub accepts the routing key.
func (r *Registry) MatchesRouting(sub domain.Subscription, key *int64) bool {
	return sub.MatchesRouting(key)
}

// Get returns a cached subscription by id, or nil.
func (r *Registry) Get(ctx context.Context, id int64) (*domain.Subscription, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}

// Refresh reloads the whole cache from the store. Concurrent callers share
// one reload; a load overtaken by Invalidate is thrown away.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	_, err, _ := r.reloads.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		subs, err := r.store.ListSubscriptions(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading subscriptions: %w", err)
		}

		valid := make([]domain.Subscription, 0, len(subs))
		for _, sub := range subs {
			if len(sub.Events) == 0 {
				r.logger.Warn("ignoring subscription without events", "subscription_id", sub.ID)
				continue
			}
			valid = append(valid, sub)
		}

		r.mu.Lock()
		if r.gen == gen {
			r.cache = valid
			r.loaded = true
		}
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// Invalidate drops the cache so the next read reloads it.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.gen++
	r.cache = nil
	r.loaded = false
	r.mu.Unlock()
}

// Create validates the input, stores it and reloads the cache.
func (r *Registry) Create(ctx context.Context, in domain.SubscriptionInput) (*domain.Subscription, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sub, err := r.store.CreateSubscription(ctx, in)
	if err != nil {
		return nil, err
	}

	unlock := r.lock(sub.ID)
	defer unlock()

	r.afterMutation(ctx)
	return sub, nil
}

// Update validates the input, replaces the subscription and reloads the cache.
func (r *Registry) Update(ctx context.Context, id int64, in domain.SubscriptionInput) (*domain.Subscription, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	unlock := r.lock(id)
	defer unlock()

	sub, err := r.store.UpdateSubscription(ctx, id, in)
	if err != nil {
		return nil, err
	}

	r.afterMutation(ctx)
	return sub, nil
}

// Delete removes the subscription (and, through the store, its logs) and
// reloads the cache.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	unlock := r.lock(id)
	defer unlock()

	if err := r.store.DeleteSubscription(ctx, id); err != nil {
		return err
	}

	r.afterMutation(ctx)
	return nil
}

func (r *Registry) afterMutation(ctx context.Context) {
	// The write already succeeded; a failed reload leaves the cache empty
	// so the next read retries it.
	r.Invalidate()
	if err := r.Refresh(ctx); err != nil {
		r.logger.Error("failed to reload subscriptions", "error", err)
	}

	if r.notifier != nil {
		if err := r.notifier.NotifyChanged(ctx); err != nil {
			r.logger.Warn("failed to notify subscription change", "error", err)
		}
	}
}

func (r *Registry) lock(id int64) func() {
	v, _ := r.locks.LoadOrStore(strconv.FormatInt(id, 10), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
