// Package apikey derives the instance API key sent with every webhook.
package apikey

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/store"
)

const (
	keyContext     = "apibridge_key"
	saltLength     = 32
	saltAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	defaultRefresh = time.Minute
)

// SaltStore persists the salt so every process derives the same key.
type SaltStore interface {
	// Salt returns the stored salt and whether one exists.
	Salt(ctx context.Context) (string, bool, error)
	SetSalt(ctx context.Context, salt string) error
}

type Manager struct {
	appKey string
	store  SaltStore
	logger *slog.Logger

	mu       sync.RWMutex
	salt     string
	loadedAt time.Time

	refresh time.Duration
	now     func() time.Time
}

// New returns a manager seeded with the configured salt. A salt found in
// store takes precedence once loaded.
func New(appKey, salt string, store SaltStore, logger *slog.Logger) *Manager {
	if store == nil {
		store = &MemoryStore{}
	}
	return &Manager{
		appKey:  appKey,
		store:   store,
		logger:  logger,
		salt:    salt,
		refresh: defaultRefresh,
		now:     time.Now,
	}
}

// Current returns the active API key.
func (m *Manager) Current(ctx context.Context) string {
	return Derive(m.appKey, m.Salt(ctx))
}

// Salt returns the active salt, re-reading the store at most once a minute.
func (m *Manager) Salt(ctx context.Context) string {
	m.mu.RLock()
	salt, fresh := m.salt, m.now().Sub(m.loadedAt) < m.refresh
	m.mu.RUnlock()
	if fresh {
		return salt
	}

	stored, ok, err := m.store.Salt(ctx)
	if err != nil {
		m.logger.Warn("failed to read API key salt, using cached value", "error", err)
		return salt
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.salt = stored
	}
	m.loadedAt = m.now()
	return m.salt
}

// Regenerate stores a new random salt and returns the resulting key.
func (m *Manager) Regenerate(ctx context.Context) (string, error) {
	salt, err := randomString(saltLength)
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	if err := m.store.SetSalt(ctx, salt); err != nil {
		return "", fmt.Errorf("storing salt: %w", err)
	}

	m.mu.Lock()
	m.salt = salt
	m.loadedAt = m.now()
	m.mu.Unlock()

	return Derive(m.appKey, salt), nil
}

// Derive computes md5hex(appKey + "apibridge_key" + salt).
func Derive(appKey, salt string) string {
	sum := md5.Sum([]byte(appKey + keyContext + salt))
	return hex.EncodeToString(sum[:])
}

func randomString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(saltAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = saltAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// MemoryStore keeps the salt in process.
type MemoryStore struct {
	mu   sync.Mutex
	salt string
	set  bool
}

func (s *MemoryStore) Salt(context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.salt, s.set, nil
}

func (s *MemoryStore) SetSalt(_ context.Context, salt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.salt, s.set = salt, true
	return nil
}

// RedisStore shares the salt between processes.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Salt(ctx context.Context) (string, bool, error) {
	salt, err := s.client.Get(ctx, store.RedisSaltKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading salt: %w", err)
	}
	return salt, true, nil
}

func (s *RedisStore) SetSalt(ctx context.Context, salt string) error {
	return s.client.Set(ctx, store.RedisSaltKey, salt, 0).Err()
}
