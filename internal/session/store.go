// Package session owns the signed-in identity: the persisted auth session,
// token refresh, auth-state events and the current user's profile.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/renkonet/internal/config"
	"github.com/R3E-Network/renkonet/supabase/client"
)

// Store persists the auth session between process runs.
// Load returns (nil, nil) when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*client.Session, error)
	Save(ctx context.Context, s *client.Session) error
	Clear(ctx context.Context) error
}

// NewStore builds the store selected by cfg.SessionStore.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.SessionStore {
	case config.SessionStoreFile, "":
		return NewFileStore(cfg.SessionFile), nil
	case config.SessionStoreRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts), cfg.RedisSessionKey), nil
	case config.SessionStoreMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	session *client.Session
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Load(ctx context.Context) (*client.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemoryStore) Save(ctx context.Context, s *client.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s == nil {
		m.session = nil
		return nil
	}
	cp := *s
	m.session = &cp
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
