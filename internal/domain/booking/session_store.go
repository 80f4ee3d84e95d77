package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionStore keeps at most one session per user. Get returns nil when the
// user has none.
type SessionStore interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID string) error
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

func (m *MemorySessionStore) Get(_ context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.UserID] = &cp
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartCleanup drops sessions that expired more than grace ago, every
// interval, until ctx is cancelled. Holds of dropped sessions are left to
// the reservation sweeper.
func (m *MemorySessionStore) StartCleanup(ctx context.Context, interval, grace time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.prune(time.Now().Add(-grace))
			}
		}
	}()
}

func (m *MemorySessionStore) prune(before time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.Expired(before) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

const sessionKeyPrefix = "booking:session:"

// RedisSessionStore keeps sessions as JSON with a key TTL a little past the
// session's own expiry, so the service still sees and cleans up an expired
// session before Redis drops it.
type RedisSessionStore struct {
	client *redis.Client
	grace  time.Duration
}

func NewRedisSessionStore(client *redis.Client, grace time.Duration) *RedisSessionStore {
	if grace <= 0 {
		grace = time.Minute
	}
	return &RedisSessionStore{client: client, grace: grace}
}

func (r *RedisSessionStore) Get(ctx context.Context, userID string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt) + r.grace
	if ttl <= 0 {
		ttl = r.grace
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+s.UserID, b, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, userID string) error {
	return r.client.Del(ctx, sessionKeyPrefix+userID).Err()
}
