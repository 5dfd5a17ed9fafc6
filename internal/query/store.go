package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// TTL is how long a remembered state outlives its last use.
const TTL = 30 * 24 * time.Hour

// Store remembers the state per user and view. Load never fails the caller:
// a missing or unreadable entry is the default state.
type Store interface {
	Load(ctx context.Context, userID, view string) State
	Save(ctx context.Context, userID, view string, s State) error
}

func key(userID, view string) string {
	return fmt.Sprintf("query:%s:%s", userID, view)
}

/* ================================= Redis ================================ */

type RedisStore struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewRedisStore(rdb *redis.Client, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, log: log}
}

func (r *RedisStore) Load(ctx context.Context, userID, view string) State {
	raw, err := r.rdb.Get(ctx, key(userID, view)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Default()
	}
	if err != nil {
		r.log.Warn("query state read failed", zap.String("view", view), zap.Error(err))
		return Default()
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		r.log.Warn("query state is corrupt", zap.String("view", view), zap.Error(err))
		return Default()
	}
	return s.Normalize()
}

func (r *RedisStore) Save(ctx context.Context, userID, view string, s State) error {
	raw, err := json.Marshal(s.Normalize())
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, key(userID, view), raw, TTL).Err()
}

/* ================================ Memory ================================ */

// MemoryStore is used when Redis is not configured. Entries do not expire.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]State{}}
}

func (m *MemoryStore) Load(_ context.Context, userID, view string) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.m[key(userID, view)]; ok {
		return s
	}
	return Default()
}

func (m *MemoryStore) Save(_ context.Context, userID, view string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[key(userID, view)] = s.Normalize()
	return nil
}
