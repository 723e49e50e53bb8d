package identity

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry holds live routing identities for the duration of one session
// plus a grace period. A routing identity that is not in the registry is
// dead: the relay refuses it and the bridge orchestrator rejects it.
type Registry interface {
	Put(ctx context.Context, id RoutingIdentity, ttl time.Duration) error
	Get(ctx context.Context, routingID string) (RoutingIdentity, error)
	Delete(ctx context.Context, routingID string) error
}

/* ===================== REDIS ===================== */

// RedisRegistry stores identities under a TTL so expiry needs no sweeper
// and survives API process restarts.
type RedisRegistry struct {
	rdb *redis.Client
}

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

const registryKeyPrefix = "routing:"

// storedIdentity is the redis wire form. Unlike the API JSON form it keeps
// the phone number; the key space is never reachable by clients.
type storedIdentity struct {
	ID          string       `json:"id"`
	Kind        IdentityKind `json:"kind"`
	OwnerID     string       `json:"owner_id"`
	TargetPhone string       `json:"target_phone"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

func (r *RedisRegistry) Put(ctx context.Context, id RoutingIdentity, ttl time.Duration) error {
	raw, err := json.Marshal(storedIdentity{
		ID:          id.ID,
		Kind:        id.Kind,
		OwnerID:     id.OwnerID,
		TargetPhone: id.TargetPhone,
		ExpiresAt:   id.ExpiresAt,
	})
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, registryKeyPrefix+id.ID, raw, ttl).Err()
}

func (r *RedisRegistry) Get(ctx context.Context, routingID string) (RoutingIdentity, error) {
	raw, err := r.rdb.Get(ctx, registryKeyPrefix+routingID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return RoutingIdentity{}, ErrNotFound
		}
		return RoutingIdentity{}, err
	}
	var s storedIdentity
	if err := json.Unmarshal(raw, &s); err != nil {
		return RoutingIdentity{}, err
	}
	return RoutingIdentity{
		ID:          s.ID,
		Kind:        s.Kind,
		OwnerID:     s.OwnerID,
		TargetPhone: s.TargetPhone,
		ExpiresAt:   s.ExpiresAt,
	}, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, routingID string) error {
	return r.rdb.Del(ctx, registryKeyPrefix+routingID).Err()
}

/* ===================== MEMORY ===================== */

// MemoryRegistry is the single-process fallback used in tests and local mode.
type MemoryRegistry struct {
	mu  sync.Mutex
	ids map[string]memoryEntry
	now func() time.Time
}

type memoryEntry struct {
	id       RoutingIdentity
	deadline time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{ids: make(map[string]memoryEntry), now: time.Now}
}

func (r *MemoryRegistry) Put(_ context.Context, id RoutingIdentity, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids[id.ID] = memoryEntry{id: id, deadline: r.now().Add(ttl)}
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, routingID string) (RoutingIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.ids[routingID]
	if !ok {
		return RoutingIdentity{}, ErrNotFound
	}
	if r.now().After(e.deadline) {
		delete(r.ids, routingID)
		return RoutingIdentity{}, ErrNotFound
	}
	return e.id, nil
}

func (r *MemoryRegistry) Delete(_ context.Context, routingID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, routingID)
	return nil
}
