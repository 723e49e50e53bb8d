package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"safescan-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// ErrBridgeInFlight is returned when a bridge request for the same routing
// identity is still dialing. Rejecting here prevents double billing and
// double ringing.
var ErrBridgeInFlight = errors.New("bridge: request already in flight")

// ErrBridgeCapacity is returned when the platform-wide concurrent bridge
// cap is exhausted. The provider account has a fixed channel count; a
// rejected request is better than a dial the provider will refuse.
var ErrBridgeCapacity = errors.New("bridge: no capacity for another call")

// InFlightGuard enforces at most one concurrent bridge per routing
// identity.
type InFlightGuard interface {
	Acquire(ctx context.Context, routingID string, ttl time.Duration) error
	Release(ctx context.Context, routingID string) error
}

/* ===================== REDIS ===================== */

// RedisGuard holds the in-flight lock in redis so the invariant survives
// multiple API replicas. The TTL is a backstop in case a release is lost.
//
// MaxConcurrent > 0 additionally enforces a platform-wide cap across all
// routing identities, sized to the provider account's channel count.
type RedisGuard struct {
	rdb           *redis.Client
	maxConcurrent int
}

func NewRedisGuard(rdb *redis.Client) *RedisGuard {
	return &RedisGuard{rdb: rdb}
}

// NewRedisGuardWithCap bounds total concurrent bridges platform-wide in
// addition to the per-identity lock.
func NewRedisGuardWithCap(rdb *redis.Client, maxConcurrent int) *RedisGuard {
	return &RedisGuard{rdb: rdb, maxConcurrent: maxConcurrent}
}

const (
	guardKeyPrefix = "bridge:inflight:"
	guardCapKey    = "bridge:active"
)

func (g *RedisGuard) Acquire(ctx context.Context, routingID string, ttl time.Duration) error {
	ok, err := g.rdb.SetNX(ctx, guardKeyPrefix+routingID, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrBridgeInFlight
	}

	if g.maxConcurrent > 0 {
		ok, err := utils.AcquireConcurrencyCap(ctx, g.rdb, guardCapKey, g.maxConcurrent, ttl)
		if err != nil || !ok {
			_ = g.rdb.Del(ctx, guardKeyPrefix+routingID).Err()
			if err != nil {
				return err
			}
			return ErrBridgeCapacity
		}
	}
	return nil
}

func (g *RedisGuard) Release(ctx context.Context, routingID string) error {
	if g.maxConcurrent > 0 {
		if err := utils.ReleaseConcurrencyCap(ctx, g.rdb, guardCapKey); err != nil {
			return err
		}
	}
	return g.rdb.Del(ctx, guardKeyPrefix+routingID).Err()
}

/* ===================== MEMORY ===================== */

// MemoryGuard is the single-process fallback used in tests and local mode.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, routingID string, ttl time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if deadline, ok := g.held[routingID]; ok && g.now().Before(deadline) {
		return ErrBridgeInFlight
	}
	g.held[routingID] = g.now().Add(ttl)
	return nil
}

func (g *MemoryGuard) Release(_ context.Context, routingID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, routingID)
	return nil
}
