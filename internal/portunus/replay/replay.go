// Package replay rejects envelope nonces that have already been used.
package replay

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrReplayedNonce is returned when a nonce was claimed within the TTL.
var ErrReplayedNonce = errors.New("nonce already used")

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "portunus:nonce:"
)

// Guard claims a nonce exactly once within its TTL.
type Guard interface {
	Claim(ctx context.Context, nonce []byte) error
}

func key(nonce []byte) string { return keyPrefix + hex.EncodeToString(nonce) }

// RedisGuard shares claimed nonces across server instances with SET NX.
type RedisGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisGuard(client redis.UniversalClient, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, nonce []byte) error {
	ok, err := g.client.SetNX(ctx, key(nonce), "1", g.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim nonce: %w", err)
	}
	if !ok {
		return ErrReplayedNonce
	}
	return nil
}

// MemoryGuard is a single-process Guard. Expired entries are swept lazily.
type MemoryGuard struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	seen      map[string]time.Time
	lastSweep time.Time
}

func NewMemoryGuard(ttl time.Duration) *MemoryGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryGuard{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

// SetClock replaces the clock used for expiry.
func (g *MemoryGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

func (g *MemoryGuard) Claim(_ context.Context, nonce []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= g.ttl {
		for k, exp := range g.seen {
			if !now.Before(exp) {
				delete(g.seen, k)
			}
		}
		g.lastSweep = now
	}

	k := key(nonce)
	if exp, ok := g.seen[k]; ok && now.Before(exp) {
		return ErrReplayedNonce
	}
	g.seen[k] = now.Add(g.ttl)
	return nil
}
