// Package hooks fans out ask, bid and sale lifecycle notifications to
// registered subscribers. Calls are prepared inside the request that
// triggers them and delivered after the request commits; a failing
// subscriber is recorded and never fails the request.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/nft-marketplace/internal/model"
)

var (
	ErrAlreadyRegistered = errors.New("hooks: subscriber already registered")
	ErrNotRegistered     = errors.New("hooks: subscriber not registered")
	ErrUnknownKind       = errors.New("hooks: unknown hook kind")

	// ErrRegistryUnavailable wraps a failed subscriber lookup.
	ErrRegistryUnavailable = errors.New("hooks: subscriber registry unavailable")
)

// Kinds lists every subscriber list, in a stable order.
var Kinds = []model.HookKind{model.HookAsk, model.HookBid, model.HookSale}

func validKind(kind model.HookKind) error {
	if !slices.Contains(Kinds, kind) {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return nil
}

// Registry holds the subscriber addresses of each hook kind in
// registration order.
type Registry interface {
	Subscribers(ctx context.Context, kind model.HookKind) ([]string, error)
	Register(ctx context.Context, kind model.HookKind, addr string) error
	Unregister(ctx context.Context, kind model.HookKind, addr string) error
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu   sync.RWMutex
	subs map[model.HookKind][]string
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{subs: make(map[model.HookKind][]string)}
}

func (r *MemoryRegistry) Subscribers(_ context.Context, kind model.HookKind) ([]string, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.subs[kind]), nil
}

func (r *MemoryRegistry) Register(_ context.Context, kind model.HookKind, addr string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.Contains(r.subs[kind], addr) {
		return fmt.Errorf("%w: %s %s", ErrAlreadyRegistered, kind, addr)
	}
	r.subs[kind] = append(r.subs[kind], addr)
	return nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, kind model.HookKind, addr string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.Index(r.subs[kind], addr)
	if i < 0 {
		return fmt.Errorf("%w: %s %s", ErrNotRegistered, kind, addr)
	}
	r.subs[kind] = slices.Delete(r.subs[kind], i, i+1)
	return nil
}

// RedisRegistry keeps each subscriber list in a Redis list so every
// replica of the service fans out to the same subscribers.
type RedisRegistry struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisRegistry creates a registry whose lists live under prefix.
func NewRedisRegistry(rdb *redis.Client, prefix string) *RedisRegistry {
	return &RedisRegistry{rdb: rdb, prefix: prefix}
}

func (r *RedisRegistry) key(kind model.HookKind) string {
	return r.prefix + "hooks:" + string(kind)
}

func (r *RedisRegistry) Subscribers(ctx context.Context, kind model.HookKind) ([]string, error) {
	if err := validKind(kind); err != nil {
		return nil, err
	}
	subs, err := r.rdb.LRange(ctx, r.key(kind), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("hooks: list %s subscribers: %w", kind, err)
	}
	return subs, nil
}

func (r *RedisRegistry) Register(ctx context.Context, kind model.HookKind, addr string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	_, err := r.rdb.LPos(ctx, r.key(kind), addr, redis.LPosArgs{}).Result()
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s %s", ErrAlreadyRegistered, kind, addr)
	case !errors.Is(err, redis.Nil):
		return fmt.Errorf("hooks: register %s: %w", kind, err)
	}
	if err := r.rdb.RPush(ctx, r.key(kind), addr).Err(); err != nil {
		return fmt.Errorf("hooks: register %s: %w", kind, err)
	}
	return nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, kind model.HookKind, addr string) error {
	if err := validKind(kind); err != nil {
		return err
	}
	n, err := r.rdb.LRem(ctx, r.key(kind), 0, addr).Result()
	if err != nil {
		return fmt.Errorf("hooks: unregister %s: %w", kind, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", ErrNotRegistered, kind, addr)
	}
	return nil
}

// Seed registers addrs under kind, skipping ones already present.
func Seed(ctx context.Context, r Registry, kind model.HookKind, addrs []string) error {
	for _, addr := range addrs {
		if err := r.Register(ctx, kind, addr); err != nil && !errors.Is(err, ErrAlreadyRegistered) {
			return err
		}
	}
	return nil
}
