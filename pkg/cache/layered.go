package cache

import (
	"context"
	"time"
)

// LayeredCache implements a two-level cache: a process-local memory L1 in
// front of a shared L2 (Redis in production).
type LayeredCache struct {
	memCache *MemoryCache
	shared   Service
	l1TTL    time.Duration
}

// NewLayeredCache creates a layered cache over shared.
func NewLayeredCache(shared Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		L1TTL:         5 * time.Second,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &LayeredCache{
		memCache: NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		shared:   shared,
		l1TTL:    cfg.L1TTL,
	}
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	// Write-through: shared first, then memory
	if err := lc.shared.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, value, lc.ttlFor(expiration))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var raw []byte
	if err := lc.memCache.Get(ctx, key, &raw); err == nil {
		return decode(raw, dest)
	}

	if err := lc.shared.Get(ctx, key, &raw); err != nil {
		return err
	}
	_ = lc.memCache.Set(ctx, key, raw, lc.l1TTL)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.memCache.Delete(ctx, keys...)
	return lc.shared.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.shared.Exists(ctx, keys...)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	return lc.shared.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key, token string) error {
	return lc.shared.Unlock(ctx, key, token)
}

// InvalidateLocal drops the L1 copies of keys so the next Get reads the
// shared layer.
func (lc *LayeredCache) InvalidateLocal(keys ...string) {
	_ = lc.memCache.Delete(context.Background(), keys...)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.memCache.Close()
	return lc.shared.Close()
}

func (lc *LayeredCache) ttlFor(expiration time.Duration) time.Duration {
	if expiration > 0 && expiration < lc.l1TTL {
		return expiration
	}
	return lc.l1TTL
}

var _ LocalInvalidator = (*LayeredCache)(nil)
