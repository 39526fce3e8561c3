// Package feedstore keeps the feed API's snapshot in a pkg/cache backend.
package feedstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/pkg/cache"
)

const (
	DefaultKey         = "feed:snapshot"
	DefaultLockTTL     = 5 * time.Second
	DefaultLockTimeout = 3 * time.Second
	lockRetry          = 25 * time.Millisecond
)

// ErrLockTimeout is returned when another writer holds the update lock for
// longer than the lock timeout.
var ErrLockTimeout = errors.New("feed store: timed out waiting for update lock")

// Store implements drepo.FeedStore. Writers are serialised by a local mutex
// and, for shared backends, by a cache lock so several feed instances can
// share one Redis.
type Store struct {
	cache       cache.Service
	key         string
	lockTTL     time.Duration
	lockTimeout time.Duration
	now         func() time.Time

	mu sync.Mutex
}

type Option func(*Store)

// WithKey sets the cache key holding the snapshot.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithLock sets the cross-instance lock TTL and how long Update waits for it.
func WithLock(ttl, timeout time.Duration) Option {
	return func(s *Store) {
		s.lockTTL = ttl
		s.lockTimeout = timeout
	}
}

// WithClock replaces time.Now for the last_updated stamp.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(c cache.Service, opts ...Option) *Store {
	s := &Store{
		cache:       c,
		key:         DefaultKey,
		lockTTL:     DefaultLockTTL,
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Load(ctx context.Context) (*models.Snapshot, error) {
	snap := models.DefaultSnapshot()
	if err := s.cache.Get(ctx, s.key, &snap); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			def := models.DefaultSnapshot()
			return &def, nil
		}
		return nil, fmt.Errorf("load feed snapshot: %w", err)
	}
	fillEmptyLists(&snap)
	return &snap, nil
}

func (s *Store) Update(ctx context.Context, fn func(*models.Snapshot) error) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockKey := s.key + ":lock"
	token, err := s.acquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.cache.Unlock(context.Background(), lockKey, token) }()

	// another instance may have written since the local copy was cached
	if lc, ok := s.cache.(cache.LocalInvalidator); ok {
		lc.InvalidateLocal(s.key)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(snap); err != nil {
		return nil, err
	}
	fillEmptyLists(snap)

	stamp := s.now().UTC().Truncate(time.Second)
	snap.LastUpdated = &stamp
	if err := s.cache.Set(ctx, s.key, snap, 0); err != nil {
		return nil, fmt.Errorf("save feed snapshot: %w", err)
	}
	return snap, nil
}

func (s *Store) acquire(ctx context.Context, key string) (string, error) {
	deadline := time.NewTimer(s.lockTimeout)
	defer deadline.Stop()
	for {
		token, ok, err := s.cache.TryLock(ctx, key, s.lockTTL)
		if err != nil {
			return "", fmt.Errorf("acquire feed lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", ErrLockTimeout
		case <-time.After(lockRetry):
		}
	}
}

// fillEmptyLists keeps list fields serialising as [] rather than null.
func fillEmptyLists(s *models.Snapshot) {
	if s.Predictions == nil {
		s.Predictions = []models.Prediction{}
	}
	if s.Patterns == nil {
		s.Patterns = []models.Pattern{}
	}
	if s.Signals == nil {
		s.Signals = []models.Signal{}
	}
	if s.Reports == nil {
		s.Reports = []models.Report{}
	}
}

var _ drepo.FeedStore = (*Store)(nil)
