package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrLockNotHeld is returned by Unlock when the lock expired or another
	// holder took it over.
	ErrLockNotHeld = errors.New("cache: lock not held")
)

// Service defines cache operations interface.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	// TryLock returns a token identifying this holder when the lock was taken.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Unlock releases the lock only if it is still held with token.
	Unlock(ctx context.Context, key, token string) error
	Close() error
}

// LocalInvalidator is implemented by caches that keep a process-local copy
// of shared entries.
type LocalInvalidator interface {
	InvalidateLocal(keys ...string)
}

// GenerateKey creates a cache key with prefix and ID.
func GenerateKey(prefix string, id string) string {
	return fmt.Sprintf("%s:%s", prefix, id)
}

// encode turns a value into its stored form. Strings and byte slices are
// stored as-is, everything else as JSON.
func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return append([]byte(nil), v...), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache: encode: %w", err)
		}
		return data, nil
	}
}

// decode is the inverse of encode.
func decode(data []byte, dest interface{}) error {
	switch d := dest.(type) {
	case *string:
		*d = string(data)
		return nil
	case *[]byte:
		*d = append([]byte(nil), data...)
		return nil
	default:
		if err := json.Unmarshal(data, dest); err != nil {
			return fmt.Errorf("cache: decode: %w", err)
		}
		return nil
	}
}

func newLockToken() string {
	return uuid.NewString()
}
