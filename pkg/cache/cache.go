package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not found in the cache.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache contract. It backs two concerns: short-lived report
// snapshots (Set/Get with a TTL) and cooperative run locks (TryLock/Unlock).
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)

	// TryLock claims key for ttl if nobody else holds it. Non-blocking.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases a key claimed by TryLock.
	Unlock(ctx context.Context, key string) error
}
