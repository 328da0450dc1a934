package cache

import (
	"context"
	"errors"
	"time"
)

var ErrLockNotObtained = errors.New("cache: lock not obtained")

// Store is a TTL key/value cache holding JSON encoded values.
type Store interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Locker hands out short-lived exclusive locks keyed by name.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
