package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service is a byte-oriented key/value cache. Patterns use glob syntax (`*`, `?`).
type Service interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Increment(ctx context.Context, key string) (int64, error)
	SetNX(ctx context.Context, key string, value []byte, expiration time.Duration) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// FreshReader is implemented by caches with a local tier that may lag the shared one.
// GetFresh skips the local tier.
type FreshReader interface {
	GetFresh(ctx context.Context, key string) ([]byte, error)
}

// GetFresh reads key from the authoritative tier of c when it has one.
func GetFresh(ctx context.Context, c Service, key string) ([]byte, error) {
	if f, ok := c.(FreshReader); ok {
		return f.GetFresh(ctx, key)
	}
	return c.Get(ctx, key)
}

// GetJSON reads key and unmarshals it into a T.
func GetJSON[T any](ctx context.Context, c Service, key string) (T, error) {
	var out T
	raw, err := c.Get(ctx, key)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, c Service, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, expiration)
}
