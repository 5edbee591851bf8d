package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	pkgcache "Fractal/pkg/cache"
)

// CandleCounter seeds a fresh version from the number of stored candles.
type CandleCounter interface {
	GetCount(ctx context.Context, symbol string) (int64, error)
}

// VersionRegistry keeps a monotone per-asset data version in the cache store.
// An unseen asset starts at its candle count so a restart with a cold cache
// still produces a version tied to the data it describes. Reads bypass any
// process-local tier so a bump made by another instance is seen at once.
type VersionRegistry struct {
	store   pkgcache.Service
	counter CandleCounter
}

func NewVersionRegistry(store pkgcache.Service, counter CandleCounter) *VersionRegistry {
	return &VersionRegistry{store: store, counter: counter}
}

func (r *VersionRegistry) Current(ctx context.Context, symbol string) (int64, error) {
	key := pkgcache.GenerateKey(versionPrefix, symbol)
	raw, err := pkgcache.GetFresh(ctx, r.store, key)
	switch {
	case err == nil:
		return parseVersion(key, raw)
	case !errors.Is(err, pkgcache.ErrCacheMiss):
		return 0, err
	}

	seed, err := r.counter.GetCount(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("seed version: %w", err)
	}
	if _, err := r.store.SetNX(ctx, key, []byte(strconv.FormatInt(seed, 10)), 0); err != nil {
		return 0, err
	}
	raw, err = pkgcache.GetFresh(ctx, r.store, key)
	if err != nil {
		return 0, err
	}
	return parseVersion(key, raw)
}

func (r *VersionRegistry) Bump(ctx context.Context, symbol string) (int64, error) {
	if _, err := r.Current(ctx, symbol); err != nil {
		return 0, err
	}
	return r.store.Increment(ctx, pkgcache.GenerateKey(versionPrefix, symbol))
}

func parseVersion(key string, raw []byte) (int64, error) {
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version at %s: %w", key, err)
	}
	return v, nil
}
