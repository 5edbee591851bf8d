package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Fractal/internal/domain/models"
	pkgcache "Fractal/pkg/cache"
)

const (
	focusPackPrefix = "fp"
	terminalPrefix  = "term"
	intelPrefix     = "intel"
	versionPrefix   = "ver"
)

// FocusPackKey is fp:{asset}:{horizon}:{phase|all}:{version}.
func FocusPackKey(symbol string, h models.Horizon, phase models.Phase, version int64) string {
	p := "all"
	if phase != "" {
		p = strings.ToLower(string(phase))
	}
	return pkgcache.GenerateKey(focusPackPrefix, symbol, h, p, version)
}

// TerminalKey is term:{asset}:{focus}:{preset}:{set}:{version}.
func TerminalKey(symbol string, focus models.Horizon, preset models.Preset, set string, version int64) string {
	return pkgcache.GenerateKey(terminalPrefix, symbol, focus, strings.ToLower(string(preset)), set, version)
}

// IntelTimelineKey is intel:{asset}:{window}:{version}.
func IntelTimelineKey(symbol string, window int, version int64) string {
	return pkgcache.GenerateKey(intelPrefix, symbol, window, version)
}

// ResultCache stores serialized engine results on top of a pkg/cache store.
type ResultCache struct {
	store pkgcache.Service
	ttl   time.Duration
}

func NewResultCache(store pkgcache.Service, ttl time.Duration) *ResultCache {
	return &ResultCache{store: store, ttl: ttl}
}

func (c *ResultCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (c *ResultCache) Set(ctx context.Context, key string, value []byte) error {
	return c.store.Set(ctx, key, value, c.ttl)
}

// InvalidateAsset drops every cached result of symbol, whatever its version.
func (c *ResultCache) InvalidateAsset(ctx context.Context, symbol string) error {
	for _, prefix := range []string{focusPackPrefix, terminalPrefix, intelPrefix} {
		pattern := pkgcache.BuildPattern(pkgcache.GenerateKey(prefix, symbol))
		if err := c.store.DeleteByPattern(ctx, pattern); err != nil {
			return fmt.Errorf("invalidate %s: %w", pattern, err)
		}
	}
	return nil
}

func (c *ResultCache) Health(ctx context.Context) error {
	return c.store.Ping(ctx)
}
