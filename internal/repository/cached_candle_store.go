package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	icache "Fractal/internal/service/cache"
)

// CachedCandleStore memoizes candle reads for a short TTL. Invalidate drops one symbol
// when an append event arrives so the next read sees the new bars.
//
// A read that overlaps an Invalidate of its symbol is returned but never cached, and
// cached open-ended reads are checked against the store's latest bar before use, so
// appends made through another instance are seen on the next read.
type CachedCandleStore struct {
	next  domrepo.CandleStore
	cache *icache.TTLCache[[]models.Candle]
	ttl   time.Duration

	mu   sync.Mutex
	gens map[string]uint64
}

func NewCachedCandleStore(next domrepo.CandleStore, ttl time.Duration) *CachedCandleStore {
	return &CachedCandleStore{
		next:  next,
		cache: icache.NewTTLCache[[]models.Candle](),
		ttl:   ttl,
		gens:  make(map[string]uint64),
	}
}

func candleCacheKey(q domrepo.CandleQuery) string {
	return fmt.Sprintf("%s|%d|%d|%d", q.Symbol, unixOrZero(q.From), unixOrZero(q.To), q.Limit)
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// GetCandles returns a private copy; callers may mutate it.
func (s *CachedCandleStore) GetCandles(ctx context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	key := candleCacheKey(q)
	if v, ok := s.cache.Get(key); ok {
		fresh, err := s.isFresh(ctx, q, v)
		if err != nil {
			return nil, err
		}
		if fresh {
			return cloneCandles(v), nil
		}
		s.cache.Delete(key)
	}

	gen := s.generation(q.Symbol)
	v, err := s.next.GetCandles(ctx, q)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if s.gens[q.Symbol] == gen {
		s.cache.Set(key, cloneCandles(v), s.ttl)
	}
	s.mu.Unlock()
	return v, nil
}

func (s *CachedCandleStore) generation(symbol string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[symbol]
}

// isFresh reports whether a cached read still ends at the store's latest bar. Reads
// bounded by To cannot change under appends and are always fresh.
func (s *CachedCandleStore) isFresh(ctx context.Context, q domrepo.CandleQuery, cached []models.Candle) (bool, error) {
	if !q.To.IsZero() {
		return true, nil
	}
	latest, err := s.next.GetLatest(ctx, q.Symbol)
	if err != nil {
		return false, err
	}
	if len(cached) == 0 {
		return latest == nil || (!q.From.IsZero() && latest.TS.Before(q.From)), nil
	}
	tail := cached[len(cached)-1]
	return latest != nil && latest.TS.Equal(tail.TS) && latest.Close == tail.Close, nil
}

func (s *CachedCandleStore) GetLatest(ctx context.Context, symbol string) (*models.Candle, error) {
	return s.next.GetLatest(ctx, symbol)
}

func (s *CachedCandleStore) GetCount(ctx context.Context, symbol string) (int64, error) {
	return s.next.GetCount(ctx, symbol)
}

func (s *CachedCandleStore) Health(ctx context.Context) error {
	return s.next.Health(ctx)
}

// AppendCandles forwards to the wrapped store when it accepts writes.
func (s *CachedCandleStore) AppendCandles(ctx context.Context, candles []models.Candle) error {
	w, ok := s.next.(domrepo.CandleWriter)
	if !ok {
		return fmt.Errorf("candle store is read-only")
	}
	if err := w.AppendCandles(ctx, candles); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, c := range candles {
		if !seen[c.Symbol] {
			seen[c.Symbol] = true
			s.Invalidate(c.Symbol)
		}
	}
	return nil
}

// Invalidate drops every cached read of symbol and stops in-flight reads from caching.
func (s *CachedCandleStore) Invalidate(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[symbol]++
	s.cache.DeletePrefix(symbol + "|")
}

func cloneCandles(in []models.Candle) []models.Candle {
	out := make([]models.Candle, len(in))
	copy(out, in)
	return out
}
