package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	"Fractal/pkg/util"
)

// MemoryCandleStore keeps candles per symbol in memory. It backs the `file` store type and tests.
type MemoryCandleStore struct {
	mu   sync.RWMutex
	data map[string][]models.Candle
}

func NewMemoryCandleStore() *MemoryCandleStore {
	return &MemoryCandleStore{data: make(map[string][]models.Candle)}
}

// LoadCSVFile reads a file with header symbol,date,open,high,low,close[,volume][,cohort].
func LoadCSVFile(path string) (*MemoryCandleStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candles file: %w", err)
	}
	defer f.Close()

	s := NewMemoryCandleStore()
	if err := s.LoadCSV(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// LoadCSV appends every row of r. Dates accept YYYY-MM-DD, RFC3339 or unix seconds.
func (s *MemoryCandleStore) LoadCSV(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, need := range []string{"symbol", "date", "open", "high", "low", "close"} {
		if _, ok := col[need]; !ok {
			return fmt.Errorf("missing column %q", need)
		}
	}

	var candles []models.Candle
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		c, err := parseCandleRecord(rec, col)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return s.AppendCandles(context.Background(), candles)
}

func parseCandleRecord(rec []string, col map[string]int) (models.Candle, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(name string) (float64, error) {
		v := field(name)
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return f, nil
	}

	ts, ok := util.ParseTime(field("date"))
	if !ok {
		return models.Candle{}, fmt.Errorf("bad date %q", field("date"))
	}
	c := models.Candle{
		Symbol: util.NormalizeSymbol(field("symbol")),
		TS:     util.DayStart(ts),
		Cohort: field("cohort"),
	}
	var err error
	for _, p := range []struct {
		name string
		dst  *float64
	}{{"open", &c.Open}, {"high", &c.High}, {"low", &c.Low}, {"close", &c.Close}, {"volume", &c.Volume}} {
		if *p.dst, err = num(p.name); err != nil {
			return models.Candle{}, err
		}
	}
	if c.Symbol == "" {
		return models.Candle{}, errors.New("empty symbol")
	}
	return c, nil
}

func (s *MemoryCandleStore) GetCandles(_ context.Context, q domrepo.CandleQuery) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.data[q.Symbol]
	lo := 0
	if !q.From.IsZero() {
		lo = sort.Search(len(series), func(i int) bool { return !series[i].TS.Before(q.From) })
	}
	hi := len(series)
	if !q.To.IsZero() {
		hi = sort.Search(len(series), func(i int) bool { return series[i].TS.After(q.To) })
	}
	if hi < lo {
		hi = lo
	}
	if q.Limit > 0 && hi-lo > q.Limit {
		lo = hi - q.Limit
	}
	out := make([]models.Candle, hi-lo)
	copy(out, series[lo:hi])
	return out, nil
}

func (s *MemoryCandleStore) GetLatest(_ context.Context, symbol string) (*models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.data[symbol]
	if len(series) == 0 {
		return nil, nil
	}
	c := series[len(series)-1]
	return &c, nil
}

func (s *MemoryCandleStore) GetCount(_ context.Context, symbol string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.data[symbol])), nil
}

// AppendCandles merges candles into their series; a bar with an existing timestamp replaces it.
func (s *MemoryCandleStore) AppendCandles(_ context.Context, candles []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, c := range candles {
		c.TS = c.TS.UTC()
		s.data[c.Symbol] = append(s.data[c.Symbol], c)
		touched[c.Symbol] = true
	}
	for sym := range touched {
		s.data[sym] = dedupeSorted(s.data[sym])
	}
	return nil
}

// Symbols lists loaded symbols in order.
func (s *MemoryCandleStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for sym := range s.data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryCandleStore) Health(context.Context) error {
	return nil
}

// dedupeSorted sorts by timestamp and keeps the last written bar per timestamp.
func dedupeSorted(series []models.Candle) []models.Candle {
	sort.SliceStable(series, func(i, j int) bool { return series[i].TS.Before(series[j].TS) })
	out := series[:0]
	for _, c := range series {
		if n := len(out); n > 0 && out[n-1].TS.Equal(c.TS) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// MemorySnapshotStore implements SnapshotStore in memory.
type MemorySnapshotStore struct {
	mu       sync.RWMutex
	byID     map[string]models.KernelSnapshot
	order    []string
	outcomes map[string]models.SnapshotOutcome
}

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		byID:     make(map[string]models.KernelSnapshot),
		outcomes: make(map[string]models.SnapshotOutcome),
	}
}

func (s *MemorySnapshotStore) Init(context.Context) error { return nil }

func (s *MemorySnapshotStore) Exists(_ context.Context, ids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

func (s *MemorySnapshotStore) Save(_ context.Context, snaps []models.KernelSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, snap := range snaps {
		if _, ok := s.byID[snap.ID]; ok {
			continue
		}
		s.byID[snap.ID] = snap
		s.order = append(s.order, snap.ID)
	}
	return nil
}

// List returns the newest asof dates first, then focus and preset order.
func (s *MemorySnapshotStore) List(_ context.Context, symbol string, limit int) ([]models.KernelSnapshot, error) {
	s.mu.RLock()
	var out []models.KernelSnapshot
	for _, id := range s.order {
		if snap := s.byID[id]; snap.Symbol == symbol {
			out = append(out, snap)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.AsofDate.Equal(b.AsofDate) {
			return a.AsofDate.After(b.AsofDate)
		}
		if a.Focus != b.Focus {
			return a.Focus < b.Focus
		}
		return a.Preset < b.Preset
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemorySnapshotStore) Latest(_ context.Context, symbol string, focus models.Horizon, preset models.Preset) (*models.KernelSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.KernelSnapshot
	for _, id := range s.order {
		snap := s.byID[id]
		if snap.Symbol != symbol || snap.Focus != focus || snap.Preset != preset {
			continue
		}
		if best == nil || snap.AsofDate.After(best.AsofDate) {
			c := snap
			best = &c
		}
	}
	return best, nil
}

func (s *MemorySnapshotStore) Count(_ context.Context, symbol string) ([]models.SnapshotTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type key struct {
		focus  models.Horizon
		preset models.Preset
	}
	counts := make(map[key]int)
	var keys []key
	for _, id := range s.order {
		snap := s.byID[id]
		if snap.Symbol != symbol {
			continue
		}
		k := key{snap.Focus, snap.Preset}
		if counts[k] == 0 {
			keys = append(keys, k)
		}
		counts[k]++
	}
	out := make([]models.SnapshotTally, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.SnapshotTally{Focus: k.focus, Preset: k.preset, N: counts[k]})
	}
	return out, nil
}

func (s *MemorySnapshotStore) Unresolved(_ context.Context, symbol string) ([]models.KernelSnapshot, error) {
	s.mu.RLock()
	var out []models.KernelSnapshot
	for _, id := range s.order {
		if _, done := s.outcomes[id]; done {
			continue
		}
		if snap := s.byID[id]; snap.Symbol == symbol {
			out = append(out, snap)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].AsofDate.Before(out[j].AsofDate) })
	return out, nil
}

// SaveOutcomes keeps the first outcome stored per snapshot.
func (s *MemorySnapshotStore) SaveOutcomes(_ context.Context, outcomes []models.SnapshotOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range outcomes {
		if _, ok := s.outcomes[o.SnapshotID]; !ok {
			s.outcomes[o.SnapshotID] = o
		}
	}
	return nil
}

func (s *MemorySnapshotStore) Outcomes(_ context.Context, symbol string) ([]models.SnapshotOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SnapshotOutcome
	for _, id := range s.order {
		if o, ok := s.outcomes[id]; ok && o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}
