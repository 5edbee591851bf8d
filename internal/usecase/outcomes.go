package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	"Fractal/internal/services/features"
	"Fractal/pkg/logger"
	"Fractal/pkg/util"
)

// flatHitBand is the largest absolute realized return that still counts a FLAT call as a hit.
const flatHitBand = 0.02

// ResolveOutcomes settles every stored snapshot whose focus horizon has elapsed. The exit
// bar sits Days candles after the asof bar; the realized return is exit close over asof close.
func (uc *SnapshotUseCase) ResolveOutcomes(ctx context.Context, symbol string) (*models.OutcomeResolution, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	candles, err := uc.terminal.focus.store.GetCandles(ctx, domrepo.CandleQuery{Symbol: symbol})
	if err != nil {
		return nil, fmt.Errorf("%w: load candles: %v", models.ErrUpstreamData, err)
	}
	open, err := uc.store.Unresolved(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: unresolved snapshots: %v", models.ErrUpstreamData, err)
	}

	res := &models.OutcomeResolution{
		Symbol:  symbol,
		ByFocus: make(map[models.Horizon]models.FocusResolution, len(models.AllHorizons)),
		Reasons: map[string]int{},
	}
	for _, h := range models.AllHorizons {
		res.ByFocus[h] = models.FocusResolution{}
	}
	if len(candles) > 0 {
		res.LatestCandleDate = util.FormatDate(candles[len(candles)-1].TS)
	}

	index := make(map[int64]int, len(candles))
	for i, c := range candles {
		index[util.DayStart(c.TS).Unix()] = i
	}

	resolvedAt := uc.now().UTC()
	var outcomes []models.SnapshotOutcome
	for _, snap := range open {
		hc, _ := uc.terminal.focus.eng.Horizon(snap.Focus)
		o, reason := resolveSnapshot(snap, hc.Days, candles, index, resolvedAt)
		fr := res.ByFocus[snap.Focus]
		if reason != "" {
			res.Skipped++
			res.Reasons[reason]++
			fr.Skipped++
		} else {
			res.Resolved++
			fr.Resolved++
			outcomes = append(outcomes, o)
		}
		res.ByFocus[snap.Focus] = fr
	}

	if len(outcomes) > 0 {
		if err := uc.store.SaveOutcomes(ctx, outcomes); err != nil {
			return nil, fmt.Errorf("%w: save outcomes: %v", models.ErrUpstreamData, err)
		}
	}
	uc.log.Info("snapshot outcomes resolved",
		logger.String("symbol", symbol),
		logger.Int("resolved", res.Resolved),
		logger.Int("skipped", res.Skipped))
	return res, nil
}

func resolveSnapshot(snap models.KernelSnapshot, days int, candles []models.Candle, index map[int64]int,
	resolvedAt time.Time) (models.SnapshotOutcome, string) {
	entry, ok := index[util.DayStart(snap.AsofDate).Unix()]
	if !ok || days <= 0 {
		return models.SnapshotOutcome{}, models.SkipNoAsofBar
	}
	exit := entry + days
	if exit >= len(candles) {
		return models.SnapshotOutcome{}, models.SkipNotElapsed
	}
	base, last := candles[entry].Close, candles[exit].Close
	if base <= 0 || last <= 0 || math.IsNaN(base) || math.IsNaN(last) {
		return models.SnapshotOutcome{}, models.SkipBadPrice
	}
	ret := last/base - 1
	return models.SnapshotOutcome{
		SnapshotID:     snap.ID,
		Symbol:         snap.Symbol,
		AsofDate:       snap.AsofDate,
		Focus:          snap.Focus,
		Preset:         snap.Preset,
		Direction:      snap.Digest.Direction,
		ExitDate:       candles[exit].TS,
		EntryClose:     base,
		ExitClose:      last,
		RealizedReturn: ret,
		Hit:            directionHit(snap.Digest.Direction, ret),
		ResolvedAt:     resolvedAt,
	}, ""
}

func directionHit(d models.Direction, ret float64) bool {
	switch d {
	case models.Bullish:
		return ret > 0
	case models.Bearish:
		return ret < 0
	default:
		return math.Abs(ret) <= flatHitBand
	}
}

// ForwardStats aggregates every resolved outcome of the asset.
func (uc *SnapshotUseCase) ForwardStats(ctx context.Context, symbol string) (*models.ForwardStats, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	outcomes, err := uc.store.Outcomes(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: list outcomes: %v", models.ErrUpstreamData, err)
	}

	type acc struct {
		n, hits int
		sum     float64
	}
	bucket := func(a acc) models.OutcomeBucket {
		if a.n == 0 {
			return models.OutcomeBucket{}
		}
		return models.OutcomeBucket{
			Count:                a.n,
			Hits:                 a.hits,
			HitRate:              features.Round(float64(a.hits)/float64(a.n), 4),
			AvgRealizedReturnPct: features.Round(100*a.sum/float64(a.n), 4),
		}
	}
	add := func(a *acc, o models.SnapshotOutcome) {
		a.n++
		a.sum += o.RealizedReturn
		if o.Hit {
			a.hits++
		}
	}

	var total acc
	byPreset := map[models.Preset]*acc{}
	byFocus := map[models.Horizon]*acc{}
	for _, o := range outcomes {
		add(&total, o)
		if byPreset[o.Preset] == nil {
			byPreset[o.Preset] = &acc{}
		}
		add(byPreset[o.Preset], o)
		if byFocus[o.Focus] == nil {
			byFocus[o.Focus] = &acc{}
		}
		add(byFocus[o.Focus], o)
	}

	all := bucket(total)
	stats := &models.ForwardStats{
		Symbol:               symbol,
		TotalResolved:        all.Count,
		HitRate:              all.HitRate,
		AvgRealizedReturnPct: all.AvgRealizedReturnPct,
		ByPreset:             make(map[models.Preset]models.OutcomeBucket, len(byPreset)),
		ByFocus:              make(map[models.Horizon]models.OutcomeBucket, len(byFocus)),
	}
	for p, a := range byPreset {
		stats.ByPreset[p] = bucket(*a)
	}
	for h, a := range byFocus {
		stats.ByFocus[h] = bucket(*a)
	}
	return stats, nil
}

// Latest returns the newest snapshot of one focus and preset.
func (uc *SnapshotUseCase) Latest(ctx context.Context, symbol string, focus models.Horizon, preset models.Preset) (*models.LatestSnapshot, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	snap, err := uc.store.Latest(ctx, symbol, focus, preset)
	if err != nil {
		return nil, fmt.Errorf("%w: latest snapshot: %v", models.ErrUpstreamData, err)
	}
	return &models.LatestSnapshot{Found: snap != nil, Snapshot: snap}, nil
}

func (uc *SnapshotUseCase) Count(ctx context.Context, symbol string) (*models.SnapshotCount, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	tallies, err := uc.store.Count(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: count snapshots: %v", models.ErrUpstreamData, err)
	}
	res := &models.SnapshotCount{
		Symbol:   symbol,
		ByFocus:  make(map[models.Horizon]int, len(models.AllHorizons)),
		ByPreset: make(map[models.Preset]int, len(models.AllPresets)),
	}
	for _, h := range models.AllHorizons {
		res.ByFocus[h] = 0
	}
	for _, p := range models.AllPresets {
		res.ByPreset[p] = 0
	}
	for _, t := range tallies {
		res.Total += t.N
		res.ByFocus[t.Focus] += t.N
		res.ByPreset[t.Preset] += t.N
	}
	return res, nil
}
