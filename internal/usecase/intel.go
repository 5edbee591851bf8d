package usecase

import (
	"context"
	"errors"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"Fractal/internal/domain/models"
	domsvc "Fractal/internal/domain/service"
	icache "Fractal/internal/service/cache"
	"Fractal/internal/services/analog"
	"Fractal/internal/services/features"
	"Fractal/internal/services/phase"
	"Fractal/pkg/config"
	"Fractal/pkg/logger"
	"Fractal/pkg/util"
)

const (
	intelStrengthFocus = models.Horizon30d
	// trendBand is the smallest 7 day change of the mean phase score reported as UP or DOWN.
	trendBand = 2.0
)

// IntelUseCase replays the phase grade and the horizon consensus of every trailing day
// as it stood at that day's close. Only candles up to the day are visible to the replay.
type IntelUseCase struct {
	focus    *FocusPackUseCase
	resolver domsvc.ConsensusResolver
	workers  int
	log      *logger.Logger
}

func NewIntelUseCase(focus *FocusPackUseCase, resolver domsvc.ConsensusResolver, log *logger.Logger) *IntelUseCase {
	return &IntelUseCase{
		focus:    focus,
		resolver: resolver,
		workers:  runtime.GOMAXPROCS(0),
		log:      log.With(logger.String("component", "usecase.intel")),
	}
}

// Timeline returns up to window trailing days. Results are memoized by data version.
func (uc *IntelUseCase) Timeline(ctx context.Context, symbol string, window int) (*models.IntelTimeline, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if window <= 0 {
		return nil, models.ErrInvalidRequest
	}
	version, err := uc.focus.currentVersion(ctx, symbol)
	if err != nil {
		return nil, err
	}
	key := icache.IntelTimelineKey(symbol, window, version)
	var cached models.IntelTimeline
	if uc.focus.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	candles, err := uc.focus.readCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}
	n := len(candles)
	if n == 0 {
		return nil, models.NewNotReady(models.ErrInsufficientHistory, 1, 0, "no candles stored for this asset")
	}
	labels := uc.focus.classifier.Label(candles)
	days := min(window, n)

	start := time.Now()
	series := make([]models.IntelPoint, days)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(uc.workers, 1))
	for i := range series {
		end := n - days + i + 1
		g.Go(func() error {
			p, err := uc.replayDay(gctx, candles[:end], labels[:end])
			if err != nil {
				return err
			}
			series[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tl := &models.IntelTimeline{
		Meta: models.IntelMeta{
			Symbol:      symbol,
			Window:      window,
			Days:        days,
			Asof:        candles[n-1].TS,
			DataVersion: version,
		},
		Series: series,
		Stats:  intelStats(series),
	}
	uc.log.Debug("intel timeline replayed",
		logger.String("symbol", symbol),
		logger.Int("days", days),
		logger.Duration("duration_ms", time.Since(start)))
	uc.focus.remember(ctx, key, tl)
	return tl, nil
}

// replayDay treats the last candle as the asof bar. Horizons that cannot run become missing votes.
func (uc *IntelUseCase) replayDay(ctx context.Context, candles []models.Candle, labels []models.Phase) (models.IntelPoint, error) {
	eng := uc.focus.eng
	n := len(candles)
	votes := make([]models.VoteInput, 0, len(eng.Horizons))
	for _, hc := range eng.Horizons {
		median, err := horizonMedian(ctx, candles, labels, hc)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return models.IntelPoint{}, err
		}
		if err != nil {
			votes = append(votes, models.VoteInput{Horizon: hc.Key, Reason: models.FailureReason(err)})
			continue
		}
		votes = append(votes, models.VoteInput{Horizon: hc.Key, MedianReturn: median, Available: true})
	}

	current := labels[n-1]
	vol := phase.ClassifyVolatility(candles, eng.Phase.VolWindow, eng.Phase.VolBaseline)
	cons := uc.resolver.Resolve(votes, models.RegimeContext{Phase: current, VolRegime: vol.Regime})

	hc, _ := eng.Horizon(intelStrengthFocus)
	strength := phase.Strength(phase.StrengthInput{
		Candles:   candles,
		Labels:    labels,
		Phase:     current,
		Focus:     intelStrengthFocus,
		Days:      hc.Days,
		VolRegime: vol.Regime,
	})

	return models.IntelPoint{
		Date:           util.FormatDate(candles[n-1].TS),
		PhaseType:      current,
		PhaseGrade:     strength.Grade,
		PhaseScore:     strength.Score,
		DominanceTier:  cons.DominantTier,
		StructuralLock: cons.StructuralLock,
		ConsensusIndex: cons.ConsensusIndex,
		Direction:      cons.Direction,
		VolRegime:      vol.Regime,
	}, nil
}

// horizonMedian runs the match and aftermath stages of one horizon and returns the vote input.
func horizonMedian(ctx context.Context, candles []models.Candle, labels []models.Phase, hc config.HorizonConfig) (float64, error) {
	if len(candles) < hc.MinHistory {
		return 0, models.NewNotReady(models.ErrInsufficientHistory, hc.MinHistory, len(candles), "")
	}
	_, matches, err := analog.Match(ctx, candles, analog.MatchConfig{
		WindowLen:     hc.WindowLen,
		TopK:          hc.TopK,
		AftermathDays: hc.Days,
		ExclusionGap:  hc.ExclusionGap,
		Labels:        labels,
	})
	if err != nil {
		return 0, err
	}
	dist, err := analog.Aggregate(matches, hc.Days, hc.MinMatches)
	if err != nil {
		return 0, err
	}
	return dist.Stats.MedianReturn, nil
}

func intelStats(series []models.IntelPoint) models.IntelStats {
	var st models.IntelStats
	if len(series) == 0 {
		st.Trend7d = models.TrendFlat
		return st
	}
	structure := 0
	scores := make([]float64, len(series))
	for i, p := range series {
		if p.StructuralLock {
			st.LockDays++
		}
		if p.DominanceTier == models.TierStructure {
			structure++
		}
		scores[i] = p.PhaseScore
	}
	st.StructureDominancePct = features.Round(100*float64(structure)/float64(len(series)), 2)
	st.AvgPhaseScore = features.Round(features.Mean(scores), 2)

	st.Trend7d = models.TrendFlat
	if len(scores) >= 8 {
		recent := scores[max(0, len(scores)-7):]
		prior := scores[max(0, len(scores)-14) : len(scores)-7]
		delta := features.Mean(recent) - features.Mean(prior)
		st.Trend7dDelta = features.Round(delta, 2)
		switch {
		case delta >= trendBand:
			st.Trend7d = models.TrendUp
		case delta <= -trendBand:
			st.Trend7d = models.TrendDown
		}
	}
	return st
}
