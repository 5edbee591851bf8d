package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	domsvc "Fractal/internal/domain/service"
	icache "Fractal/internal/service/cache"
	"Fractal/internal/services/analog"
	"Fractal/internal/services/features"
	"Fractal/internal/services/forecast"
	"Fractal/internal/services/phase"
	"Fractal/pkg/config"
	"Fractal/pkg/logger"
)

// Zones kept in a focus pack; the terminal's extended set carries the full history.
const focusZones = 20

// Pipeline stage names used for metrics and HorizonError.
const (
	stageHistory   = "history"
	stagePhase     = "phase"
	stageMatch     = "match"
	stageAggregate = "aggregate"
	stageSelect    = "select"
	stageForecast  = "forecast"
	stageStrength  = "strength"
)

// FocusPackUseCase runs the single-horizon analog pipeline on one candle snapshot
// and memoizes results by data version.
type FocusPackUseCase struct {
	store      domrepo.CandleStore
	versions   domrepo.VersionRegistry
	cache      domrepo.ResultCache
	metrics    domrepo.Metrics
	eng        *config.Engine
	classifier *phase.Classifier
	log        *logger.Logger
}

func NewFocusPackUseCase(store domrepo.CandleStore, versions domrepo.VersionRegistry, cache domrepo.ResultCache,
	metrics domrepo.Metrics, eng *config.Engine, log *logger.Logger) *FocusPackUseCase {
	return &FocusPackUseCase{
		store:      store,
		versions:   versions,
		cache:      cache,
		metrics:    metrics,
		eng:        eng,
		classifier: phase.NewClassifier(eng.Phase),
		log:        log.With(logger.String("component", "usecase.focus_pack")),
	}
}

var _ domsvc.FocusPackBuilder = (*FocusPackUseCase)(nil)

// Build returns the focus pack of symbol for horizon h, restricted to analogs ending in
// phaseFilter when it is set.
func (uc *FocusPackUseCase) Build(ctx context.Context, symbol string, h models.Horizon, phaseFilter models.Phase) (*models.FocusPack, error) {
	start := time.Now()
	defer func() { uc.metrics.RecordLatency("focus_pack", time.Since(start).Seconds()) }()

	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	hc, ok := uc.eng.Horizon(h)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidHorizon, h)
	}
	version, err := uc.currentVersion(ctx, symbol)
	if err != nil {
		return nil, err
	}

	key := icache.FocusPackKey(symbol, hc.Key, phaseFilter, version)
	var cached models.FocusPack
	if uc.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	candles, err := uc.readCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}
	pack, err := uc.compute(ctx, symbol, hc, phaseFilter, candles, version)
	if err != nil {
		return nil, err
	}
	uc.remember(ctx, key, pack)
	return pack, nil
}

// buildFrom serves one horizon of a multi-horizon request from a shared candle snapshot.
// candles must be a private copy.
func (uc *FocusPackUseCase) buildFrom(ctx context.Context, symbol string, hc config.HorizonConfig, candles []models.Candle, version int64) (*models.FocusPack, error) {
	key := icache.FocusPackKey(symbol, hc.Key, "", version)
	var cached models.FocusPack
	if uc.lookup(ctx, key, &cached) {
		return &cached, nil
	}
	pack, err := uc.compute(ctx, symbol, hc, "", candles, version)
	if err != nil {
		return nil, err
	}
	uc.remember(ctx, key, pack)
	return pack, nil
}

func (uc *FocusPackUseCase) currentVersion(ctx context.Context, symbol string) (int64, error) {
	v, err := uc.versions.Current(ctx, symbol)
	if err != nil {
		uc.metrics.RecordError("version_registry")
		return 0, fmt.Errorf("%w: data version of %s: %v", models.ErrUpstreamData, symbol, err)
	}
	return v, nil
}

func (uc *FocusPackUseCase) readCandles(ctx context.Context, symbol string) ([]models.Candle, error) {
	candles, err := uc.store.GetCandles(ctx, domrepo.CandleQuery{Symbol: symbol})
	if err != nil {
		uc.metrics.RecordError("candle_store")
		return nil, fmt.Errorf("%w: candles of %s: %v", models.ErrUpstreamData, symbol, err)
	}
	return candles, nil
}

// lookup decodes a cached result into dst. Cache failures degrade to a miss.
func (uc *FocusPackUseCase) lookup(ctx context.Context, key string, dst any) bool {
	raw, ok, err := uc.cache.Get(ctx, key)
	switch {
	case err != nil:
		uc.metrics.RecordCache("error")
		uc.log.Warn("result cache read failed", logger.String("key", key), logger.Error(err))
		return false
	case !ok:
		uc.metrics.RecordCache("miss")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		uc.metrics.RecordCache("error")
		uc.log.Warn("result cache entry undecodable", logger.String("key", key), logger.Error(err))
		return false
	}
	uc.metrics.RecordCache("hit")
	return true
}

func (uc *FocusPackUseCase) remember(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		uc.log.Error("encode result", logger.String("key", key), logger.Error(err))
		return
	}
	if err := uc.cache.Set(ctx, key, raw); err != nil {
		uc.metrics.RecordCache("error")
		uc.log.Warn("result cache write failed", logger.String("key", key), logger.Error(err))
	}
}

// compute is a pure function of the candle snapshot and the engine tables.
func (uc *FocusPackUseCase) compute(ctx context.Context, symbol string, hc config.HorizonConfig, filter models.Phase,
	candles []models.Candle, version int64) (pack *models.FocusPack, err error) {
	timed := func(name string, fn func()) {
		t0 := time.Now()
		fn()
		uc.metrics.RecordHorizon(hc.Key, name, time.Since(t0))
	}
	stage := func(name string, fn func() error) (ferr error) {
		timed(name, func() { ferr = fn() })
		if ferr != nil {
			return &models.HorizonError{Horizon: hc.Key, Stage: name, Err: ferr}
		}
		return nil
	}
	defer func() {
		if err == nil {
			return
		}
		uc.metrics.RecordHorizonFailure(hc.Key, models.FailureReason(err))
		if models.IsNotReady(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		var he *models.HorizonError
		stageName := ""
		if errors.As(err, &he) {
			stageName = he.Stage
		}
		uc.log.Error("horizon pipeline failed",
			logger.String("symbol", symbol),
			logger.String("horizon", string(hc.Key)),
			logger.String("stage", stageName),
			logger.Int64("data_version", version),
			logger.Error(err))
	}()

	n := len(candles)
	if n < hc.MinHistory {
		return nil, &models.HorizonError{Horizon: hc.Key, Stage: stageHistory, Err: models.NewNotReady(
			models.ErrInsufficientHistory, hc.MinHistory, n,
			fmt.Sprintf("the %s horizon needs %d daily candles", hc.Key, hc.MinHistory))}
	}
	last := candles[n-1]

	var (
		snap     models.PhaseSnapshot
		labels   []models.Phase
		window   analog.Window
		matches  []models.Match
		dist     models.AftermathDistribution
		sel      models.PrimarySelection
		fc       models.Forecast
		div      models.Divergence
		vol      models.VolatilitySnapshot
		strength models.PhaseStrength
	)
	timed(stagePhase, func() {
		snap, labels = uc.classifier.Snapshot(candles)
	})
	if err := stage(stageMatch, func() (e error) {
		window, matches, e = analog.Match(ctx, candles, analog.MatchConfig{
			WindowLen:     hc.WindowLen,
			TopK:          hc.TopK,
			AftermathDays: hc.Days,
			ExclusionGap:  hc.ExclusionGap,
			PhaseFilter:   filter,
			Labels:        labels,
		})
		return e
	}); err != nil {
		return nil, err
	}
	if err := stage(stageAggregate, func() (e error) {
		dist, e = analog.Aggregate(matches, hc.Days, hc.MinMatches)
		return e
	}); err != nil {
		return nil, err
	}
	if err := stage(stageSelect, func() (e error) {
		sel, e = analog.SelectPrimary(matches, uc.eng.Selection[hc.Tier])
		return e
	}); err != nil {
		return nil, err
	}
	if err := stage(stageForecast, func() (e error) {
		fc, e = forecast.Build(forecast.BuildInput{
			Asof:         last.TS,
			CurrentPrice: last.Close,
			Distribution: dist,
			Primary:      sel.PrimaryMatch,
			Checkpoints:  uc.eng.CheckpointsFor(hc.Days),
		})
		if e != nil {
			return e
		}
		div = forecast.Compare(dist.Series.P50, sel.PrimaryMatch.AftermathReturns, uc.eng.Divergence)
		return nil
	}); err != nil {
		return nil, err
	}
	timed(stageStrength, func() {
		vol = phase.ClassifyVolatility(candles, uc.eng.Phase.VolWindow, uc.eng.Phase.VolBaseline)
		strength = phase.Strength(phase.StrengthInput{
			Candles:    candles,
			Labels:     labels,
			Phase:      snap.Phase,
			Focus:      hc.Key,
			Days:       hc.Days,
			VolRegime:  vol.Regime,
			Divergence: &div,
		})
	})

	if len(snap.Zones) > focusZones {
		snap.Zones = snap.Zones[len(snap.Zones)-focusZones:]
	}
	sim, stab := analog.MeanSubScores(matches)
	return &models.FocusPack{
		Meta: models.FocusMeta{
			Symbol:        symbol,
			Focus:         hc.Key,
			Tier:          hc.Tier,
			Asof:          last.TS,
			DataVersion:   version,
			CandleCount:   n,
			CurrentPrice:  last.Close,
			WindowLen:     hc.WindowLen,
			TopK:          hc.TopK,
			AftermathDays: hc.Days,
			PhaseFilter:   filter,
		},
		Overlay: models.Overlay{
			CurrentWindow:      window.Values,
			Matches:            matches,
			Stats:              dist.Stats,
			DistributionSeries: dist.Series,
		},
		Forecast:         fc,
		Divergence:       div,
		Phase:            models.PhaseView{PhaseSnapshot: snap, Strength: strength},
		PrimarySelection: sel,
		Diagnostics: models.QualityDiagnostics{
			QualityScore:   analog.QualityScore(matches, hc.TopK),
			MeanSimilarity: features.Round(sim, 4),
			MeanStability:  features.Round(stab, 4),
			MatchCount:     len(matches),
			Coverage:       features.Round(float64(len(matches))/float64(hc.TopK), 4),
		},
	}, nil
}

// Render attaches the chart series of the requested display mode.
func Render(pack *models.FocusPack, mode string) *models.FocusPackResponse {
	return &models.FocusPackResponse{
		FocusPack:   pack,
		ChartSeries: forecast.Render(forecast.NewView(pack.Forecast, mode)),
	}
}
