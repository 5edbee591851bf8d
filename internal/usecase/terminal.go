package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"Fractal/internal/domain/models"
	domsvc "Fractal/internal/domain/service"
	icache "Fractal/internal/service/cache"
	"Fractal/internal/services/phase"
	"Fractal/pkg/logger"
)

const (
	terminalZones = 20

	StatusOK       = "OK"
	StatusNotReady = "NOT_READY"
	StatusError    = "ERROR"
)

// TerminalUseCase fans the six horizon pipelines out over one candle snapshot and fuses
// them into consensus and a kernel decision.
type TerminalUseCase struct {
	focus    *FocusPackUseCase
	resolver domsvc.ConsensusResolver
	kernel   domsvc.DecisionKernel
	log      *logger.Logger
}

func NewTerminalUseCase(focus *FocusPackUseCase, resolver domsvc.ConsensusResolver, kernel domsvc.DecisionKernel, log *logger.Logger) *TerminalUseCase {
	return &TerminalUseCase{
		focus:    focus,
		resolver: resolver,
		kernel:   kernel,
		log:      log.With(logger.String("component", "usecase.terminal")),
	}
}

type TerminalParams struct {
	Symbol   string
	Focus    models.Horizon
	Preset   models.Preset
	Extended bool
}

func (p TerminalParams) set() string {
	if p.Extended {
		return "extended"
	}
	return "default"
}

// evaluation is the preset-independent part of a terminal: per-horizon packs and consensus.
type evaluation struct {
	symbol    string
	version   int64
	candles   []models.Candle
	packs     map[models.Horizon]*models.FocusPack
	errs      map[models.Horizon]error
	phase     models.PhaseSnapshot
	labels    []models.Phase
	vol       models.VolatilitySnapshot
	consensus models.ConsensusResult
}

func (uc *TerminalUseCase) Get(ctx context.Context, p TerminalParams) (*models.Terminal, error) {
	start := time.Now()
	defer func() { uc.focus.metrics.RecordLatency("terminal", time.Since(start).Seconds()) }()

	symbol, err := normalizeSymbol(p.Symbol)
	if err != nil {
		return nil, err
	}
	if _, ok := uc.focus.eng.Horizon(p.Focus); !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidHorizon, p.Focus)
	}
	if _, err := uc.focus.eng.Preset(p.Preset); err != nil {
		return nil, err
	}
	version, err := uc.focus.currentVersion(ctx, symbol)
	if err != nil {
		return nil, err
	}

	key := icache.TerminalKey(symbol, p.Focus, p.Preset, p.set(), version)
	var cached models.Terminal
	if uc.focus.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	ev, err := uc.evaluate(ctx, symbol, version)
	if err != nil {
		return nil, err
	}
	decision, err := uc.decide(ev, p.Focus, p.Preset)
	if err != nil {
		return nil, err
	}
	t := uc.assemble(ev, p, decision)
	uc.focus.remember(ctx, key, t)
	return t, nil
}

// evaluate reads candles once and runs every horizon in parallel on a private copy.
// A failing horizon becomes a missing vote; the request fails only when no horizon is ready.
func (uc *TerminalUseCase) evaluate(ctx context.Context, symbol string, version int64) (*evaluation, error) {
	candles, err := uc.focus.readCandles(ctx, symbol)
	if err != nil {
		return nil, err
	}
	horizons := uc.focus.eng.Horizons
	packs := make([]*models.FocusPack, len(horizons))
	errs := make([]error, len(horizons))

	g, gctx := errgroup.WithContext(ctx)
	for i, hc := range horizons {
		g.Go(func() error {
			pack, err := uc.focus.buildFrom(gctx, symbol, hc, cloneCandles(candles), version)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			packs[i], errs[i] = pack, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ev := &evaluation{
		symbol:  symbol,
		version: version,
		candles: candles,
		packs:   make(map[models.Horizon]*models.FocusPack, len(horizons)),
		errs:    make(map[models.Horizon]error),
	}
	votes := make([]models.VoteInput, 0, len(horizons))
	allNotReady := true
	var firstNotReady error
	for i, hc := range horizons {
		if errs[i] != nil {
			ev.errs[hc.Key] = errs[i]
			if models.IsNotReady(errs[i]) {
				if firstNotReady == nil {
					firstNotReady = errs[i]
				}
			} else {
				allNotReady = false
			}
			votes = append(votes, models.VoteInput{Horizon: hc.Key, Reason: models.FailureReason(errs[i])})
			continue
		}
		allNotReady = false
		ev.packs[hc.Key] = packs[i]
		votes = append(votes, models.VoteInput{
			Horizon:      hc.Key,
			MedianReturn: packs[i].Overlay.Stats.MedianReturn,
			Available:    true,
		})
	}
	if allNotReady {
		if firstNotReady == nil {
			firstNotReady = models.NewNotReady(models.ErrInsufficientHistory, horizons[0].MinHistory, len(candles), "no candles stored for this asset")
		}
		return nil, firstNotReady
	}

	ev.phase, ev.labels = uc.focus.classifier.Snapshot(candles)
	cfg := uc.focus.eng.Phase
	ev.vol = phase.ClassifyVolatility(candles, cfg.VolWindow, cfg.VolBaseline)
	ev.consensus = uc.resolver.Resolve(votes, models.RegimeContext{Phase: ev.phase.Phase, VolRegime: ev.vol.Regime})
	uc.focus.metrics.RecordConsensus(symbol, ev.consensus.ConsensusIndex)

	if len(ev.errs) > 0 {
		uc.log.Debug("terminal degraded",
			logger.String("symbol", symbol),
			logger.Int64("data_version", version),
			logger.Int("missing", len(ev.errs)))
	}
	return ev, nil
}

func (uc *TerminalUseCase) decide(ev *evaluation, focus models.Horizon, preset models.Preset) (models.DecisionOutput, error) {
	in := models.DecisionInput{
		Focus:     focus,
		Preset:    preset,
		Consensus: ev.consensus,
		VolRegime: ev.vol.Regime,
	}
	if p := ev.packs[focus]; p != nil {
		in.Available = true
		in.Stats = p.Overlay.Stats
		in.Divergence = p.Divergence
		in.MeanSimilarity = p.Diagnostics.MeanSimilarity
		in.MeanStability = p.Diagnostics.MeanStability
		in.MatchCount = p.Diagnostics.MatchCount
		in.TopK = p.Meta.TopK
	}
	out, err := uc.kernel.Decide(in)
	if err != nil {
		return models.DecisionOutput{}, fmt.Errorf("decide %s/%s: %w", focus, preset, err)
	}
	return out, nil
}

func (uc *TerminalUseCase) assemble(ev *evaluation, p TerminalParams, decision models.DecisionOutput) *models.Terminal {
	eng := uc.focus.eng
	n := len(ev.candles)

	chartFrom := max(0, n-eng.ChartCandles)
	views := make([]models.CandleView, 0, n-chartFrom)
	for _, c := range ev.candles[chartFrom:] {
		views = append(views, models.NewCandleView(c))
	}
	chart := models.TerminalChart{Candles: views}
	if fp := ev.packs[p.Focus]; fp != nil {
		f := fp.Forecast
		chart.Forecast = &f
	}
	if p.Extended {
		chart.Forecasts = make(map[models.Horizon]*models.Forecast, len(ev.packs))
		for h, fp := range ev.packs {
			f := fp.Forecast
			chart.Forecasts[h] = &f
		}
	}

	voteDir := make(map[models.Horizon]models.Direction, len(ev.consensus.Votes))
	for _, v := range ev.consensus.Votes {
		voteDir[v.Horizon] = v.Direction
	}
	matrix := make([]models.HorizonSummary, 0, len(eng.Horizons))
	for _, hc := range eng.Horizons {
		row := models.HorizonSummary{Horizon: hc.Key, Tier: hc.Tier, Direction: models.Flat}
		if fp := ev.packs[hc.Key]; fp != nil {
			row.Status = StatusOK
			row.Direction = voteDir[hc.Key]
			row.MedianReturn = fp.Overlay.Stats.MedianReturn
			row.HitRate = fp.Overlay.Stats.HitRate
			row.Grade = fp.Divergence.Grade
			row.Matches = fp.Diagnostics.MatchCount
			row.PrimaryDate = fp.PrimarySelection.PrimaryMatch.DateRange.To
			row.QualityScore = fp.Diagnostics.QualityScore
		} else {
			err := ev.errs[hc.Key]
			row.Status = StatusError
			if models.IsNotReady(err) {
				row.Status = StatusNotReady
			}
			row.Error = models.FailureReason(err)
		}
		matrix = append(matrix, row)
	}

	zones := ev.phase.Zones
	if !p.Extended && len(zones) > terminalZones {
		zones = zones[len(zones)-terminalZones:]
	}
	var strength models.PhaseStrength
	if fp := ev.packs[p.Focus]; fp != nil {
		strength = fp.Phase.Strength
	} else {
		hc, _ := eng.Horizon(p.Focus)
		strength = phase.Strength(phase.StrengthInput{
			Candles:   ev.candles,
			Labels:    ev.labels,
			Phase:     ev.phase.Phase,
			Focus:     p.Focus,
			Days:      hc.Days,
			VolRegime: ev.vol.Regime,
		})
	}

	return &models.Terminal{
		Meta: models.TerminalMeta{
			Symbol:      ev.symbol,
			Asof:        ev.candles[n-1].TS,
			DataVersion: ev.version,
			Focus:       p.Focus,
			Preset:      p.Preset,
			CandleCount: n,
			Extended:    p.Extended,
		},
		Chart:         chart,
		HorizonMatrix: matrix,
		Consensus:     ev.consensus,
		Decision:      decision,
		PhaseSnapshot: models.TerminalPhase{
			Phase:    ev.phase.Phase,
			Since:    ev.phase.Since,
			Zones:    zones,
			Strength: strength,
		},
		Volatility: ev.vol,
	}
}
