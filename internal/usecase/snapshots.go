package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	pipemetrics "Fractal/internal/service/metrics"
	"Fractal/pkg/logger"
	"Fractal/pkg/queue"
	"Fractal/pkg/util"
)

// SnapshotJobType is the queue message type of an asynchronous snapshot write.
const SnapshotJobType = "memory.write_snapshots"

var snapshotNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("fractal.kernel.snapshot"))

// SnapshotID is stable for one symbol, asof date, focus and preset.
func SnapshotID(symbol string, asof time.Time, focus models.Horizon, preset models.Preset) string {
	name := strings.Join([]string{symbol, util.FormatDate(asof), string(focus), string(preset)}, "|")
	return uuid.NewSHA1(snapshotNamespace, []byte(name)).String()
}

// JobEnqueuer hands work to the background queue. A key that is already pending is not enqueued twice.
type JobEnqueuer interface {
	EnqueueUnique(ctx context.Context, msgType, key string, payload interface{}) (bool, error)
}

// SnapshotUseCase writes one kernel snapshot per focus and preset for the latest asof date.
type SnapshotUseCase struct {
	terminal  *TerminalUseCase
	store     domrepo.SnapshotStore
	publisher domrepo.SnapshotPublisher
	jobs      JobEnqueuer
	log       *logger.Logger
	now       func() time.Time
}

// NewSnapshotUseCase builds the use case. A nil jobs runs writes inline.
func NewSnapshotUseCase(terminal *TerminalUseCase, store domrepo.SnapshotStore, publisher domrepo.SnapshotPublisher,
	jobs JobEnqueuer, log *logger.Logger) *SnapshotUseCase {
	return &SnapshotUseCase{
		terminal:  terminal,
		store:     store,
		publisher: publisher,
		jobs:      jobs,
		log:       log.With(logger.String("component", "usecase.snapshots")),
		now:       time.Now,
	}
}

type snapshotJobPayload struct {
	Symbol string `json:"symbol"`
}

// Write enqueues the write when a queue is configured, otherwise runs it inline.
func (uc *SnapshotUseCase) Write(ctx context.Context, symbol string) (*models.SnapshotWriteResult, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if uc.jobs == nil {
		return uc.WriteNow(ctx, symbol)
	}
	key := symbol + "|" + uc.now().UTC().Format(time.DateOnly)
	fresh, err := uc.jobs.EnqueueUnique(ctx, SnapshotJobType, key, snapshotJobPayload{Symbol: symbol})
	if err != nil {
		return nil, fmt.Errorf("%w: enqueue snapshot job: %v", models.ErrUpstreamData, err)
	}
	if !fresh {
		uc.log.Debug("snapshot write already pending", logger.String("symbol", symbol))
	}
	return &models.SnapshotWriteResult{Symbol: symbol, Queued: true}, nil
}

// WriteNow evaluates every horizon once and records the kernel outcome of every
// focus and preset pair. Ids that already exist are skipped.
func (uc *SnapshotUseCase) WriteNow(ctx context.Context, symbol string) (*models.SnapshotWriteResult, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	version, err := uc.terminal.focus.currentVersion(ctx, symbol)
	if err != nil {
		return nil, err
	}
	ev, err := uc.terminal.evaluate(ctx, symbol, version)
	if err != nil {
		return nil, err
	}

	asof := util.DayStart(ev.candles[len(ev.candles)-1].TS)
	weights := make(map[models.Tier]float64, len(ev.consensus.Tiers))
	for _, t := range ev.consensus.Tiers {
		weights[t.Tier] = t.Share
	}
	createdAt := uc.now().UTC()

	horizons := uc.terminal.focus.eng.Horizons
	snaps := make([]models.KernelSnapshot, 0, len(horizons)*len(models.AllPresets))
	ids := make([]string, 0, cap(snaps))
	for _, hc := range horizons {
		for _, preset := range models.AllPresets {
			out, err := uc.terminal.decide(ev, hc.Key, preset)
			if err != nil {
				return nil, err
			}
			id := SnapshotID(symbol, asof, hc.Key, preset)
			ids = append(ids, id)
			snaps = append(snaps, models.KernelSnapshot{
				ID:       id,
				Symbol:   symbol,
				AsofDate: asof,
				Focus:    hc.Key,
				Preset:   preset,
				Digest: models.KernelDigest{
					Direction:      ev.consensus.Direction,
					Action:         out.Action,
					Mode:           out.Mode,
					FinalSize:      out.PositionSize,
					ConsensusIndex: ev.consensus.ConsensusIndex,
					ConflictLevel:  ev.consensus.ConflictLevel,
				},
				TierWeights: weights,
				CreatedAt:   createdAt,
			})
		}
	}

	existing, err := uc.store.Exists(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot lookup: %v", models.ErrUpstreamData, err)
	}
	fresh := snaps[:0:0]
	for _, s := range snaps {
		if !existing[s.ID] {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) > 0 {
		if err := uc.store.Save(ctx, fresh); err != nil {
			pipemetrics.SnapshotsWritten.WithLabelValues("error").Add(float64(len(fresh)))
			return nil, fmt.Errorf("%w: save snapshots: %v", models.ErrUpstreamData, err)
		}
		if err := uc.publisher.Publish(ctx, fresh); err != nil {
			uc.log.Warn("publish snapshots", logger.String("symbol", symbol), logger.Error(err))
		}
	}

	res := &models.SnapshotWriteResult{
		Symbol:   symbol,
		AsofDate: asof,
		Written:  len(fresh),
		Skipped:  len(snaps) - len(fresh),
	}
	pipemetrics.SnapshotsWritten.WithLabelValues("written").Add(float64(res.Written))
	pipemetrics.SnapshotsWritten.WithLabelValues("skipped").Add(float64(res.Skipped))
	uc.log.Info("kernel snapshots written",
		logger.String("symbol", symbol),
		logger.String("asof", util.FormatDate(asof)),
		logger.Int("written", res.Written),
		logger.Int("skipped", res.Skipped))
	return res, nil
}

func (uc *SnapshotUseCase) List(ctx context.Context, symbol string, limit int) (*models.SnapshotList, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	snaps, err := uc.store.List(ctx, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list snapshots: %v", models.ErrUpstreamData, err)
	}
	if snaps == nil {
		snaps = []models.KernelSnapshot{}
	}
	return &models.SnapshotList{Symbol: symbol, Count: len(snaps), Snapshots: snaps}, nil
}

// SnapshotJob runs queued snapshot writes.
type SnapshotJob struct {
	uc *SnapshotUseCase
}

func NewSnapshotJob(uc *SnapshotUseCase) *SnapshotJob {
	return &SnapshotJob{uc: uc}
}

func (j *SnapshotJob) Name() string { return "write_snapshots" }
func (j *SnapshotJob) Type() string { return SnapshotJobType }

func (j *SnapshotJob) Handle(ctx context.Context, payload json.RawMessage) error {
	p, err := queue.DecodePayload[snapshotJobPayload](payload)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = j.uc.WriteNow(ctx, p.Symbol)
	pipemetrics.EventLatency.WithLabelValues("queue").Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	pipemetrics.EventsProcessed.WithLabelValues("queue", outcome).Inc()
	return err
}

var _ queue.Job = (*SnapshotJob)(nil)
