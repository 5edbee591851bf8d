package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	"Fractal/internal/repository"
	"Fractal/pkg/logger"
)

type recPublisher struct {
	published []models.KernelSnapshot
	err       error
}

func (p *recPublisher) Publish(_ context.Context, snaps []models.KernelSnapshot) error {
	p.published = append(p.published, snaps...)
	return p.err
}

func (p *recPublisher) Close() error { return nil }

type recEnqueuer struct {
	msgType string
	keys    []string
	payload interface{}
}

func (e *recEnqueuer) EnqueueUnique(_ context.Context, msgType, key string, payload interface{}) (bool, error) {
	for _, k := range e.keys {
		if k == key {
			return false, nil
		}
	}
	e.msgType, e.payload = msgType, payload
	e.keys = append(e.keys, key)
	return true, nil
}

func newSnapshotUC(t *testing.T, f *fixture, pub *recPublisher) (*SnapshotUseCase, *repository.MemorySnapshotStore) {
	t.Helper()
	store := repository.NewMemorySnapshotStore()
	uc := NewSnapshotUseCase(f.terminal, store, pub, nil, logger.Nop())
	uc.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	return uc, store
}

func TestSnapshotIDStable(t *testing.T) {
	asof := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	a := SnapshotID("SPX", asof, models.Horizon30d, models.PresetBalanced)
	assert.Equal(t, a, SnapshotID("SPX", asof, models.Horizon30d, models.PresetBalanced))
	assert.NotEqual(t, a, SnapshotID("SPX", asof, models.Horizon30d, models.PresetAggressive))
	assert.NotEqual(t, a, SnapshotID("SPX", asof.AddDate(0, 0, 1), models.Horizon30d, models.PresetBalanced))
}

func TestSnapshotWriteIsIdempotent(t *testing.T) {
	candles := walk("SPX", 1000, 8)
	f := newFixture(t, candles)
	pub := &recPublisher{}
	uc, store := newSnapshotUC(t, f, pub)
	ctx := context.Background()

	res, err := uc.Write(ctx, "spx")
	require.NoError(t, err)
	assert.False(t, res.Queued)
	assert.Equal(t, 18, res.Written)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, candles[len(candles)-1].TS, res.AsofDate)
	assert.Len(t, pub.published, 18)

	again, err := uc.WriteNow(ctx, "SPX")
	require.NoError(t, err)
	assert.Zero(t, again.Written)
	assert.Equal(t, 18, again.Skipped)
	assert.Len(t, pub.published, 18)

	list, err := uc.List(ctx, "SPX", 100)
	require.NoError(t, err)
	assert.Equal(t, 18, list.Count)

	for _, s := range list.Snapshots {
		assert.Equal(t, SnapshotID("SPX", res.AsofDate, s.Focus, s.Preset), s.ID)
		if s.Focus == models.Horizon365d {
			assert.Equal(t, models.TradeNone, s.Digest.Mode)
			assert.Zero(t, s.Digest.FinalSize)
		}
		assert.Len(t, s.TierWeights, 3)
	}
	ids, _ := store.Exists(ctx, []string{list.Snapshots[0].ID})
	assert.True(t, ids[list.Snapshots[0].ID])
}

func TestSnapshotPublishFailureKeepsWrite(t *testing.T) {
	f := newFixture(t, walk("SPX", 1000, 8))
	uc, _ := newSnapshotUC(t, f, &recPublisher{err: errors.New("broker down")})

	res, err := uc.WriteNow(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, 18, res.Written)
}

func TestSnapshotWriteEnqueues(t *testing.T) {
	f := newFixture(t, walk("SPX", 10, 8))
	q := &recEnqueuer{}
	uc := NewSnapshotUseCase(f.terminal, repository.NewMemorySnapshotStore(), &recPublisher{}, q, logger.Nop())
	uc.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }

	res, err := uc.Write(context.Background(), "spx")
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, SnapshotJobType, q.msgType)
	assert.Equal(t, snapshotJobPayload{Symbol: "SPX"}, q.payload)

	res, err = uc.Write(context.Background(), "SPX")
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Equal(t, []string{"SPX|2026-01-01"}, q.keys)
}

func TestSnapshotJobHandle(t *testing.T) {
	f := newFixture(t, walk("SPX", 1000, 8))
	uc, store := newSnapshotUC(t, f, &recPublisher{})
	job := NewSnapshotJob(uc)
	assert.Equal(t, SnapshotJobType, job.Type())

	raw, _ := json.Marshal(snapshotJobPayload{Symbol: "SPX"})
	require.NoError(t, job.Handle(context.Background(), raw))

	list, err := store.List(context.Background(), "SPX", 0)
	require.NoError(t, err)
	assert.Len(t, list, 18)

	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`{`)))
}

func TestSnapshotWriteNotReady(t *testing.T) {
	f := newFixture(t, walk("SPX", 100, 8))
	uc, _ := newSnapshotUC(t, f, &recPublisher{})

	_, err := uc.WriteNow(context.Background(), "SPX")
	assert.True(t, models.IsNotReady(err))
}
