package usecase

import (
	"context"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
)

// QueueProber reports background queue depth.
type QueueProber interface {
	Depth(ctx context.Context) (waiting, retrying, dead int64, err error)
}

// HealthUseCase pings the candle store, the result cache and the job queue when present.
type HealthUseCase struct {
	store   domrepo.CandleStore
	cache   domrepo.ResultCache
	queue   QueueProber
	version string
	timeout time.Duration
}

func NewHealthUseCase(store domrepo.CandleStore, cache domrepo.ResultCache, version string) *HealthUseCase {
	return &HealthUseCase{store: store, cache: cache, version: version, timeout: 3 * time.Second}
}

// WithQueue adds queue depth to the report.
func (uc *HealthUseCase) WithQueue(q QueueProber) *HealthUseCase {
	uc.queue = q
	return uc
}

func (uc *HealthUseCase) Check(ctx context.Context) models.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	st := models.HealthStatus{OK: true, Store: "ok", Cache: "ok", Version: uc.version}
	if err := uc.store.Health(ctx); err != nil {
		st.OK = false
		st.Store = err.Error()
	}
	if err := uc.cache.Health(ctx); err != nil {
		st.OK = false
		st.Cache = err.Error()
	}
	if uc.queue != nil {
		var d models.QueueDepth
		var err error
		if d.Waiting, d.Retrying, d.Dead, err = uc.queue.Depth(ctx); err != nil {
			st.OK = false
			d.Error = err.Error()
		}
		st.Queue = &d
	}
	return st
}
