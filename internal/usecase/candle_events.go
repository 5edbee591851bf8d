package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	pipemetrics "Fractal/internal/service/metrics"
	pkgkafka "Fractal/pkg/kafka"
	"Fractal/pkg/logger"
)

// CandleInvalidator drops cached candle reads of one symbol.
type CandleInvalidator interface {
	Invalidate(symbol string)
}

// CandleEventsHandler consumes candle-appended notifications: it moves the asset's data
// version, drops stale results and tells stream subscribers.
type CandleEventsHandler struct {
	topic    string
	versions domrepo.VersionRegistry
	cache    domrepo.ResultCache
	candles  CandleInvalidator
	notifier domrepo.Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewCandleEventsHandler builds the handler. candles and notifier may be nil.
func NewCandleEventsHandler(topic string, versions domrepo.VersionRegistry, cache domrepo.ResultCache,
	candles CandleInvalidator, notifier domrepo.Notifier, log *logger.Logger) *CandleEventsHandler {
	return &CandleEventsHandler{
		topic:    topic,
		versions: versions,
		cache:    cache,
		candles:  candles,
		notifier: notifier,
		log:      log.With(logger.String("component", "usecase.candle_events")),
		now:      time.Now,
	}
}

func (h *CandleEventsHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, ts, count}
func (h *CandleEventsHandler) Handle(ctx context.Context, b []byte) (err error) {
	start := h.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		pipemetrics.EventsProcessed.WithLabelValues("kafka", outcome).Inc()
		pipemetrics.EventLatency.WithLabelValues("kafka").Observe(h.now().Sub(start).Seconds())
	}()

	var ev models.CandlesAppended
	if err := json.Unmarshal(b, &ev); err != nil {
		return fmt.Errorf("decode candles event: %w", err)
	}
	symbol, err := normalizeSymbol(ev.Symbol)
	if err != nil {
		return err
	}
	_, err = h.Apply(ctx, symbol, ev.TS)
	return err
}

// Apply bumps the data version of symbol and returns the new one. ts is the event time
// in seconds or milliseconds; zero means now.
func (h *CandleEventsHandler) Apply(ctx context.Context, symbol string, ts int64) (int64, error) {
	if h.candles != nil {
		h.candles.Invalidate(symbol)
	}
	version, err := h.versions.Bump(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("bump data version of %s: %w", symbol, err)
	}
	if err := h.cache.InvalidateAsset(ctx, symbol); err != nil {
		// Stale entries are unreachable under the new version; this only frees memory.
		h.log.Warn("invalidate results", logger.String("symbol", symbol), logger.Error(err))
	}

	switch {
	case ts <= 0:
		ts = h.now().UnixMilli()
	case ts < 1e11:
		ts *= 1000
	}
	if h.notifier != nil {
		h.notifier.Notify(symbol, models.DataVersionNotice{Type: "data_version", Symbol: symbol, Version: version, TS: ts})
	}
	h.log.Debug("data version bumped", logger.String("symbol", symbol), logger.Int64("version", version))
	return version, nil
}

var _ pkgkafka.MessageHandler = (*CandleEventsHandler)(nil)
