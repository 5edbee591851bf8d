package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"Fractal/internal/domain/models"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	errorsTotal     *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	horizonStage    *prometheus.HistogramVec
	horizonFailures *prometheus.CounterVec
	cacheRequests   *prometheus.CounterVec
	consensusIndex  *prometheus.GaugeVec
}

// New creates a recorder registered on reg; nil means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fractal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fractal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		horizonStage: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fractal_horizon_stage_seconds",
				Help:    "Duration of a pipeline stage for one horizon",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"horizon", "stage"},
		),
		horizonFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fractal_horizon_failures_total",
				Help: "Horizons that produced no analysis, by reason",
			},
			[]string{"horizon", "reason"},
		),
		cacheRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fractal_result_cache_requests_total",
				Help: "Result cache lookups by outcome",
			},
			[]string{"result"},
		),
		consensusIndex: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fractal_consensus_index",
				Help: "Last consensus index per asset",
			},
			[]string{"symbol"},
		),
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordHorizon(h models.Horizon, stage string, d time.Duration) {
	r.horizonStage.WithLabelValues(string(h), stage).Observe(d.Seconds())
}

func (r *Recorder) RecordHorizonFailure(h models.Horizon, reason string) {
	r.horizonFailures.WithLabelValues(string(h), reason).Inc()
}

// RecordCache counts a lookup; result is "hit", "miss" or "error".
func (r *Recorder) RecordCache(result string) {
	r.cacheRequests.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordConsensus(symbol string, index int) {
	r.consensusIndex.WithLabelValues(symbol).Set(float64(index))
}

// Noop discards everything. Used by tests and tools that do not expose /metrics.
type Noop struct{}

func (Noop) RecordError(string)                                  {}
func (Noop) RecordLatency(string, float64)                       {}
func (Noop) RecordHorizon(models.Horizon, string, time.Duration) {}
func (Noop) RecordHorizonFailure(models.Horizon, string)         {}
func (Noop) RecordCache(string)                                  {}
func (Noop) RecordConsensus(string, int)                         {}
