package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for the background pipeline: candle events from Kafka and snapshot jobs from the queue.
var (
	once sync.Once

	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fractal",
			Subsystem: "pipeline",
			Name:      "events_total",
			Help:      "Pipeline events by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	EventLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fractal",
			Subsystem: "pipeline",
			Name:      "event_latency_seconds",
			Help:      "Time to handle one pipeline event",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SnapshotsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fractal",
			Subsystem: "pipeline",
			Name:      "snapshots_total",
			Help:      "Kernel snapshots by result",
		},
		[]string{"result"},
	)

	LiveSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fractal",
			Subsystem: "pipeline",
			Name:      "ws_subscribers",
			Help:      "Connected websocket subscribers",
		},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(EventsProcessed, EventLatency, SnapshotsWritten, LiveSubscribers)
	})
}
