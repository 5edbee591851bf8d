package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "Fractal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpCollectors struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	size     *prometheus.HistogramVec
}

var (
	collectorsOnce sync.Once
	collectors     *httpCollectors
)

func newHTTPCollectors(reg prometheus.Registerer) *httpCollectors {
	f := promauto.With(reg)
	return &httpCollectors{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fractal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route template, method and status code.",
		}, []string{"route", "method", "status"}),
		// Terminal requests fan out six horizons, so the top buckets matter.
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fractal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method", "class"}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fractal",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response body size.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"route", "method", "class"}),
	}
}

// Metrics records request counters and histograms on the default registry,
// labelled by route template so path parameters do not explode cardinality.
// Requests slower than slowThreshold are also logged; zero disables that.
func Metrics(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	collectorsOnce.Do(func() { collectors = newHTTPCollectors(prometheus.DefaultRegisterer) })
	return metricsWith(collectors, l, slowThreshold)
}

func metricsWith(m *httpCollectors, l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			took := time.Since(start)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			res := c.Response()
			status := res.Status
			if err != nil {
				// The error handler has not written yet; count what it will send.
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}
			class := strconv.Itoa(status/100) + "xx"

			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.latency.WithLabelValues(route, method, class).Observe(took.Seconds())
			m.size.WithLabelValues(route, method, class).Observe(float64(res.Size))

			if l != nil && slowThreshold > 0 && took >= slowThreshold {
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", status),
					applogger.Duration("duration_ms", took),
				)
			}
			return err
		}
	}
}
