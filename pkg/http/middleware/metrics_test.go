package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	m := newHTTPCollectors(prometheus.NewRegistry())
	e := echo.New()
	e.Use(metricsWith(m, nil, 0))
	e.GET("/candles/:symbol", func(c echo.Context) error { return c.String(http.StatusOK, c.Param("symbol")) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusBadGateway, "upstream") })

	for _, target := range []string{"/candles/SPX", "/candles/BTC", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("/candles/:symbol", http.MethodGet, "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/boom", http.MethodGet, "502")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.latency))
}
