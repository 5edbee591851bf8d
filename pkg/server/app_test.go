package server

import (
	"context"
	"testing"
	"time"

	"Fractal/pkg/config"
	"Fractal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes struct{ registered bool }

func (r *routes) RegisterRoutes(e *echo.Echo) { r.registered = true }

func TestAppStartAndShutdown(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second

	h := &routes{}
	app := New(cfg, logger.Nop(), h)
	require.NoError(t, app.Start())
	assert.True(t, h.registered)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, app.Shutdown(ctx))
}

func TestShutdownBeforeStart(t *testing.T) {
	app := New(&config.Config{}, logger.Nop(), nil)
	assert.NoError(t, app.Shutdown(context.Background()))
}
