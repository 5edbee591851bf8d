package http

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"Fractal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })
}

func TestServerStartServesOnBoundAddr(t *testing.T) {
	s := NewServer(pingRoutes{}, logger.Nop(), WithHost("127.0.0.1"), WithPort(0))
	assert.Empty(t, s.Addr())
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Stop(context.Background()) })

	addr := s.Addr()
	require.NotEmpty(t, addr)

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + addr + "/ping")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerStartReturnsBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	s := NewServer(nil, logger.Nop(), WithHost("127.0.0.1"), WithPort(port))
	err = s.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}
