package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Fractal/internal/domain/models"
	xlogger "Fractal/pkg/logger"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(xlogger.Nop())
	e := echo.New()
	e.GET("/stream", hub.Serve)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func TestHubDeliversNotices(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?symbol=spx", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("SPX") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Notify("ETH", models.DataVersionNotice{Type: "data_version", Symbol: "ETH", Version: 9})
	hub.Notify("SPX", models.DataVersionNotice{Type: "data_version", Symbol: "SPX", Version: 42, TS: 1000})

	var got models.DataVersionNotice
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, models.DataVersionNotice{Type: "data_version", Symbol: "SPX", Version: 42, TS: 1000}, got)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?symbol=SPX", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers("SPX") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("SPX") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(xlogger.Nop())
	c := &client{symbol: "SPX", send: make(chan []byte, 1)}
	hub.register(c)

	hub.Notify("SPX", models.DataVersionNotice{Version: 1})
	assert.Equal(t, 1, hub.Subscribers("SPX"))
	hub.Notify("SPX", models.DataVersionNotice{Version: 2})
	assert.Equal(t, 0, hub.Subscribers("SPX"))

	<-c.send
	_, open := <-c.send
	assert.False(t, open)
}

func TestHubRejectsMissingSymbol(t *testing.T) {
	_, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
