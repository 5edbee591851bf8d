package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"Fractal/internal/domain/models"
	domrepo "Fractal/internal/domain/repository"
	pipemetrics "Fractal/internal/service/metrics"
	xhttp "Fractal/pkg/http"
	xlogger "Fractal/pkg/logger"
	"Fractal/pkg/util"
)

const (
	defaultPingEvery = 30 * time.Second
	writeWait        = 10 * time.Second
	sendBuffer       = 16
	maxInbound       = 512
)

type client struct {
	conn   *websocket.Conn
	symbol string
	send   chan []byte
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans data version notices out to websocket subscribers of each symbol.
// A client whose buffer is full is dropped instead of blocking the publisher.
type Hub struct {
	log       *xlogger.Logger
	upgrader  websocket.Upgrader
	pingEvery time.Duration

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
}

func NewHub(log *xlogger.Logger) *Hub {
	return &Hub{
		log: log.With(xlogger.String("component", "ws.hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		pingEvery: defaultPingEvery,
		clients:   make(map[string]map[*client]struct{}),
	}
}

var _ domrepo.Notifier = (*Hub)(nil)

// Notify pushes n to every subscriber of symbol.
func (h *Hub) Notify(symbol string, n models.DataVersionNotice) {
	b, err := json.Marshal(n)
	if err != nil {
		h.log.Error("encode notice", xlogger.Error(err))
		return
	}
	h.mu.RLock()
	var slow []*client
	for c := range h.clients[symbol] {
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow subscriber", xlogger.String("symbol", symbol))
		h.unregister(c)
	}
}

// Subscribers returns the number of live connections for symbol.
func (h *Hub) Subscribers(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[symbol])
}

// Serve upgrades GET /stream?symbol= to a websocket.
func (h *Hub) Serve(c echo.Context) error {
	symbol := util.NormalizeSymbol(c.QueryParam("symbol"))
	if !util.IsValidSymbol(symbol) {
		return xhttp.AppErrorResponse(c, xhttp.InvalidParamError("ERR_INVALID_SYMBOL", "symbol", "symbol is required"))
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}

	cl := &client{conn: conn, symbol: symbol, send: make(chan []byte, sendBuffer)}
	h.register(cl)
	go h.writeLoop(cl)
	h.readLoop(cl)
	return nil
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for c := range set {
			c.close()
			pipemetrics.LiveSubscribers.Dec()
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	set, ok := h.clients[c.symbol]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.symbol] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	pipemetrics.LiveSubscribers.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.symbol]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.symbol)
		}
	}
	h.mu.Unlock()
	if ok {
		c.close()
		pipemetrics.LiveSubscribers.Dec()
	}
}

// readLoop only services control frames; it returns when the peer goes away.
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
	}()
	pongWait := 2 * h.pingEvery
	c.conn.SetReadLimit(maxInbound)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.unregister(c)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				h.unregister(c)
				return
			}
		}
	}
}
