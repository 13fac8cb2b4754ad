package restserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	"github.com/chrissnell/fluidwatch/internal/metrics"
	"github.com/chrissnell/fluidwatch/internal/paging"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/view"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the client
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the client
	pongWait = 60 * time.Second

	// Send pings with this period; must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Client messages are small commands
	maxMessageSize = 4096

	sendBuffer = 8
)

// Live message types
const (
	msgRange   = "range"
	msgScroll  = "scroll"
	msgWeight  = "weight"
	msgRefresh = "refresh"
	msgView    = "view"
	msgError   = "error"
)

// liveCommand is sent by the browser to change its own view
type liveCommand struct {
	Type       string  `json:"type"`
	RangeHours int     `json:"range_hours,omitempty"`
	Direction  int     `json:"direction,omitempty"`
	Weight     float64 `json:"weight,omitempty"`
}

// liveUpdate is pushed to the browser
type liveUpdate struct {
	Type   string              `json:"type"`
	View   *view.Result        `json:"view,omitempty"`
	Status *controllers.Status `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
}

// liveClient is one connected browser with its own range, offset and weight
type liveClient struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	state  view.State
	weight float64
}

// liveHub pushes a fresh render to every client whenever a snapshot is published
type liveHub struct {
	service  *controllers.Service
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*liveClient]struct{}
	closed  bool
}

func newLiveHub(service *controllers.Service, logger *zap.SugaredLogger) *liveHub {
	return &liveHub{
		service: service,
		logger:  logger.Named("live"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*liveClient]struct{}),
	}
}

// run broadcasts on every published snapshot until ctx is cancelled
func (h *liveHub) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	updates, cancel := h.service.Store.Subscribe()
	defer cancel()

	for {
		select {
		case <-updates:
			h.broadcast()
		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// ServeHTTP upgrades the connection and serves one client until it disconnects
func (h *liveHub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := h.upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade failed", "error", err)
		return
	}

	c := &liveClient{
		conn:  conn,
		send:  make(chan []byte, sendBuffer),
		state: view.Initial(h.service.Table),
	}
	if !h.register(c) {
		conn.Close()
		return
	}

	go h.writePump(c)
	h.push(c)
	h.readPump(req.Context(), c)
}

func (h *liveHub) register(c *liveClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.WebsocketClients.Inc()
	return true
}

func (h *liveHub) unregister(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WebsocketClients.Dec()
	}
}

func (h *liveHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		metrics.WebsocketClients.Dec()
	}
}

func (h *liveHub) broadcast() {
	h.mu.Lock()
	clients := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.push(c)
	}
}

// push renders the client's current selection and queues it
func (h *liveHub) push(c *liveClient) {
	c.mu.Lock()
	// A shorter buffer than before may have moved the oldest page.
	c.state.OffsetHours = paging.Clamp(c.state.OffsetHours, float64(c.state.RangeHours), h.service.SpanHours())
	state, weight := c.state, c.weight
	c.mu.Unlock()

	status := h.service.Status()
	res, err := h.service.View(state, weight)
	if err != nil {
		h.send(c, liveUpdate{Type: msgError, Status: &status, Error: err.Error()})
		return
	}
	h.send(c, liveUpdate{Type: msgView, View: &res, Status: &status})
}

func (h *liveHub) send(c *liveClient, u liveUpdate) {
	data, err := json.Marshal(u)
	if err != nil {
		h.logger.Errorw("could not encode live update", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		// The client is behind; it will catch up on the next update.
	}
}

// apply changes the client's selection according to cmd
func (h *liveHub) apply(ctx context.Context, c *liveClient, cmd liveCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Type {
	case msgRange:
		next := c.state.WithRange(cmd.RangeHours)
		if err := next.Validate(h.service.Table); err != nil {
			return err
		}
		c.state = next
	case msgScroll:
		if cmd.Direction != paging.Forward && cmd.Direction != paging.Back {
			return fmt.Errorf("direction must be %d or %d, got %d", paging.Back, paging.Forward, cmd.Direction)
		}
		c.state = c.state.Scroll(cmd.Direction, h.service.SpanHours())
	case msgWeight:
		if err := rate.ValidateWeight(cmd.Weight); err != nil {
			return err
		}
		c.weight = cmd.Weight
	case msgRefresh:
		// the refresh publishes a snapshot, which triggers a broadcast
		go h.service.Refresh(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd.Type)
	}
	return nil
}

func (h *liveHub) readPump(ctx context.Context, c *liveClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debugw("websocket closed", "error", err)
			}
			return
		}

		var cmd liveCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			h.send(c, liveUpdate{Type: msgError, Error: "malformed command"})
			continue
		}
		if err := h.apply(ctx, c, cmd); err != nil {
			h.send(c, liveUpdate{Type: msgError, Error: err.Error()})
			continue
		}
		if cmd.Type != msgRefresh {
			h.push(c)
		}
	}
}

func (h *liveHub) writePump(c *liveClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
