package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"moviefinder/internal/domain"
	"moviefinder/internal/metrics"
	"moviefinder/internal/search"
	"moviefinder/internal/telemetry"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsReadLimit      = 4096
	wsSendBuffer     = 16
	wsSearchDeadline = 15 * time.Second
)

type wsMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsRequest struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type wsClient struct {
	hub       *wsHub
	conn      *websocket.Conn
	search    SearchService
	logger    *slog.Logger
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	debouncer *search.Debouncer
	ctx       context.Context
	cancel    context.CancelFunc

	mu           sync.Mutex
	searchCancel context.CancelFunc
}

// wsHub tracks live search clients so they can be counted and disconnected
// on shutdown.
type wsHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
	closeOnce  sync.Once
	logger     *slog.Logger
}

func newWSHub(logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				_ = client.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(2*time.Second),
				)
				client.close()
				delete(h.clients, client)
				metrics.LiveSearchClients.Dec()
			}
			h.logger.Debug("ws hub stopped, all clients disconnected")
			return
		case client := <-h.register:
			h.clients[client] = true
			metrics.LiveSearchClients.Inc()
			h.logger.Debug("ws client connected", slog.Int("total", len(h.clients)))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
				metrics.LiveSearchClients.Dec()
				h.logger.Debug("ws client disconnected", slog.Int("total", len(h.clients)))
			}
		}
	}
}

// add registers client unless the hub is already stopped.
func (h *wsHub) add(client *wsClient) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *wsHub) remove(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// Close signals the hub to stop and disconnect all clients.
func (h *wsHub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleWSSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		http.Error(w, "live search not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	// The connection outlives the upgrade request.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	client := &wsClient{
		hub:       s.hub,
		conn:      conn,
		search:    s.search,
		logger:    s.logger,
		send:      make(chan []byte, wsSendBuffer),
		done:      make(chan struct{}),
		debouncer: search.NewDebouncer(s.debounce),
		ctx:       ctx,
		cancel:    cancel,
	}
	if !s.hub.add(client) {
		client.close()
		_ = conn.Close()
		return
	}
	client.enqueue("trending", client.search.Trending(ctx, domain.DefaultTrendingLimit))
	go client.writePump()
	go client.readPump()
}

// close stops pending and running searches and releases the write pump.
func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.debouncer.Stop()
		c.cancel()
		close(c.done)
	})
}

// enqueue hands a message to the write pump. Slow clients lose messages
// rather than block a search.
func (c *wsClient) enqueue(msgType string, data any) {
	payload, err := json.Marshal(wsMessage{Type: msgType, Data: data})
	if err != nil {
		c.logger.Error("ws marshal failed", slog.String("error", err.Error()))
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Debug("ws send buffer full, dropping message", slog.String("type", msgType))
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(wsReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.enqueue("error", wsError("invalid_request", "invalid json message"))
			continue
		}
		switch req.Type {
		case "query":
			if len(req.Query) > maxQueryLength {
				c.enqueue("error", wsError("invalid_request", "query too long (max 500 characters)"))
				continue
			}
			query := req.Query
			c.debouncer.Trigger(func() { c.runSearch(query) })
		case "trending":
			c.enqueue("trending", c.search.Trending(c.ctx, req.Limit))
		default:
			c.enqueue("error", wsError("invalid_request", "unknown message type"))
		}
	}
}

// runSearch executes one debounced query. A newer query cancels the one still
// in flight, and results of a cancelled query are dropped.
func (c *wsClient) runSearch(query string) {
	ctx, cancel := context.WithTimeout(c.ctx, wsSearchDeadline)
	c.mu.Lock()
	if c.searchCancel != nil {
		c.searchCancel()
	}
	c.searchCancel = cancel
	c.mu.Unlock()
	defer cancel()

	result, err := c.search.Search(ctx, query)
	if errors.Is(ctx.Err(), context.Canceled) {
		return
	}
	if err != nil {
		c.logger.Warn("live search failed",
			slog.String("query", telemetry.Truncate(query, 80)),
			slog.String("error", err.Error()),
		)
		c.enqueue("error", wsError("fetch_failed", domain.FetchFailureMessage))
		return
	}
	c.enqueue("movies", result)
}

func wsError(code, message string) map[string]string {
	return map[string]string{"code": code, "message": message}
}
