package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams job progress events to connected clients.
// Every published job_status_change / entity_processed / lock_contention
// event is broadcast as one JSON frame.
type WebSocketHandler struct {
	events  interfaces.EventService
	logger  arbor.ILogger
	clients map[*websocket.Conn]*sync.Mutex
	mu      sync.RWMutex
}

// NewWebSocketHandler creates the handler and subscribes it to the
// progress event types.
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		events:  events,
		logger:  logger,
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}

	for _, eventType := range []string{
		interfaces.EventJobStatusChange,
		interfaces.EventEntityProcessed,
		interfaces.EventLockContention,
	} {
		if err := events.Subscribe(eventType, h.broadcast); err != nil {
			logger.Warn().Err(err).Str("event_type", eventType).Msg("Event subscription failed")
		}
	}

	return h
}

// ServeWS upgrades the connection and registers the client
// GET /ws
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &sync.Mutex{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info().Int("clients", count).Msg("WebSocket client connected")

	// Drain reads until the client goes away
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcast fans one event out to every connected client
func (h *WebSocketHandler) broadcast(_ context.Context, event interfaces.Event) error {
	h.mu.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(h.clients))
	for conn, writeMu := range h.clients {
		conns[conn] = writeMu
	}
	h.mu.RUnlock()

	for conn, writeMu := range conns {
		writeMu.Lock()
		err := conn.WriteJSON(event)
		writeMu.Unlock()
		if err != nil {
			h.drop(conn)
		}
	}
	return nil
}

func (h *WebSocketHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Close disconnects every client
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
