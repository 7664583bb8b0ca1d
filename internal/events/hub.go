package events

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Hub broadcasts progress events to connected websocket clients. A slow or
// dead client is dropped rather than allowed to back up the broadcast loop.
type Hub struct {
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	broadcast  chan ProgressEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	done    chan struct{}
}

// NewHub creates a Hub. Call Start before publishing.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger.With("component", "event_hub"),
		upgrader:   websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		broadcast:  make(chan ProgressEvent, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		clients:    make(map[*websocket.Conn]bool),
		done:       make(chan struct{}),
	}
}

// Start runs the hub's broadcast loop in a background goroutine.
func (h *Hub) Start() {
	go h.run()
}

// Stop terminates the broadcast loop and closes all client connections.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				_ = client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", "client_count", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				_ = client.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", "client_count", count)

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal progress event", "error", err)
				continue
			}
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
					_ = client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues the event for broadcast. If the queue is full the event is
// dropped; progress delivery is best-effort and never blocks the caller.
func (h *Hub) Publish(event ProgressEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Debug("dropping progress event, broadcast queue full",
			"job_id", event.JobID)
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	// Once Stop has closed done the run loop no longer services these
	// channels; close the connection instead of blocking forever.
	select {
	case h.register <- conn:
	case <-h.done:
		_ = conn.Close()
		return
	}

	// Drain client frames so pings are answered; the hub never reads
	// application data.
	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
				_ = conn.Close()
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
