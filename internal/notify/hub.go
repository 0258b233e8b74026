// Package notify delivers budget alerts to connected clients.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "fintrack/internal/log"
)

const writeWait = 5 * time.Second

// Alert is the payload pushed to a user's clients.
type Alert struct {
	Type      string    `json:"type"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Spent     string    `json:"spent"`
	Limit     string    `json:"limit"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub keeps the live WebSocket connections of each user.
type Hub struct {
	mu       sync.Mutex
	clients  map[int64]map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[int64]map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request and registers the connection under the
// user_id query parameter until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "Failed to upgrade to WebSocket",
			applog.FieldComponent, applog.ComponentNotify,
			applog.FieldError, err)
		return
	}

	h.register(userID, conn)
	defer h.unregister(userID, conn)

	// Clients only listen; reading keeps control frames flowing and detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*websocket.Conn]struct{})
	}
	h.clients[userID][conn] = struct{}{}
	slog.Info("WebSocket client connected",
		applog.FieldComponent, applog.ComponentNotify,
		applog.FieldUserID, userID,
		"connections", len(h.clients[userID]))
}

func (h *Hub) unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(userID, conn)
}

func (h *Hub) dropLocked(userID int64, conn *websocket.Conn) {
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	if _, ok := conns[conn]; !ok {
		return
	}
	delete(conns, conn)
	conn.Close()
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	slog.Info("WebSocket client disconnected",
		applog.FieldComponent, applog.ComponentNotify,
		applog.FieldUserID, userID)
}

// Connected returns how many connections userID has open.
func (h *Hub) Connected(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Emit sends alert to every connection of userID. Connections that fail to
// accept the write are dropped. A user with no connections is not an error.
func (h *Hub) Emit(ctx context.Context, userID int64, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[userID]
	if len(conns) == 0 {
		slog.DebugContext(ctx, "No connected clients for alert",
			applog.FieldComponent, applog.ComponentNotify,
			applog.FieldUserID, userID)
		return nil
	}
	for conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			slog.WarnContext(ctx, "Error sending alert to client",
				applog.FieldComponent, applog.ComponentNotify,
				applog.FieldUserID, userID,
				applog.FieldError, err)
			h.dropLocked(userID, conn)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.clients {
		for conn := range conns {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			conn.Close()
		}
		delete(h.clients, userID)
	}
}

// LogEmitter writes alerts to the log. Used when no hub is running.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, userID int64, alert Alert) error {
	slog.WarnContext(ctx, "Budget exceeded",
		applog.FieldComponent, applog.ComponentNotify,
		applog.FieldUserID, userID,
		"category", alert.Category,
		"message", alert.Message)
	return nil
}
