package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rakuda/server/storage"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboard clients connect from the same origin or through a
	// trusted proxy; report payloads carry no secrets.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSEvent is one message pushed to dashboard clients.
type WSEvent struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// wsClient wraps a connection with a write lock. gorilla/websocket
// supports at most one concurrent writer per connection, and report
// transitions broadcast from the HTTP handlers and the scheduler at
// the same time.
type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// WSHub fans events out to connected dashboard clients. It implements
// reports.Notifier so the pipeline can push status transitions live.
type WSHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]bool
}

func NewWSHub() *WSHub {
	return &WSHub{clients: make(map[*wsClient]bool)}
}

// HandleWS handles GET /api/v1/ws, upgrading to a websocket and holding
// the connection until the client goes away.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logWarn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	client := &wsClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	logDebug("Dashboard client connected", "remote_addr", r.RemoteAddr, "clients", count)

	// Clients only receive; the read loop exists to detect disconnects
	// and answer pings.
	go func() {
		defer h.drop(client)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WSHub) drop(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		logDebug("Dashboard client disconnected", "clients", len(h.clients))
	}
	h.mu.Unlock()
	client.conn.Close()
}

// Broadcast sends an event to every connected client. Slow or dead
// clients are dropped rather than blocking the sender.
func (h *WSHub) Broadcast(event WSEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logError("Failed to marshal websocket event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.write(payload); err != nil {
			logWarn("Dropping unresponsive dashboard client", "error", err)
			h.drop(client)
		}
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *WSHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyReportStatus implements reports.Notifier: every report
// lifecycle transition becomes a report_status event.
func (h *WSHub) NotifyReportStatus(r *storage.Report) {
	h.Broadcast(WSEvent{
		Type: "report_status",
		Data: map[string]interface{}{
			"report_id": r.ID,
			"name":      r.Name,
			"type":      r.Type,
			"format":    r.Format,
			"status":    r.Status,
			"error":     r.ErrorMessage,
		},
	})
}
