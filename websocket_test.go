package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rakuda/server/logger"
	"rakuda/server/storage"
)

func dialHub(t *testing.T, hub *WSHub) *websocket.Conn {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Registration happens in the handler goroutine; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.ClientCount() == 0 {
		t.Fatal("client never registered")
	}
	return conn
}

func TestWSHubBroadcastsReportStatus(t *testing.T) {
	serverLogger = logger.New(logger.ERROR, "", 50)
	serverLogger.SetConsoleOutput(false)

	hub := NewWSHub()
	conn := dialHub(t, hub)

	completed := time.Now().UTC()
	hub.NotifyReportStatus(&storage.Report{
		ID:          "r-1",
		Name:        "Daily sales",
		Type:        "sales_summary",
		Format:      "csv",
		Status:      storage.ReportStatusCompleted,
		CompletedAt: &completed,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var event WSEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "report_status" {
		t.Errorf("event type = %q", event.Type)
	}
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("event data = %T", event.Data)
	}
	if data["report_id"] != "r-1" || data["status"] != storage.ReportStatusCompleted {
		t.Errorf("event data = %v", data)
	}
	if event.Timestamp.IsZero() {
		t.Error("event missing timestamp")
	}
}

func TestWSHubConcurrentNotifications(t *testing.T) {
	serverLogger = logger.New(logger.ERROR, "", 50)
	serverLogger.SetConsoleOutput(false)

	hub := NewWSHub()
	conn := dialHub(t, hub)

	// Handlers and the scheduler notify independently, so status
	// events can hit one connection from many goroutines at once.
	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.NotifyReportStatus(&storage.Report{
				ID:     fmt.Sprintf("r-%d", n),
				Status: storage.ReportStatusCompleted,
			})
		}(i)
	}
	wg.Wait()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for i := 0; i < writers; i++ {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		var event WSEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			t.Fatalf("decode event %d: %v", i, err)
		}
		if event.Type != "report_status" {
			t.Errorf("event %d type = %q", i, event.Type)
		}
	}

	if got := hub.ClientCount(); got != 1 {
		t.Errorf("client count = %d after concurrent broadcasts", got)
	}
}

func TestWSHubDropsClosedClients(t *testing.T) {
	serverLogger = logger.New(logger.ERROR, "", 50)
	serverLogger.SetConsoleOutput(false)

	hub := NewWSHub()
	conn := dialHub(t, hub)

	conn.Close()

	// The read loop notices the close and unregisters the client.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("client count = %d after close", got)
	}

	// Broadcasting with no clients is a no-op.
	hub.Broadcast(WSEvent{Type: "report_status"})
}
