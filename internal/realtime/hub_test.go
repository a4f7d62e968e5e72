package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/notify"
	"github.com/spinhouse/coinledger/internal/velocity"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventTransfer, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventSecurityAlert},
	}}

	alert := &Event{Type: EventSecurityAlert}
	transfer := &Event{Type: EventTransfer}

	if !h.shouldSend(client, alert) {
		t.Error("Should receive security_alert events")
	}
	if h.shouldSend(client, transfer) {
		t.Error("Should NOT receive transfer events")
	}
}

func TestShouldSend_UserFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"alice"},
	}}

	asSender := &Event{
		Type: EventTransfer,
		Data: map[string]interface{}{"senderId": "alice", "recipientId": "bob"},
	}
	asRecipient := &Event{
		Type: EventTransfer,
		Data: map[string]interface{}{"senderId": "carol", "recipientId": "alice"},
	}
	asTarget := &Event{
		Type: EventNotification,
		Data: map[string]interface{}{"userId": "alice"},
	}
	unrelated := &Event{
		Type: EventTransfer,
		Data: map[string]interface{}{"senderId": "carol", "recipientId": "bob"},
	}

	if !h.shouldSend(client, asSender) {
		t.Error("Should match on senderId")
	}
	if !h.shouldSend(client, asRecipient) {
		t.Error("Should match on recipientId")
	}
	if !h.shouldSend(client, asTarget) {
		t.Error("Should match on userId")
	}
	if h.shouldSend(client, unrelated) {
		t.Error("Should NOT match unrelated accounts")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventTransfer}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonMapData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		UserIDs: []string{"alice"},
	}}

	event := &Event{
		Type: EventNotification,
		Data: "string data not a map",
	}

	// User filter skips non-map data, so the event passes through.
	if !h.shouldSend(client, event) {
		t.Error("Non-map data should pass through when user filter can't extract ids")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastTransferToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.BroadcastTransfer(&audit.Entry{
		TransactionID: "TX-1700000000000-DEADBEEF",
		SenderID:      "alice",
		RecipientID:   "bob",
		Amount:        decimal.RequireFromString("50.00"),
	})

	select {
	case msg := <-client.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if ev.Type != EventTransfer {
			t.Errorf("Expected transfer event, got %s", ev.Type)
		}
		data := ev.Data.(map[string]interface{})
		if data["amount"] != "50.00" {
			t.Errorf("Expected amount 50.00, got %v", data["amount"])
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_PublishSecurityAlert(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventSecurityAlert}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.PublishSecurityAlert(&velocity.Alert{
		ID:               "alert-1",
		UserID:           "alice",
		TransactionCount: 6,
		Severity:         "high",
	})

	select {
	case msg := <-client.send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		if ev.Type != EventSecurityAlert {
			t.Errorf("Expected security_alert event, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for alert")
	}
}

func TestHub_PublishNotificationFiltered(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client watches bob only.
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{UserIDs: []string{"bob"}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.PublishNotification(&notify.Notification{ID: "n-1", UserID: "alice", Title: "Transfer rejected"})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive alice's notification")
	default:
	}

	h.PublishNotification(&notify.Notification{ID: "n-2", UserID: "bob", Title: "Transfer rejected"})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive bob's notification")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
