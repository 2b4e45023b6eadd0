package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID string) *Client {
	return &Client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, "u1")
	c2 := mockClient(hub, "u1")

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount("u1"); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount("u1"); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	if got := hub.ClientCount("u1"); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "u1")
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount("u1"); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestSendReachesOnlyOwner(t *testing.T) {
	hub := NewHub(slog.Default())

	mine := mockClient(hub, "u1")
	other := mockClient(hub, "u2")
	hub.Register(mine)
	hub.Register(other)

	hub.Send("u1", Message{Type: EventStreakUpdated, Data: map[string]any{"current_streak": 7}})

	select {
	case raw := <-mine.send:
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.Type != EventStreakUpdated {
			t.Errorf("type = %q, want %q", msg.Type, EventStreakUpdated)
		}
	case <-time.After(time.Second):
		t.Fatal("owner never received the event")
	}

	select {
	case <-other.send:
		t.Fatal("event leaked to another user")
	default:
	}
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, "u1")
	hub.Register(c)

	// Fill the buffer and send one more; the overflow must be dropped
	// without blocking.
	for i := 0; i < sendBufferSize+5; i++ {
		hub.Send("u1", Message{Type: EventDonationMade})
	}
	if got := len(c.send); got != sendBufferSize {
		t.Errorf("buffered = %d, want %d", got, sendBufferSize)
	}
}
