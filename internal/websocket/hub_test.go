package websocket

import (
	"encoding/json"
	"log/slog"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, familyID int64) *Client {
	return &Client{
		hub:      hub,
		conn:     nil,
		familyID: familyID,
		send:     make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 2)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}
	if got := hub.FamilyClientCount(1); got != 1 {
		t.Fatalf("expected 1 client in family 1, got %d", got)
	}

	hub.Unregister(c1)

	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}
	if got := hub.FamilyClientCount(1); got != 0 {
		t.Fatalf("expected family 1 to be empty, got %d", got)
	}

	hub.Unregister(c2)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastIsFamilyScoped(t *testing.T) {
	hub := NewHub(slog.Default())

	smith1 := mockClient(hub, 1)
	smith2 := mockClient(hub, 1)
	jones := mockClient(hub, 2)
	for _, c := range []*Client{smith1, smith2, jones} {
		hub.Register(c)
	}

	hub.Broadcast(NewMessage(1, "person", "created", 42))

	for _, c := range []*Client{smith1, smith2} {
		select {
		case data := <-c.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "person_created" {
				t.Errorf("expected type person_created, got %s", got.Type)
			}
			if got.Entity != "person" || got.Action != "created" {
				t.Errorf("entity/action = %s/%s", got.Entity, got.Action)
			}
			if got.ID != 42 || got.FamilyID != 1 {
				t.Errorf("id/family = %d/%d, want 42/1", got.ID, got.FamilyID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case data := <-jones.send:
		t.Fatalf("other family received %s", data)
	default:
	}
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewMessage(1, "story", "deleted", 1))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage(1, "test", "fill", int64(i)))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage(1, "test", "dropped", 999))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			if count != sendBufferSize {
				t.Fatalf("expected %d buffered messages, got %d", sendBufferSize, count)
			}
			return
		}
	}
}
