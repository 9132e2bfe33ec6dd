package websocket

import (
	"errors"
	"testing"
	"time"
)

func TestConnectionIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newConnID()
		if seen[id] {
			t.Fatalf("duplicate connection id %s", id)
		}
		seen[id] = true
	}
}

func TestSendAfterClose(t *testing.T) {
	conn := NewConnection(nil, "alice", 4, time.Second)
	if err := conn.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := conn.Send("new_message", map[string]string{"content": "late"}); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	conn := NewConnection(nil, "alice", 4, time.Second)
	if err := conn.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestConnectionIdentity(t *testing.T) {
	conn := NewConnection(nil, "alice", 4, time.Second)
	defer conn.Close()

	if conn.UserID() != "alice" {
		t.Errorf("expected owner alice, got %s", conn.UserID())
	}
	if conn.ID() == "" {
		t.Error("expected a non-empty connection id")
	}
	select {
	case <-conn.Context().Done():
		t.Error("context cancelled before close")
	default:
	}
}
