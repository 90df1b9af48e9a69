package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "notes.changed", Data: map[string]string{"reason": "post"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: notes.changed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"reason":"post"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte, wait time.Duration) []string {
	var out []string
	deadline := time.After(wait)
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		case <-deadline:
			return out
		}
	}
}

func TestPublishChange_ImmediateForService(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChange("post", []string{"Title"})
	b.PublishChange("delete", []string{"Title"})

	msgs := drain(ch, 100*time.Millisecond)
	if len(msgs) != 2 {
		t.Fatalf("events = %d, want 2: %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], "event: notes.changed") {
		t.Errorf("missing event type in %q", msgs[0])
	}
	if !strings.Contains(msgs[0], `{"reason":"post","dirs":["Title"]}`) {
		t.Errorf("unexpected payload %q", msgs[0])
	}
	if !strings.Contains(msgs[1], `"reason":"delete"`) {
		t.Errorf("unexpected payload %q", msgs[1])
	}
}

func TestPublishChange_CoalescesExternal(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishChange("external", []string{"a"})
	b.PublishChange("external", []string{"b", "a"})
	b.PublishChange("external", nil)

	if msgs := drain(ch, 30*time.Millisecond); len(msgs) != 0 {
		t.Fatalf("external change sent before quiet period: %q", msgs)
	}

	msgs := drain(ch, 400*time.Millisecond)
	if len(msgs) != 1 {
		t.Fatalf("events = %d, want 1 (coalesced): %q", len(msgs), msgs)
	}
	if !strings.Contains(msgs[0], `{"reason":"external","dirs":["a","b"]}`) {
		t.Errorf("unexpected payload %q", msgs[0])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishChange("post", []string{"x"})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: notes.changed") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "notes.changed", Data: map[string]string{"reason": "post"}})
	b.PublishChange("external", []string{"x"})
}
