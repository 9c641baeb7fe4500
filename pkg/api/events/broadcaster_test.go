package events

import (
	"testing"
	"time"
)

func TestBroadcaster_SubscribeBroadcastUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.Broadcast(Event{
		Type: TypeRoutingDecision,
		Payload: map[string]any{
			"tier": "simple",
		},
	})

	select {
	case event := <-ch:
		if event.Type != TypeRoutingDecision {
			t.Fatalf("type = %q, want %s", event.Type, TypeRoutingDecision)
		}
		if event.Timestamp.IsZero() {
			t.Fatal("timestamp should be set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for broadcast event")
	}

	b.Unsubscribe(ch)
	if b.SubscriberCount() != 0 {
		t.Fatalf("subscribers = %d, want 0", b.SubscriberCount())
	}
	// Second unsubscribe is a no-op.
	b.Unsubscribe(ch)
}

func TestBroadcaster_RoutingAndLimitHelpers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(2)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	b.BroadcastRoutingDecision(RoutingDecision{
		TenantID: "t1", AgentID: "a1", Tier: "complex", Model: "gpt-4o", Provider: "openai",
		Reason: "scored", Confidence: 0.8, At: at,
	})
	b.BroadcastLimitExceeded("t1", "a1", "rule-1", "Usage limit exceeded")

	first := <-ch
	if first.Type != TypeRoutingDecision || !first.Timestamp.Equal(at) {
		t.Fatalf("unexpected routing event: %+v", first)
	}
	payload := first.Payload.(map[string]any)
	if payload["tier"] != "complex" || payload["provider"] != "openai" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	select {
	case second := <-ch:
		if second.Type != TypeLimitExceeded {
			t.Fatalf("type = %q, want %s", second.Type, TypeLimitExceeded)
		}
	case <-time.After(time.Second):
		t.Fatal("expected limit event")
	}
}

func TestBroadcaster_DropsOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	b.Broadcast(Event{Type: "one"})
	b.Broadcast(Event{Type: "two"})

	if got := (<-ch).Type; got != "one" {
		t.Fatalf("type = %q, want one", got)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(0)
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	if b.SubscriberCount() != 0 {
		t.Fatal("subscribers should be cleared")
	}
}

func TestBroadcaster_ConcurrentUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			b.BroadcastRoutingDecision(RoutingDecision{TenantID: "t1", Tier: "simple"})
		}
	}()

	for i := 0; i < 100; i++ {
		ch := b.Subscribe(1)
		b.Unsubscribe(ch)
	}
	<-done

	if n := b.SubscriberCount(); n != 0 {
		t.Fatalf("subscribers = %d, want 0", n)
	}
}
