package events

import (
	"sync"
	"time"
)

// Event is the canonical event payload broadcast to websocket subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast broadcasts a generic event to all subscribers.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop on overflow to keep broadcasters non-blocking.
		}
	}
}

// Event types.
const (
	TypeRoutingDecision = "routing.decision"
	TypeLimitExceeded   = "limit.exceeded"
)

// RoutingDecision describes one routed request.
type RoutingDecision struct {
	TenantID   string
	AgentID    string
	SessionKey string
	Tier       string
	Model      string
	Provider   string
	Reason     string
	Confidence float64
	Stream     bool
	At         time.Time
}

// BroadcastRoutingDecision emits a routing decision event.
func (b *Broadcaster) BroadcastRoutingDecision(d RoutingDecision) {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	b.Broadcast(Event{
		Type:      TypeRoutingDecision,
		Timestamp: d.At.UTC(),
		Payload: map[string]any{
			"tenant_id":   d.TenantID,
			"agent_id":    d.AgentID,
			"session_key": d.SessionKey,
			"tier":        d.Tier,
			"model":       d.Model,
			"provider":    d.Provider,
			"reason":      d.Reason,
			"confidence":  d.Confidence,
			"stream":      d.Stream,
		},
	})
}

// BroadcastLimitExceeded emits a usage limit violation event.
func (b *Broadcaster) BroadcastLimitExceeded(tenantID, agentID, ruleID, message string) {
	b.Broadcast(Event{
		Type: TypeLimitExceeded,
		Payload: map[string]any{
			"tenant_id": tenantID,
			"agent_id":  agentID,
			"rule_id":   ruleID,
			"message":   message,
		},
	})
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
