package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventSubscriptionProvisioned = "subscription_provisioned"
	EventSubscriptionCanceled    = "subscription_canceled"
	EventPaidUntilUpdated        = "paid_until_updated"
	EventSyncCompleted           = "sync_completed"
	EventSyncItemFailed          = "sync_item_failed"
)

// SubscriptionEventPayload is the minimal entry snapshot for consumers.
type SubscriptionEventPayload struct {
	EntryID        int64  `json:"entry_id"`
	FeedID         int64  `json:"feed_id"`
	SubscriptionID string `json:"subscription_id"`
	PaymentStatus  string `json:"payment_status,omitempty"`
	PaidUntilDate  string `json:"paid_until_date,omitempty"`
}

// SyncCompletedPayload summarizes one reconciliation tick.
type SyncCompletedPayload struct {
	JobID        string  `json:"job_id"`
	RunID        string  `json:"run_id"`
	SuccessCount int     `json:"success_count"`
	FailedCount  int     `json:"failed_count"`
	SkippedCount int     `json:"skipped_count"`
	Seconds      float64 `json:"seconds"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are
// swallowed; event delivery is best effort.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		_ = handler(event)
	}
}

// PublishJSON marshals the payload and publishes it under eventType.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	b.Publish(&Event{Type: eventType, Payload: data})
	return nil
}
