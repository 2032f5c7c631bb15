package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubjectPrefix roots every record lifecycle subject.
const SubjectPrefix = "shrekd.record"

// Record lifecycle event types.
const (
	EventCreated   = "created"
	EventConsumed  = "consumed"
	EventExhausted = "exhausted"
	EventReclaimed = "reclaimed"
)

// Event describes a change in a record's lifecycle.
type Event struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Slug              string     `json:"slug"`
	Kind              string     `json:"kind,omitempty"`
	RemainingAccesses *uint32    `json:"remaining_accesses,omitempty"`
	Expiry            *time.Time `json:"expiry,omitempty"`
	At                time.Time  `json:"at"`
}

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return SubjectPrefix + "." + eventType
}

// Publisher emits record lifecycle events. Implementations must not block
// the request path for long; failures are reported, never retried.
type Publisher interface {
	PublishEvent(evt Event) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) PublishEvent(Event) error { return nil }

type rawPublisher interface {
	Publish(subject, msgID string, data []byte) error
}

// EventPublisher encodes events as JSON and publishes them on the bus.
type EventPublisher struct {
	bus rawPublisher
	now func() time.Time
}

// NewEventPublisher wraps a connected bus.
func NewEventPublisher(b *NatsBus) *EventPublisher {
	return &EventPublisher{bus: b, now: time.Now}
}

func (p *EventPublisher) PublishEvent(evt Event) error {
	if p == nil || p.bus == nil {
		return errNilBus
	}
	if evt.Type == "" {
		return fmt.Errorf("event type required")
	}
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.At.IsZero() {
		evt.At = p.now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.bus.Publish(Subject(evt.Type), evt.ID, data)
}
