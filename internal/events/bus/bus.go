// Package bus carries agent change notifications between agentperms
// instances. Every implementation delivers events to a subscription in the
// order they were published.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClosed    = errors.New("event bus is closed")
	ErrNoPayload = errors.New("event has no payload")
)

// Event is one notification. Payload holds the encoded body, so handlers see
// the same bytes whether the event crossed NATS or stayed in process.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Source  string          `json:"source"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent encodes payload into a fresh event. A nil payload is left empty.
func NewEvent(eventType, source string, payload any) (*Event, error) {
	event := &Event{
		ID:     uuid.NewString(),
		Type:   eventType,
		Source: source,
		At:     time.Now().UTC(),
	}
	if payload == nil {
		return event, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	event.Payload = raw
	return event, nil
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v any) error {
	if e == nil || len(e.Payload) == 0 {
		return ErrNoPayload
	}
	return json.Unmarshal(e.Payload, v)
}

// Handler processes one event. Returned errors are logged by the bus.
type Handler func(ctx context.Context, event *Event) error

type Subscription interface {
	Unsubscribe() error
}

// EventBus publishes events to dot-separated subjects. Subscriptions accept
// NATS wildcards: * for one token, > for the rest.
type EventBus interface {
	Publish(ctx context.Context, subject string, event *Event) error
	Subscribe(subject string, handler Handler) (Subscription, error)
	Close()
	IsConnected() bool
}
