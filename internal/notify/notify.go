// Package notify delivers post-commit change notifications to live clients
// and downstream systems.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is one change notification
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent creates an event. key groups events of one aggregate, e.g. "product-12".
func NewEvent(name, key string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Name:      name,
		Key:       key,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Sink receives notifications after the change that caused them is committed
type Sink interface {
	Publish(ctx context.Context, events ...Event) error
}

// Nop discards every event
type Nop struct{}

// Publish implements Sink
func (Nop) Publish(context.Context, ...Event) error { return nil }

// Multi fans events out to several sinks. Every sink is attempted.
type Multi []Sink

// Publish implements Sink
func (m Multi) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
