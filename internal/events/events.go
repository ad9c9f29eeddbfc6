// Package events publishes appointment lifecycle changes to downstream consumers.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/salonbot/internal/models"
)

type Type string

const (
	Created     Type = "appointment.created"
	Rescheduled Type = "appointment.rescheduled"
	Commented   Type = "appointment.commented"
	Cancelled   Type = "appointment.cancelled"
)

// Event carries the appointment as it looks after the change.
type Event struct {
	ID          string             `json:"event_id"`
	Type        Type               `json:"event_type"`
	Actor       string             `json:"actor"`
	At          time.Time          `json:"at"`
	Appointment models.Appointment `json:"appointment"`
}

func New(t Type, actor string, a models.Appointment, at time.Time) Event {
	return Event{
		ID:          uuid.NewString(),
		Type:        t,
		Actor:       actor,
		At:          at.UTC(),
		Appointment: a.Clone(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Err    error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Bounded gives every Publish at most Timeout.
type Bounded struct {
	Publisher
	Timeout time.Duration
}

func WithTimeout(p Publisher, d time.Duration) Publisher {
	if d <= 0 {
		return p
	}
	return Bounded{Publisher: p, Timeout: d}
}

func (b Bounded) Publish(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()
	return b.Publisher.Publish(ctx, e)
}
