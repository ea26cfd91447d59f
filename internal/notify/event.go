// Package notify defines the events the workflow emits and the dispatcher
// that turns them into emails.  Delivery is decoupled from the state
// change: a failed send is reported, never rolled back.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names what happened to a request.
type Kind string

const (
	KindSubmitted     Kind = "request.submitted"
	KindGranted       Kind = "request.granted"
	KindDeclined      Kind = "request.declined"
	KindStatusChanged Kind = "request.status_changed"
	KindDeleted       Kind = "request.deleted"
)

// Event is published after every successful transition (and on
// submission).  It carries no credentials: consumers reload the request to
// read the current secure hash.
type Event struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	RequestID      uint64    `json:"request_id"`
	DocumentID     uint64    `json:"document_id"`
	RequesterName  string    `json:"requester_name"`
	RequesterEmail string    `json:"requester_email"`
	OldStatus      string    `json:"old_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	Trigger        string    `json:"trigger,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind Kind) Event {
	return Event{ID: uuid.NewString(), Kind: kind, OccurredAt: time.Now().UTC()}
}

// Notifier delivers events.  Implementations: Dispatcher (synchronous mail)
// and queue.Publisher (RabbitMQ).
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(context.Context, Event) error { return nil }
