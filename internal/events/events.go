// Package events fans ledger and workflow changes out to the broker and to connected front-ends.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Routing keys
const (
	EntryAdded          = "ledger.entry.added"
	StockConsumed       = "ledger.stock.consumed"
	StockTransferred    = "ledger.stock.transferred"
	EntryDeleted        = "ledger.entry.deleted"
	SummaryRecalculated = "ledger.summary.recalculated"
	RequestCreated      = "request.created"
	RequestApproved     = "request.approved"
	RequestRejected     = "request.rejected"
	RequestDispatched   = "request.dispatched"
	ApprovalClaimed     = "approval.claimed"
)

const eventVersion = "1.0.0"

// Event is the envelope shared by every sink
type Event struct {
	EventID      string                 `json:"event_id"`
	EventType    string                 `json:"event_type"`
	EventVersion string                 `json:"event_version"`
	Timestamp    string                 `json:"timestamp"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Payload      map[string]interface{} `json:"payload"`
}

// New stamps an event with a fresh id and the current time
func New(eventType, actorID string, payload map[string]interface{}) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		EventID:      id.String(),
		EventType:    eventType,
		EventVersion: eventVersion,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ActorID:      actorID,
		Payload:      payload,
	}
}

// Notifier delivers an event after the change it describes has committed
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Noop drops every event
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }

// Multi forwards to every sink and logs failures instead of returning them.
// Delivery is best effort: a broker outage must not fail a committed ledger write.
type Multi struct {
	sinks []Notifier
	log   *logrus.Logger
}

func NewMulti(log *logrus.Logger, sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks, log: log}
}

func (m *Multi) Notify(ctx context.Context, event Event) error {
	for _, s := range m.sinks {
		if err := s.Notify(ctx, event); err != nil {
			m.log.WithFields(logrus.Fields{
				"event_id":   event.EventID,
				"event_type": event.EventType,
			}).WithError(err).Warn("event delivery failed")
		}
	}
	return nil
}

// Recorder keeps events in memory; tests use it to assert what was published
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the recorded event types in order
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
