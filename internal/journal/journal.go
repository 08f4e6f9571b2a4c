package journal

import (
	"context"
	"time"
)

// Outcome classifies one delivery attempt.
type Outcome string

const (
	// OutcomeDelivered means an endpoint confirmed acceptance.
	OutcomeDelivered Outcome = "delivered"
	// OutcomeFailed means the attempt concluded with an error.
	OutcomeFailed Outcome = "failed"
	// OutcomeIssued means a one-way send was handed to the network;
	// acceptance is unobservable by design.
	OutcomeIssued Outcome = "issued"
)

// Entry is one delivery-attempt outcome exported to an audit sink.
type Entry struct {
	OccurredAt time.Time `json:"occurred_at"`
	EventID    string    `json:"event_id"`
	EventName  string    `json:"event_name"`
	Endpoint   string    `json:"endpoint"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for delivery journal entries (audit/analytics
// systems). Implementations must be safe for concurrent use. Journal
// failures never affect delivery; callers log and move on.
type Sink interface {
	Send(ctx context.Context, e Entry) error
}
