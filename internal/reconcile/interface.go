package reconcile

import (
	"context"

	"codeberg.org/mutker/tankctl/internal/event"
	"codeberg.org/mutker/tankctl/internal/tank"
)

// Observer is one connected client. Send must not block: delivery is
// at-most-once and an error detaches the observer.
type Observer interface {
	ID() string
	Send(e event.Envelope) error
}

// ReadingStore is the bounded history the reconciler writes through.
type ReadingStore interface {
	Append(ctx context.Context, level, percentage float64) tank.Reading
	Served(ctx context.Context) []tank.Reading
	Clear(ctx context.Context)
	Durable() bool
}

// Status is a point-in-time summary for diagnostics. Stale means no real
// reading within the staleness window; Simulating additionally requires the
// motor to be on.
type Status struct {
	MotorOn    bool `json:"motorOn"`
	Durable    bool `json:"durable"`
	Observers  int  `json:"observers"`
	Stale      bool `json:"stale"`
	Simulating bool `json:"simulating"`
}
