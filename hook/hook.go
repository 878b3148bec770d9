// Package hook defines the attempt lifecycle hook system. Hooks are notified
// as submission attempts move through the pipeline — started, skipped by the
// balance gate, resolved with an outcome — and at shutdown. Each lifecycle
// event is a separate interface so hooks opt in only to the events they care
// about. A hook failure never affects the attempt it observed.
package hook

import (
	"context"

	"github.com/donsmila-fx/piclaim/ledger"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// Attempt describes one submission attempt flowing through the pipeline.
type Attempt struct {
	// ID is a unique, time-sortable attempt identifier.
	ID string
	// Mode is "burst" or "poll".
	Mode string
	// Batch numbers the firing tick the attempt belongs to (burst mode).
	Batch int
	// Sequence is the allocated sequence lease, 0 before allocation.
	Sequence int64
	// GrantID is the claimed balance id, "" for a plain payment.
	GrantID string
	// Destination and Amount describe the payment leg.
	Destination string
	Amount      string
	// FeeStroops is the total transaction fee.
	FeeStroops int64
}

// AttemptStarted is called when an attempt pipeline begins.
type AttemptStarted interface {
	OnAttemptStarted(ctx context.Context, a Attempt) error
}

// AttemptSkipped is called when the balance gate stops an attempt before
// submission.
type AttemptSkipped interface {
	OnAttemptSkipped(ctx context.Context, a Attempt, verdict string) error
}

// OutcomeObserved is called with the classified result of a submission.
type OutcomeObserved interface {
	OnOutcome(ctx context.Context, a Attempt, out ledger.Outcome) error
}

// Shutdown is called once when the scheduler stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
