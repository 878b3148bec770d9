package ledger

import "time"

// OutcomeKind tags a submission outcome.
type OutcomeKind int

const (
	// OutcomeAccepted — the network accepted the transaction.
	OutcomeAccepted OutcomeKind = iota
	// OutcomeSequenceConflict — ordering mismatch; the allocator must
	// reconcile before further attempts can land.
	OutcomeSequenceConflict
	// OutcomeRateLimited — the endpoint throttled the request; back off,
	// do not reconcile.
	OutcomeRateLimited
	// OutcomeRejected — the ledger rejected the transaction; not retried.
	OutcomeRejected
	// OutcomeTransportError — the request never got a ledger verdict;
	// eligible for bounded retry in polling mode.
	OutcomeTransportError
)

// String returns the outcome kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeSequenceConflict:
		return "sequence_conflict"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of exactly one submission attempt.
type Outcome struct {
	Kind OutcomeKind

	// Hash is set for OutcomeAccepted.
	Hash string

	// Reason is set for OutcomeRejected (the ledger result code).
	Reason string

	// RetryAfter is set for OutcomeRateLimited when the endpoint supplied
	// one; zero means back off at the caller's discretion.
	RetryAfter time.Duration

	// Err is set for OutcomeTransportError.
	Err error
}

// Accepted builds an accepted outcome carrying the transaction hash.
func Accepted(hash string) Outcome {
	return Outcome{Kind: OutcomeAccepted, Hash: hash}
}

// SequenceConflict builds a sequence-conflict outcome.
func SequenceConflict() Outcome {
	return Outcome{Kind: OutcomeSequenceConflict}
}

// RateLimited builds a rate-limited outcome carrying the endpoint's
// Retry-After hint, if any.
func RateLimited(retryAfter time.Duration) Outcome {
	return Outcome{Kind: OutcomeRateLimited, RetryAfter: retryAfter}
}

// Rejected builds a rejected outcome with the ledger's result code.
func Rejected(reason string) Outcome {
	return Outcome{Kind: OutcomeRejected, Reason: reason}
}

// TransportError builds a transport-error outcome.
func TransportError(err error) Outcome {
	return Outcome{Kind: OutcomeTransportError, Err: err}
}
