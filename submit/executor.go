// Package submit sends assembled transaction intents to the network and
// classifies what came back. A sequence conflict is reported to the
// allocator for reconciliation; a rate limit backs off — honoring the
// endpoint's Retry-After when present — without reconciling; a ledger
// rejection is terminal for the attempt; a transport failure is retried a
// bounded number of times in polling mode only.
package submit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/donsmila-fx/piclaim/backoff"
	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/txn"
)

// Submitter is the slice of ledger.Client the executor needs.
type Submitter interface {
	SubmitTransaction(ctx context.Context, envelope []byte) (string, error)
}

// Reconciler re-baselines the sequence counter after a conflict.
// sequence.Allocator satisfies it.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Clock supplies the reference instant for staleness checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DefaultRetryBudget is the total number of transport attempts per logical
// submission in polling mode.
const DefaultRetryBudget = 5

// Executor submits intents. Safe for concurrent use.
type Executor struct {
	client      Submitter
	reconciler  Reconciler
	limiter     *rate.Limiter
	retryDelay  backoff.Strategy
	rateDelay   backoff.Strategy
	retryBudget int
	clock       Clock
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRateLimit caps outbound submissions with a token bucket. Zero rps
// disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(e *Executor) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithRetryBudget sets the total transport attempts for SubmitWithRetry.
func WithRetryBudget(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.retryBudget = n
		}
	}
}

// WithRetryDelay sets the delay strategy between transport retries.
func WithRetryDelay(s backoff.Strategy) Option {
	return func(e *Executor) { e.retryDelay = s }
}

// WithRateLimitDelay sets the delay strategy applied after a rate-limited
// response that carried no Retry-After hint.
func WithRateLimitDelay(s backoff.Strategy) Option {
	return func(e *Executor) { e.rateDelay = s }
}

// WithClock sets the clock used for intent staleness checks.
func WithClock(c Clock) Option {
	return func(e *Executor) { e.clock = c }
}

// New creates an Executor. reconciler may be nil when no allocator feedback
// is wanted (tests).
func New(client Submitter, reconciler Reconciler, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		client:      client,
		reconciler:  reconciler,
		retryDelay:  backoff.NewConstant(500 * time.Millisecond),
		rateDelay:   backoff.NewExponentialWithJitter(500*time.Millisecond, 8*time.Second),
		retryBudget: DefaultRetryBudget,
		clock:       systemClock{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit performs exactly one submission attempt and classifies the result.
// A stale intent is refused locally: its sequence lease has almost certainly
// been superseded, so resubmitting it verbatim can only fail.
func (e *Executor) Submit(ctx context.Context, intent *txn.Intent) ledger.Outcome {
	if e.clock.Now().After(intent.ExpiresAt()) {
		return ledger.Rejected("intent_expired")
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return ledger.TransportError(err)
		}
	}

	hash, err := e.client.SubmitTransaction(ctx, intent.Envelope())
	return e.classify(ctx, intent, hash, err)
}

// SubmitWithRetry wraps Submit with the polling-mode retry policy: transport
// errors are retried with a fixed delay, rate limits with the endpoint's
// Retry-After (or a jittered backoff when no hint was given), both up to the
// budget. Ledger verdicts return immediately. Exhausting the budget is a
// logged, non-fatal event; the last outcome is returned so the caller can
// proceed to its next tick.
func (e *Executor) SubmitWithRetry(ctx context.Context, intent *txn.Intent) ledger.Outcome {
	var out ledger.Outcome
	for attempt := 1; attempt <= e.retryBudget; attempt++ {
		out = e.Submit(ctx, intent)
		if !retryable(out) {
			return out
		}
		if attempt == e.retryBudget {
			break
		}

		delay := e.retryDelay.Delay(attempt)
		if out.Kind == ledger.OutcomeRateLimited {
			delay = out.RetryAfter
			if delay <= 0 {
				delay = e.rateDelay.Delay(attempt)
			}
		}
		e.logger.Debug("retrying submission",
			slog.String("outcome", out.Kind.String()),
			slog.Int("attempt", attempt),
			slog.Int("budget", e.retryBudget),
			slog.Duration("delay", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ledger.TransportError(ctx.Err())
		}
	}

	e.logger.Warn("submission retries exhausted",
		slog.String("outcome", out.Kind.String()),
		slog.Int("budget", e.retryBudget),
		slog.Int64("sequence", int64(intent.Sequence)),
	)
	return out
}

// retryable reports whether the polling flow may resubmit after the outcome:
// the request never reached a ledger verdict, or the endpoint asked us to
// come back later.
func retryable(out ledger.Outcome) bool {
	return out.Kind == ledger.OutcomeTransportError || out.Kind == ledger.OutcomeRateLimited
}

func (e *Executor) classify(ctx context.Context, intent *txn.Intent, hash string, err error) ledger.Outcome {
	if err == nil {
		return ledger.Accepted(hash)
	}

	if errors.Is(err, ledger.ErrBadSequence) {
		e.logger.Info("sequence conflict",
			slog.Int64("sequence", int64(intent.Sequence)),
		)
		if e.reconciler != nil {
			if recErr := e.reconciler.Reconcile(ctx); recErr != nil {
				e.logger.Error("reconcile failed",
					slog.String("error", recErr.Error()),
				)
			}
		}
		return ledger.SequenceConflict()
	}

	var rl *ledger.RateLimitError
	if errors.As(err, &rl) {
		return ledger.RateLimited(rl.RetryAfter)
	}

	var rej *ledger.RejectedError
	if errors.As(err, &rej) {
		return ledger.Rejected(rej.Code)
	}

	return ledger.TransportError(err)
}
