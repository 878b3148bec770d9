// Package scheduler drives submission attempts in one of two modes.
//
// Burst mode waits until a precise instant (target minus lead time), then
// fires fixed-size batches of concurrent attempt pipelines on a fixed
// interval until cancelled. A successful claim does not stop the loop:
// additional balances may unlock later, so only the caller's cancellation
// is terminal.
//
// Polling mode runs one gated attempt per tick with bounded transport
// retries, rescheduling regardless of outcome.
//
// Send mode performs a single direct payment with no claim operation and
// returns once its outcome is known.
//
// Each attempt pipeline is gate → allocate → build → submit. Attempt
// failures are contained: they are logged and reported through hooks, never
// propagated to sibling attempts or the scheduling loop.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/donsmila-fx/piclaim/balance"
	"github.com/donsmila-fx/piclaim/hook"
	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/sequence"
	"github.com/donsmila-fx/piclaim/submit"
	"github.com/donsmila-fx/piclaim/txn"
)

// Clock supplies the scheduler's notion of now. clock.Clock satisfies it.
type Clock interface {
	Now() time.Time
}

// Mode labels which loop an attempt belongs to.
type Mode string

const (
	// ModeBurst fires concurrent batches at the target instant.
	ModeBurst Mode = "burst"
	// ModePoll re-checks eligibility on an interval.
	ModePoll Mode = "poll"
	// ModeSend performs one direct payment with no claim operation.
	ModeSend Mode = "send"
)

// State is the scheduler's lifecycle state.
type State int32

const (
	// StateIdle — created, not running.
	StateIdle State = iota
	// StateWaitingForTarget — burst mode, before target minus lead.
	StateWaitingForTarget
	// StateFiring — burst mode, launching batches.
	StateFiring
	// StatePolling — polling mode ticks.
	StatePolling
	// StateSending — send mode, one direct payment in flight.
	StateSending
	// StateStopped — terminal, reached only via cancellation or a
	// completed send.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForTarget:
		return "waiting_for_target"
	case StateFiring:
		return "firing"
	case StatePolling:
		return "polling"
	case StateSending:
		return "sending"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Target describes a scheduled burst.
type Target struct {
	// Instant is the expected unlock time.
	Instant time.Time
	// Lead is how far before Instant firing begins, compensating for
	// network and processing latency.
	Lead time.Duration
	// BatchInterval spaces consecutive batches.
	BatchInterval time.Duration
	// BatchSize is the number of concurrent attempts per batch.
	BatchSize int
}

// Payment describes the withdrawal every attempt tries to land.
type Payment struct {
	Source      string
	Destination string
	Amount      decimal.Decimal
}

// Default intervals.
const (
	DefaultCheckInterval = 25 * time.Millisecond
	DefaultPollInterval  = 5 * time.Second
)

// Scheduler coordinates attempt pipelines. Construct with New, then run
// exactly one of RunBurst, RunPoll, or RunSend. Burst and poll runs end
// only when the context is cancelled; a send run ends on its own.
type Scheduler struct {
	clock     Clock
	client    ledger.Client
	allocator *sequence.Allocator
	builder   *txn.Builder
	executor  *submit.Executor
	hooks     *hook.Registry
	payment   Payment
	logger    *slog.Logger

	checkInterval time.Duration
	pollInterval  time.Duration
	fallbackFee   int64

	state atomic.Int32
	wg    sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithHooks sets the lifecycle hook registry.
func WithHooks(r *hook.Registry) Option {
	return func(s *Scheduler) { s.hooks = r }
}

// WithCheckInterval sets the wait-loop granularity in burst mode.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.checkInterval = d }
}

// WithPollInterval sets the tick spacing in polling mode.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.pollInterval = d }
}

// WithFallbackFee sets the per-operation fee in stroops used when the
// network's fee endpoint is unavailable at tick time.
func WithFallbackFee(stroops int64) Option {
	return func(s *Scheduler) { s.fallbackFee = stroops }
}

// New creates a Scheduler.
func New(
	clk Clock,
	client ledger.Client,
	allocator *sequence.Allocator,
	builder *txn.Builder,
	executor *submit.Executor,
	payment Payment,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		clock:         clk,
		client:        client,
		allocator:     allocator,
		builder:       builder,
		executor:      executor,
		payment:       payment,
		logger:        logger,
		checkInterval: DefaultCheckInterval,
		pollInterval:  DefaultPollInterval,
		fallbackFee:   100_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hook.NewRegistry(logger)
	}
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// RunBurst waits until target.Instant minus target.Lead, then fires batches
// of target.BatchSize concurrent attempts every target.BatchInterval until
// ctx is cancelled. It returns nil on cancellation; cancellation is the
// loop's only exit.
func (s *Scheduler) RunBurst(ctx context.Context, target Target) error {
	defer s.stop(ctx)

	s.setState(StateWaitingForTarget)
	wakeAt := target.Instant.Add(-target.Lead)
	s.logger.Info("waiting for target",
		slog.Time("target", target.Instant),
		slog.Duration("lead", target.Lead),
		slog.Time("wake_at", wakeAt),
	)

	// The wait compares the corrected clock, not the system clock, on a
	// short granularity so cancellation and wake-up are both prompt.
	for s.clock.Now().Before(wakeAt) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.checkInterval):
		}
	}

	s.setState(StateFiring)
	s.logger.Info("firing started",
		slog.Time("now", s.clock.Now()),
		slog.Int("batch_size", target.BatchSize),
		slog.Duration("batch_interval", target.BatchInterval),
	)

	ticker := time.NewTicker(target.BatchInterval)
	defer ticker.Stop()

	batch := 0
	s.fireBatch(ctx, batch, target.BatchSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			batch++
			s.fireBatch(ctx, batch, target.BatchSize)
		}
	}
}

// RunPoll performs one gated attempt per tick, with the executor's bounded
// transport retries, until ctx is cancelled.
func (s *Scheduler) RunPoll(ctx context.Context) error {
	defer s.stop(ctx)

	s.setState(StatePolling)
	s.logger.Info("polling started", slog.Duration("interval", s.pollInterval))

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.pollTick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.pollTick(ctx)
		}
	}
}

// RunSend performs exactly one direct payment attempt: gate the spendable
// balance against amount plus fee, then build and submit a payment-only
// transaction with the executor's bounded retries. An ineligible balance is
// reported through hooks and is not an error; only a failed snapshot is.
func (s *Scheduler) RunSend(ctx context.Context) error {
	defer s.stop(ctx)

	s.setState(StateSending)
	s.logger.Info("sending payment",
		slog.String("destination", s.payment.Destination),
		slog.String("amount", s.payment.Amount.String()),
	)

	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		return err
	}
	s.sendAttempt(ctx, snap)
	return nil
}

func (s *Scheduler) stop(ctx context.Context) {
	// In-flight submissions are not revoked; we only stop acting on them.
	s.wg.Wait()
	s.setState(StateStopped)
	s.hooks.EmitShutdown(context.WithoutCancel(ctx))
	s.logger.Info("scheduler stopped")
}

// snapshot is the immutable per-tick view shared by a batch's attempts.
// One account load and one listing per tick bounds network load no matter
// the batch size.
type snapshot struct {
	account  *ledger.Account
	grants   []*ledger.ClaimableBalance
	feePerOp int64
}

func (s *Scheduler) takeSnapshot(ctx context.Context) (*snapshot, error) {
	acct, err := s.client.LoadAccount(ctx, s.payment.Source)
	if err != nil {
		return nil, err
	}
	grants, err := s.client.ListClaimableBalances(ctx, s.payment.Source)
	if err != nil {
		return nil, err
	}

	feePerOp, err := s.client.BaseFee(ctx)
	if err != nil {
		s.logger.Warn("fee endpoint unavailable, using fallback fee",
			slog.Int64("fallback", s.fallbackFee),
			slog.String("error", err.Error()),
		)
		feePerOp = s.fallbackFee
	}

	return &snapshot{account: acct, grants: grants, feePerOp: feePerOp}, nil
}

// fireBatch launches size concurrent attempt pipelines over one shared
// snapshot and waits for them. A snapshot failure skips the whole tick; the
// next tick supersedes it.
func (s *Scheduler) fireBatch(ctx context.Context, batch, size int) {
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		s.logger.Error("snapshot failed, skipping batch",
			slog.Int("batch", batch),
			slog.String("error", err.Error()),
		)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	var g errgroup.Group
	for i := 0; i < size; i++ {
		g.Go(func() error {
			s.attempt(ctx, ModeBurst, batch, snap, false)
			return nil
		})
	}
	_ = g.Wait() // attempts never return errors; failures are contained
}

func (s *Scheduler) pollTick(ctx context.Context) {
	snap, err := s.takeSnapshot(ctx)
	if err != nil {
		s.logger.Error("snapshot failed, skipping poll tick",
			slog.String("error", err.Error()),
		)
		return
	}
	s.attempt(ctx, ModePoll, 0, snap, true)
}

// attempt runs one full pipeline: gate, allocate, build, submit, report.
func (s *Scheduler) attempt(ctx context.Context, mode Mode, batch int, snap *snapshot, withRetry bool) {
	a := hook.Attempt{
		ID:          attemptID(),
		Mode:        string(mode),
		Batch:       batch,
		Destination: s.payment.Destination,
		Amount:      s.payment.Amount.String(),
	}
	s.hooks.EmitAttemptStarted(ctx, a)

	ref := s.clock.Now()
	feeEstimate := balance.FeeEstimate(snap.feePerOp, 2)
	verdict, grant := balance.Evaluate(snap.account, s.payment.Amount, feeEstimate, snap.grants, ref)
	if verdict != balance.Sufficient {
		s.hooks.EmitAttemptSkipped(ctx, a, verdict.String())
		return
	}

	lease := s.allocator.Allocate()
	a.Sequence = int64(lease)
	a.GrantID = grant.ID

	intent, err := s.builder.Build(snap.account, lease, snap.feePerOp, s.payment.Destination, s.payment.Amount, grant, ref)
	if err != nil {
		s.logger.Error("intent build failed",
			slog.String("attempt_id", a.ID),
			slog.Int64("sequence", a.Sequence),
			slog.String("error", err.Error()),
		)
		return
	}
	a.FeeStroops = intent.FeeStroops

	var out ledger.Outcome
	if withRetry {
		out = s.executor.SubmitWithRetry(ctx, intent)
	} else {
		out = s.executor.Submit(ctx, intent)
	}
	s.hooks.EmitOutcome(ctx, a, out)
}

// sendAttempt is the direct-payment pipeline: no claim operation, so the
// gate checks spendable balance only and the transaction carries a single
// payment at one operation's fee.
func (s *Scheduler) sendAttempt(ctx context.Context, snap *snapshot) {
	a := hook.Attempt{
		ID:          attemptID(),
		Mode:        string(ModeSend),
		Destination: s.payment.Destination,
		Amount:      s.payment.Amount.String(),
	}
	s.hooks.EmitAttemptStarted(ctx, a)

	ref := s.clock.Now()
	feeEstimate := balance.FeeEstimate(snap.feePerOp, 1)
	if verdict := balance.EvaluateDirect(snap.account, s.payment.Amount, feeEstimate); verdict != balance.Sufficient {
		s.hooks.EmitAttemptSkipped(ctx, a, verdict.String())
		return
	}

	lease := s.allocator.Allocate()
	a.Sequence = int64(lease)

	intent, err := s.builder.Build(snap.account, lease, snap.feePerOp, s.payment.Destination, s.payment.Amount, nil, ref)
	if err != nil {
		s.logger.Error("intent build failed",
			slog.String("attempt_id", a.ID),
			slog.Int64("sequence", a.Sequence),
			slog.String("error", err.Error()),
		)
		return
	}
	a.FeeStroops = intent.FeeStroops

	out := s.executor.SubmitWithRetry(ctx, intent)
	s.hooks.EmitOutcome(ctx, a, out)
}

// attemptID returns a time-sortable unique attempt identifier.
func attemptID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "att_" + id.String()
}
