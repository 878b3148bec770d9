package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donsmila-fx/piclaim/backoff"
	"github.com/donsmila-fx/piclaim/hook"
	"github.com/donsmila-fx/piclaim/keys"
	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/ledger/memory"
	"github.com/donsmila-fx/piclaim/predicate"
	"github.com/donsmila-fx/piclaim/scheduler"
	"github.com/donsmila-fx/piclaim/sequence"
	"github.com/donsmila-fx/piclaim/submit"
	"github.com/donsmila-fx/piclaim/txn"
)

const mnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

var unlock = time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock shared by the scheduler, the executor, and
// the in-memory ledger, so eligibility flips exactly when a test says so.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// recordingHook counts lifecycle events across all interfaces.
type recordingHook struct {
	mu        sync.Mutex
	started   int
	skipped   map[string]int
	outcomes  map[ledger.OutcomeKind]int
	shutdowns int
}

func newRecordingHook() *recordingHook {
	return &recordingHook{
		skipped:  make(map[string]int),
		outcomes: make(map[ledger.OutcomeKind]int),
	}
}

func (h *recordingHook) Name() string { return "recording" }

func (h *recordingHook) OnAttemptStarted(_ context.Context, _ hook.Attempt) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started++
	return nil
}

func (h *recordingHook) OnAttemptSkipped(_ context.Context, _ hook.Attempt, verdict string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.skipped[verdict]++
	return nil
}

func (h *recordingHook) OnOutcome(_ context.Context, _ hook.Attempt, out ledger.Outcome) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outcomes[out.Kind]++
	return nil
}

func (h *recordingHook) OnShutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdowns++
	return nil
}

func (h *recordingHook) startedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func (h *recordingHook) skippedCount(verdict string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.skipped[verdict]
}

func (h *recordingHook) outcomeCount(kind ledger.OutcomeKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcomes[kind]
}

func (h *recordingHook) outcomeTotal() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.outcomes {
		n += c
	}
	return n
}

func (h *recordingHook) shutdownCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutdowns
}

type rig struct {
	clock  *fakeClock
	ledger *memory.Ledger
	hooks  *recordingHook
	sched  *scheduler.Scheduler
	kp     *keys.Keypair
}

func newRig(t *testing.T, start time.Time, balance decimal.Decimal, opts ...scheduler.Option) *rig {
	t.Helper()
	logger := discard()

	kp, err := keys.Derive(mnemonic)
	require.NoError(t, err)

	clk := newFakeClock(start)
	l := memory.New(memory.WithNowFunc(clk.Now))
	l.PutAccount(&ledger.Account{
		ID:       kp.Address(),
		Sequence: 100,
		Balances: []ledger.Balance{{Asset: ledger.AssetNative, Amount: balance}},
	})
	l.PutClaimableBalance(&ledger.ClaimableBalance{
		ID:     "00000000cafe",
		Asset:  ledger.AssetNative,
		Amount: decimal.NewFromInt(250),
		Claimants: []ledger.Claimant{
			{Destination: kp.Address(), Predicate: predicate.NotBefore(unlock)},
		},
	})

	alloc, err := sequence.New(context.Background(), l, kp.Address(), logger)
	require.NoError(t, err)

	exec := submit.New(l, alloc, logger,
		submit.WithClock(clk),
		submit.WithRetryBudget(3),
		submit.WithRetryDelay(backoff.NewConstant(time.Millisecond)),
	)

	rec := newRecordingHook()
	reg := hook.NewRegistry(logger)
	reg.Register(rec)

	payment := scheduler.Payment{
		Source:      kp.Address(),
		Destination: "GDEST",
		Amount:      decimal.NewFromInt(50),
	}
	opts = append([]scheduler.Option{
		scheduler.WithHooks(reg),
		scheduler.WithCheckInterval(2 * time.Millisecond),
	}, opts...)
	sched := scheduler.New(clk, l, alloc, txn.NewBuilder(kp, "Pi Network"), exec, payment, logger, opts...)

	return &rig{clock: clk, ledger: l, hooks: rec, sched: sched, kp: kp}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunBurst_FiresAtTargetMinusLead(t *testing.T) {
	r := newRig(t, unlock.Add(-10*time.Second), decimal.NewFromInt(10))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.sched.RunBurst(ctx, scheduler.Target{
			Instant:       unlock,
			Lead:          time.Second,
			BatchInterval: 10 * time.Millisecond,
			BatchSize:     5,
		})
	}()

	// Well before the wake-up instant nothing may fire.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, scheduler.StateWaitingForTarget, r.sched.State())
	assert.Zero(t, r.hooks.startedCount(), "no attempt may start before target minus lead")

	// At target minus lead, firing begins; the balance is still locked, so
	// the gate skips every attempt.
	r.clock.Set(unlock.Add(-time.Second))
	waitFor(t, "firing state", func() bool { return r.sched.State() == scheduler.StateFiring })
	waitFor(t, "gated attempts before unlock", func() bool {
		return r.hooks.skippedCount("no_eligible_grant") >= 1
	})
	assert.Zero(t, r.hooks.outcomeTotal(), "nothing may be submitted while the grant is locked")

	// Once the grant unlocks, one batch of five contends for sequence 101:
	// exactly one submission lands, the rest conflict or lose the claim.
	r.clock.Set(unlock)
	waitFor(t, "accepted submission", func() bool {
		return r.hooks.outcomeCount(ledger.OutcomeAccepted) == 1
	})
	waitFor(t, "full batch resolved", func() bool { return r.hooks.outcomeTotal() >= 5 })

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, scheduler.StateStopped, r.sched.State())
	assert.Equal(t, 1, r.hooks.shutdownCount())
	assert.Equal(t, 1, r.hooks.outcomeCount(ledger.OutcomeAccepted), "only one attempt may land")
	assert.EqualValues(t, 101, r.ledger.Sequence(r.kp.Address()))

	remaining, err := r.ledger.ListClaimableBalances(context.Background(), r.kp.Address())
	require.NoError(t, err)
	assert.Empty(t, remaining, "the claimed balance must be consumed exactly once")
}

func TestRunBurst_CancelledWhileWaiting(t *testing.T) {
	r := newRig(t, unlock.Add(-time.Hour), decimal.NewFromInt(10))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- r.sched.RunBurst(ctx, scheduler.Target{
			Instant:       unlock,
			Lead:          time.Second,
			BatchInterval: 10 * time.Millisecond,
			BatchSize:     5,
		})
	}()

	waitFor(t, "waiting state", func() bool { return r.sched.State() == scheduler.StateWaitingForTarget })
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, scheduler.StateStopped, r.sched.State())
	assert.Zero(t, r.hooks.startedCount())
	assert.Equal(t, 1, r.hooks.shutdownCount(), "shutdown hooks fire even when nothing was attempted")
}

func TestRunPoll_EligibilityFlipAndTransportRetry(t *testing.T) {
	r := newRig(t, unlock.Add(-time.Second), decimal.NewFromInt(10),
		scheduler.WithPollInterval(8*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.sched.RunPoll(ctx) }()

	waitFor(t, "polling state", func() bool { return r.sched.State() == scheduler.StatePolling })
	waitFor(t, "locked grant skipped", func() bool {
		return r.hooks.skippedCount("no_eligible_grant") >= 1
	})
	assert.Zero(t, r.hooks.outcomeTotal())

	// Unlock the grant and knock out the first submission with a transport
	// failure; the polling retry policy must absorb it within the tick.
	r.ledger.FailNextSubmissions(errors.New("connection reset"))
	r.clock.Set(unlock.Add(time.Second))
	waitFor(t, "accepted after retry", func() bool {
		return r.hooks.outcomeCount(ledger.OutcomeAccepted) == 1
	})

	assert.Zero(t, r.hooks.outcomeCount(ledger.OutcomeTransportError),
		"a recovered transport error must not surface as an outcome")
	assert.GreaterOrEqual(t, r.ledger.Submissions(), 2, "the failed submission must be retried")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, scheduler.StateStopped, r.sched.State())
}

func TestRunSend_DirectPayment(t *testing.T) {
	r := newRig(t, unlock.Add(-time.Hour), decimal.NewFromInt(100))

	require.NoError(t, r.sched.RunSend(context.Background()))

	assert.Equal(t, 1, r.hooks.outcomeCount(ledger.OutcomeAccepted))
	assert.Equal(t, 1, r.hooks.startedCount(), "send mode makes exactly one attempt")
	assert.Equal(t, scheduler.StateStopped, r.sched.State())
	assert.Equal(t, 1, r.hooks.shutdownCount())
	assert.EqualValues(t, 101, r.ledger.Sequence(r.kp.Address()))

	// 50 sent plus the single-operation fee of 0.01.
	acct, err := r.ledger.LoadAccount(context.Background(), r.kp.Address())
	require.NoError(t, err)
	assert.True(t, acct.NativeBalance().Equal(decimal.RequireFromString("49.99")),
		"balance %s after payment", acct.NativeBalance())

	// The payment path never touches claimable balances, locked or not.
	remaining, err := r.ledger.ListClaimableBalances(context.Background(), r.kp.Address())
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestRunSend_SkipsWhenBalanceCannotCoverPayment(t *testing.T) {
	r := newRig(t, unlock.Add(-time.Hour), decimal.NewFromInt(10))

	require.NoError(t, r.sched.RunSend(context.Background()))

	assert.Equal(t, 1, r.hooks.skippedCount("insufficient_for_payment"))
	assert.Zero(t, r.hooks.outcomeTotal(), "an unaffordable payment must never be submitted")
	assert.Zero(t, r.ledger.Submissions())
	assert.EqualValues(t, 100, r.ledger.Sequence(r.kp.Address()))
	assert.Equal(t, scheduler.StateStopped, r.sched.State())
}

func TestRunPoll_SkipsWhenFeeUnaffordable(t *testing.T) {
	// Fee for a claim+payment at the default reference fee is 0.02; the
	// account holds less than that.
	r := newRig(t, unlock.Add(time.Second), decimal.RequireFromString("0.01"),
		scheduler.WithPollInterval(8*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- r.sched.RunPoll(ctx) }()

	waitFor(t, "fee gate skip", func() bool {
		return r.hooks.skippedCount("insufficient_for_fee") >= 1
	})
	assert.Zero(t, r.hooks.outcomeTotal(), "an unaffordable attempt must never be submitted")
	assert.EqualValues(t, 100, r.ledger.Sequence(r.kp.Address()))

	cancel()
	require.NoError(t, <-done)
}
