package piclaim_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donsmila-fx/piclaim"
	"github.com/donsmila-fx/piclaim/hook"
	"github.com/donsmila-fx/piclaim/keys"
	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/ledger/memory"
	"github.com/donsmila-fx/piclaim/predicate"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now().UTC() }

// acceptedHook counts accepted outcomes.
type acceptedHook struct {
	mu sync.Mutex
	n  int
}

func (h *acceptedHook) Name() string { return "accepted-counter" }

func (h *acceptedHook) OnOutcome(_ context.Context, _ hook.Attempt, out ledger.Outcome) error {
	if out.Kind == ledger.OutcomeAccepted {
		h.mu.Lock()
		h.n++
		h.mu.Unlock()
	}
	return nil
}

func (h *acceptedHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.n
}

func testConfig(t *testing.T) piclaim.Config {
	t.Helper()
	cfg := piclaim.DefaultConfig()
	cfg.Mnemonic = mnemonic
	cfg.Destination = destAddress(t)
	cfg.Amount = decimal.NewFromInt(5)
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func seededLedger(t *testing.T) *memory.Ledger {
	t.Helper()
	kp, err := keys.Derive(mnemonic)
	require.NoError(t, err)

	l := memory.New()
	l.PutAccount(&ledger.Account{
		ID:       kp.Address(),
		Sequence: 41,
		Balances: []ledger.Balance{{Asset: ledger.AssetNative, Amount: decimal.NewFromInt(10)}},
	})
	l.PutClaimableBalance(&ledger.ClaimableBalance{
		ID:     "00000000cafe",
		Asset:  ledger.AssetNative,
		Amount: decimal.NewFromInt(20),
		Claimants: []ledger.Claimant{
			{Destination: kp.Address(), Predicate: predicate.Unconditional()},
		},
	})
	return l
}

func TestNew_SeedsAllocatorFromNetwork(t *testing.T) {
	bot, err := piclaim.New(context.Background(), testConfig(t),
		piclaim.WithLedger(seededLedger(t)),
		piclaim.WithClock(sysClock{}),
		piclaim.WithLogger(discard()),
	)
	require.NoError(t, err)
	assert.NotEmpty(t, bot.Address())
}

func TestNew_InitFailures(t *testing.T) {
	t.Run("bad mnemonic", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Mnemonic = "not a phrase"
		_, err := piclaim.New(context.Background(), cfg,
			piclaim.WithLedger(seededLedger(t)),
			piclaim.WithClock(sysClock{}),
			piclaim.WithLogger(discard()),
		)
		assert.ErrorIs(t, err, piclaim.ErrInitialization)
		assert.ErrorIs(t, err, keys.ErrInvalidMnemonic)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := piclaim.New(context.Background(), testConfig(t),
			piclaim.WithLedger(memory.New()),
			piclaim.WithClock(sysClock{}),
			piclaim.WithLogger(discard()),
		)
		assert.ErrorIs(t, err, piclaim.ErrInitialization)
	})
}

func TestRun_ModeValidation(t *testing.T) {
	cfg := testConfig(t)
	cfg.TargetTime = ""
	bot, err := piclaim.New(context.Background(), cfg,
		piclaim.WithLedger(seededLedger(t)),
		piclaim.WithClock(sysClock{}),
		piclaim.WithLogger(discard()),
	)
	require.NoError(t, err)

	err = bot.Run(context.Background(), piclaim.Mode("drip"))
	assert.ErrorIs(t, err, piclaim.ErrUnknownMode)

	err = bot.Run(context.Background(), piclaim.ModeBurst)
	assert.ErrorIs(t, err, piclaim.ErrConfigMissing, "burst mode needs a target time")
}

func TestRun_PollClaimsUnlockedBalance(t *testing.T) {
	l := seededLedger(t)
	counter := &acceptedHook{}
	bot, err := piclaim.New(context.Background(), testConfig(t),
		piclaim.WithLedger(l),
		piclaim.WithClock(sysClock{}),
		piclaim.WithLogger(discard()),
		piclaim.WithHook(counter),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx, piclaim.ModePoll) }()

	deadline := time.Now().Add(5 * time.Second)
	for counter.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, counter.count(), "the unconditional balance must be claimed once")
	remaining, err := l.ListClaimableBalances(context.Background(), bot.Address())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
