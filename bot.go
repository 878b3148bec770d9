package piclaim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/donsmila-fx/piclaim/clock"
	"github.com/donsmila-fx/piclaim/hook"
	"github.com/donsmila-fx/piclaim/keys"
	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/ledger/horizon"
	"github.com/donsmila-fx/piclaim/scheduler"
	"github.com/donsmila-fx/piclaim/sequence"
	"github.com/donsmila-fx/piclaim/submit"
	"github.com/donsmila-fx/piclaim/txn"
)

// Mode selects the bot's run loop.
type Mode string

const (
	// ModeBurst fires concurrent batches around the daily unlock instant.
	ModeBurst Mode = "burst"
	// ModePoll re-checks eligibility on an interval.
	ModePoll Mode = "poll"
	// ModeSend performs one direct payment and exits.
	ModeSend Mode = "send"
)

// Bot wires the full engine from a Config: keys, corrected clock, ledger
// client, sequence allocator, transaction builder, submission executor, and
// scheduler. Create one with New, then call Run.
type Bot struct {
	cfg    Config
	logger *slog.Logger

	client     ledger.Client
	clock      scheduler.Clock
	extraHooks []hook.Hook

	keypair *keys.Keypair
	sched   *scheduler.Scheduler
	logSink io.Closer
}

// New derives the account keys, corrects the clock, seeds the sequence
// allocator from the network, and assembles the scheduler. Failures wrap
// ErrInitialization.
func New(ctx context.Context, cfg Config, opts ...Option) (*Bot, error) {
	b := &Bot{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	kp, err := keys.Derive(cfg.Mnemonic)
	if err != nil {
		return nil, fmt.Errorf("%w: derive keys: %w", ErrInitialization, err)
	}
	b.keypair = kp
	b.logger.Info("account derived", slog.String("address", kp.Address()))

	if b.client == nil {
		b.client = horizon.New(cfg.HorizonURL, horizon.WithLogger(b.logger))
	}
	if b.clock == nil {
		b.clock = clock.New(
			clock.WithServer(cfg.NTPServer),
			clock.WithLogger(b.logger),
		)
	}

	allocator, err := sequence.New(ctx, b.client, kp.Address(), b.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	hooks := hook.NewRegistry(b.logger)
	hooks.Register(hook.NewLoggingHook(b.logger))
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%w: open log file: %w", ErrInitialization, err)
		}
		b.logSink = f
		hooks.Register(hook.NewFileHook(f))
	}
	for _, h := range b.extraHooks {
		hooks.Register(h)
	}

	builder := txn.NewBuilder(kp, cfg.NetworkPassphrase,
		txn.WithAddressChecker(keys.CheckAddress),
	)
	executor := submit.New(b.client, allocator, b.logger,
		submit.WithClock(b.clock),
		submit.WithRetryBudget(cfg.RetryBudget),
	)

	b.sched = scheduler.New(
		b.clock, b.client, allocator, builder, executor,
		scheduler.Payment{
			Source:      kp.Address(),
			Destination: cfg.Destination,
			Amount:      cfg.Amount,
		},
		b.logger,
		scheduler.WithHooks(hooks),
		scheduler.WithPollInterval(cfg.PollInterval),
		scheduler.WithFallbackFee(cfg.FeePerOp),
	)
	return b, nil
}

// Address returns the derived public address of the source account.
func (b *Bot) Address() string {
	return b.keypair.Address()
}

// Run executes the selected mode. Burst and poll run until ctx is
// cancelled; send returns after its single payment. In burst mode the
// target instant is the next daily occurrence of cfg.TargetTime.
func (b *Bot) Run(ctx context.Context, mode Mode) error {
	defer b.closeSink()

	switch mode {
	case ModeBurst:
		if b.cfg.TargetTime == "" {
			return fmt.Errorf("%w: PI_TARGET_TIME (burst mode)", ErrConfigMissing)
		}
		instant, err := scheduler.NextDaily(b.clock.Now(), b.cfg.TargetTime)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTargetTime, b.cfg.TargetTime)
		}
		return b.sched.RunBurst(ctx, scheduler.Target{
			Instant:       instant,
			Lead:          b.cfg.LeadTime,
			BatchInterval: b.cfg.BatchInterval,
			BatchSize:     b.cfg.BatchSize,
		})
	case ModePoll:
		return b.sched.RunPoll(ctx)
	case ModeSend:
		return b.sched.RunSend(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (b *Bot) closeSink() {
	if b.logSink != nil {
		_ = b.logSink.Close()
	}
}
