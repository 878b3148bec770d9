package piclaim

import (
	"log/slog"

	"github.com/donsmila-fx/piclaim/hook"
	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/scheduler"
)

// Option configures a Bot before its components are wired.
type Option func(*Bot)

// WithLogger sets the structured logger for the bot and every component it
// builds.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bot) { b.logger = l }
}

// WithLedger replaces the Horizon client, typically with ledger/memory for
// tests and dry runs.
func WithLedger(c ledger.Client) Option {
	return func(b *Bot) { b.client = c }
}

// WithClock replaces the NTP-corrected clock.
func WithClock(c scheduler.Clock) Option {
	return func(b *Bot) { b.clock = c }
}

// WithHook registers an additional attempt lifecycle hook.
func WithHook(h hook.Hook) Option {
	return func(b *Bot) { b.extraHooks = append(b.extraHooks, h) }
}
