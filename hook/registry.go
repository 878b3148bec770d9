package hook

import (
	"context"
	"log/slog"

	"github.com/donsmila-fx/piclaim/ledger"
)

// Named entry types pair a hook implementation with the hook name captured
// at registration time, so emit paths don't type-assert back to Hook.
type startedEntry struct {
	name string
	hook AttemptStarted
}

type skippedEntry struct {
	name string
	hook AttemptSkipped
}

type outcomeEntry struct {
	name string
	hook OutcomeObserved
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and fans lifecycle events out to those
// that implement the corresponding interface. Hook errors are logged, never
// propagated: observability must not disturb the attempt pipeline.
type Registry struct {
	logger *slog.Logger

	started  []startedEntry
	skipped  []skippedEntry
	outcome  []outcomeEntry
	shutdown []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds a hook and type-caches it into the applicable event lists.
// Hooks are notified in registration order. Not safe to call concurrently
// with emits; register everything before the scheduler starts.
func (r *Registry) Register(h Hook) {
	name := h.Name()
	if hh, ok := h.(AttemptStarted); ok {
		r.started = append(r.started, startedEntry{name, hh})
	}
	if hh, ok := h.(AttemptSkipped); ok {
		r.skipped = append(r.skipped, skippedEntry{name, hh})
	}
	if hh, ok := h.(OutcomeObserved); ok {
		r.outcome = append(r.outcome, outcomeEntry{name, hh})
	}
	if hh, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, hh})
	}
}

// EmitAttemptStarted notifies AttemptStarted hooks.
func (r *Registry) EmitAttemptStarted(ctx context.Context, a Attempt) {
	for _, e := range r.started {
		if err := e.hook.OnAttemptStarted(ctx, a); err != nil {
			r.logHookError(e.name, "attempt_started", err)
		}
	}
}

// EmitAttemptSkipped notifies AttemptSkipped hooks.
func (r *Registry) EmitAttemptSkipped(ctx context.Context, a Attempt, verdict string) {
	for _, e := range r.skipped {
		if err := e.hook.OnAttemptSkipped(ctx, a, verdict); err != nil {
			r.logHookError(e.name, "attempt_skipped", err)
		}
	}
}

// EmitOutcome notifies OutcomeObserved hooks.
func (r *Registry) EmitOutcome(ctx context.Context, a Attempt, out ledger.Outcome) {
	for _, e := range r.outcome {
		if err := e.hook.OnOutcome(ctx, a, out); err != nil {
			r.logHookError(e.name, "outcome", err)
		}
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError(e.name, "shutdown", err)
		}
	}
}

func (r *Registry) logHookError(name, event string, err error) {
	r.logger.Warn("hook error",
		slog.String("hook", name),
		slog.String("event", event),
		slog.String("error", err.Error()),
	)
}
