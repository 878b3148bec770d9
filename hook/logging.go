package hook

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/donsmila-fx/piclaim/ledger"
)

// LoggingHook writes structured status lines for every attempt event.
type LoggingHook struct {
	logger *slog.Logger
}

// NewLoggingHook creates the standard slog-backed hook.
func NewLoggingHook(logger *slog.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

// Name implements Hook.
func (h *LoggingHook) Name() string { return "logging" }

// OnAttemptStarted implements AttemptStarted.
func (h *LoggingHook) OnAttemptStarted(_ context.Context, a Attempt) error {
	h.logger.Debug("attempt started",
		slog.String("attempt_id", a.ID),
		slog.String("mode", a.Mode),
		slog.Int("batch", a.Batch),
	)
	return nil
}

// OnAttemptSkipped implements AttemptSkipped.
func (h *LoggingHook) OnAttemptSkipped(_ context.Context, a Attempt, verdict string) error {
	h.logger.Info("attempt skipped",
		slog.String("attempt_id", a.ID),
		slog.String("verdict", verdict),
		slog.String("destination", a.Destination),
		slog.String("amount", a.Amount),
	)
	return nil
}

// OnOutcome implements OutcomeObserved.
func (h *LoggingHook) OnOutcome(_ context.Context, a Attempt, out ledger.Outcome) error {
	attrs := []any{
		slog.String("attempt_id", a.ID),
		slog.String("outcome", out.Kind.String()),
		slog.Int64("sequence", a.Sequence),
		slog.String("destination", a.Destination),
		slog.String("amount", a.Amount),
		slog.Int64("fee_stroops", a.FeeStroops),
	}
	if a.GrantID != "" {
		attrs = append(attrs, slog.String("grant_id", a.GrantID))
	}

	switch out.Kind {
	case ledger.OutcomeAccepted:
		h.logger.Info("transaction accepted", append(attrs, slog.String("hash", out.Hash))...)
	case ledger.OutcomeRejected:
		h.logger.Warn("transaction rejected", append(attrs, slog.String("reason", out.Reason))...)
	case ledger.OutcomeTransportError:
		h.logger.Warn("submission transport error", append(attrs, slog.String("error", out.Err.Error()))...)
	default:
		h.logger.Info("submission outcome", attrs...)
	}
	return nil
}

// FileHook appends human-readable status lines to a writer, typically an
// append-only log file. Write failures are swallowed: the log sink must
// never abort the run.
type FileHook struct {
	w io.Writer
}

// NewFileHook creates a FileHook writing to w.
func NewFileHook(w io.Writer) *FileHook {
	return &FileHook{w: w}
}

// Name implements Hook.
func (h *FileHook) Name() string { return "logfile" }

// OnOutcome implements OutcomeObserved.
func (h *FileHook) OnOutcome(_ context.Context, a Attempt, out ledger.Outcome) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	var line string
	switch out.Kind {
	case ledger.OutcomeAccepted:
		line = fmt.Sprintf("%s accepted seq=%d amount=%s dest=%s grant=%s fee=%d hash=%s\n",
			stamp, a.Sequence, a.Amount, a.Destination, a.GrantID, a.FeeStroops, out.Hash)
	case ledger.OutcomeRejected:
		line = fmt.Sprintf("%s rejected seq=%d amount=%s dest=%s grant=%s fee=%d reason=%s\n",
			stamp, a.Sequence, a.Amount, a.Destination, a.GrantID, a.FeeStroops, out.Reason)
	default:
		line = fmt.Sprintf("%s %s seq=%d amount=%s dest=%s grant=%s fee=%d\n",
			stamp, out.Kind, a.Sequence, a.Amount, a.Destination, a.GrantID, a.FeeStroops)
	}
	_, _ = io.WriteString(h.w, line)
	return nil
}

// OnShutdown implements Shutdown.
func (h *FileHook) OnShutdown(_ context.Context) error {
	stamp := time.Now().UTC().Format(time.RFC3339)
	_, _ = io.WriteString(h.w, stamp+" shutdown\n")
	return nil
}
