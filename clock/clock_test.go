package clock

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_AppliesOffset(t *testing.T) {
	c := New(
		WithLogger(discard()),
		withQuery(func(_ string, _ time.Duration) (time.Duration, error) {
			return 2 * time.Second, nil
		}),
	)

	if !c.Corrected() {
		t.Fatal("Corrected() = false after successful query")
	}
	if c.Offset() != 2*time.Second {
		t.Fatalf("Offset() = %v, want 2s", c.Offset())
	}

	skew := c.Now().Sub(time.Now().UTC())
	if skew < 1900*time.Millisecond || skew > 2100*time.Millisecond {
		t.Errorf("Now() skew = %v, want ~2s", skew)
	}
}

func TestNew_FallsBackToSystemClock(t *testing.T) {
	c := New(
		WithLogger(discard()),
		withQuery(func(_ string, _ time.Duration) (time.Duration, error) {
			return 0, errors.New("no route to host")
		}),
	)

	if c.Corrected() {
		t.Fatal("Corrected() = true after failed query")
	}
	if c.Offset() != 0 {
		t.Fatalf("Offset() = %v, want 0", c.Offset())
	}

	skew := c.Now().Sub(time.Now().UTC())
	if skew < -100*time.Millisecond || skew > 100*time.Millisecond {
		t.Errorf("Now() skew = %v, want ~0", skew)
	}
}

func TestNew_UnreachableServer(t *testing.T) {
	// Real query path against a dead endpoint: must degrade, not hang.
	start := time.Now()
	c := New(
		WithLogger(discard()),
		WithServer("127.0.0.1:1"),
		WithTimeout(200*time.Millisecond),
	)
	if c.Corrected() {
		t.Error("Corrected() = true against unreachable server")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("correction took %v, want bounded by timeout", elapsed)
	}
}
