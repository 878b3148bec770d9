// Package clock provides the engine's notion of "now": the local system
// clock corrected once at startup against an external NTP reference.
//
// Correction is best effort. One query, one bounded timeout, no retries and
// no re-synchronization during a run. When the reference is unreachable the
// clock degrades to the uncorrected system clock and records that fact for
// observability; callers behave identically either way.
package clock

import (
	"log/slog"
	"time"

	"github.com/beevik/ntp"
)

// DefaultServer is the NTP pool host queried when none is configured.
const DefaultServer = "pool.ntp.org"

// DefaultTimeout bounds the single correction query.
const DefaultTimeout = 3 * time.Second

// Clock is an NTP-corrected UTC clock. Immutable after New; safe for
// concurrent use.
type Clock struct {
	offset    time.Duration
	corrected bool
	server    string
}

// Option configures a Clock before the correction query runs.
type Option func(*settings)

type settings struct {
	server  string
	timeout time.Duration
	logger  *slog.Logger
	query   func(server string, timeout time.Duration) (time.Duration, error)
}

// WithServer sets the NTP server to query.
func WithServer(server string) Option {
	return func(s *settings) { s.server = server }
}

// WithTimeout bounds the correction query.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithLogger sets the structured logger for correction results.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// withQuery replaces the NTP query. Tests only.
func withQuery(q func(server string, timeout time.Duration) (time.Duration, error)) Option {
	return func(s *settings) { s.query = q }
}

func ntpQuery(server string, timeout time.Duration) (time.Duration, error) {
	resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		return 0, err
	}
	return resp.ClockOffset, nil
}

// New creates a Clock, performing the one-shot correction query. It never
// fails: an unreachable or invalid reference yields an uncorrected clock.
func New(opts ...Option) *Clock {
	s := &settings{
		server:  DefaultServer,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		query:   ntpQuery,
	}
	for _, opt := range opts {
		opt(s)
	}

	c := &Clock{server: s.server}

	offset, err := s.query(s.server, s.timeout)
	if err != nil {
		s.logger.Warn("clock correction failed, using system clock",
			slog.String("server", s.server),
			slog.String("error", err.Error()),
		)
		return c
	}

	c.offset = offset
	c.corrected = true
	s.logger.Info("clock corrected",
		slog.String("server", s.server),
		slog.Duration("offset", offset),
	)
	return c
}

// Now returns the best available estimate of the current UTC instant.
func (c *Clock) Now() time.Time {
	return time.Now().UTC().Add(c.offset)
}

// Corrected reports whether the startup correction query succeeded.
func (c *Clock) Corrected() bool { return c.corrected }

// Offset returns the correction applied to the system clock (zero when
// uncorrected).
func (c *Clock) Offset() time.Duration { return c.offset }
