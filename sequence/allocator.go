// Package sequence owns the local cache of an account's next usable
// transaction sequence number and serves collision-free allocations to
// concurrent submission attempts.
//
// The network assigns ordering externally; no local actor can guarantee its
// optimistic sequence matches the eventually-accepted one under concurrent
// submitters. The allocator therefore optimizes for cheap common-case
// throughput and treats sequence conflicts as expected, recoverable events:
// a conflict triggers Reconcile, which refetches the on-chain sequence and
// re-baselines the counter.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/donsmila-fx/piclaim/ledger"
)

// Lease is a single sequence number granted to exactly one in-flight
// submission attempt. Leases issued between two reconciliations are unique
// and contiguous; nothing is guaranteed about the order in which the
// attempts that hold them reach the network.
type Lease int64

// Source provides the on-chain account snapshot the allocator is seeded and
// re-baselined from. ledger.Client satisfies it.
type Source interface {
	LoadAccount(ctx context.Context, accountID string) (*ledger.Account, error)
}

// Allocator is safe for concurrent use. All mutation of the counter funnels
// through Allocate and Reconcile.
type Allocator struct {
	source    Source
	accountID string
	logger    *slog.Logger

	mu   sync.Mutex
	next int64

	// Reconcile is single-flight: a burst of sequence conflicts from one
	// batch collapses into one refetch. Waiters block on the done channel
	// of the in-flight reconciliation.
	reconciling bool
	done        chan struct{}
}

// New seeds an allocator from the account's current on-chain sequence.
func New(ctx context.Context, source Source, accountID string, logger *slog.Logger) (*Allocator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	acct, err := source.LoadAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("sequence: seed from account %s: %w", accountID, err)
	}
	a := &Allocator{
		source:    source,
		accountID: accountID,
		logger:    logger,
		next:      acct.Sequence + 1,
	}
	logger.Info("sequence allocator seeded",
		slog.String("account", accountID),
		slog.Int64("next", a.next),
	)
	return a, nil
}

// Allocate returns the next sequence lease and advances the counter.
// Non-blocking: it never waits on the network, including while a
// reconciliation's refetch is in flight (such leases count as issued before
// the new baseline and will simply conflict and be superseded).
func (a *Allocator) Allocate() Lease {
	a.mu.Lock()
	defer a.mu.Unlock()
	l := Lease(a.next)
	a.next++
	return l
}

// Reconcile refetches the true on-chain sequence number and resets the
// counter to onchain+1, discarding the optimistic cache. Concurrent calls
// coalesce: late arrivals wait for the in-flight refetch instead of issuing
// their own.
func (a *Allocator) Reconcile(ctx context.Context) error {
	a.mu.Lock()
	if a.reconciling {
		done := a.done
		a.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	a.reconciling = true
	a.done = make(chan struct{})
	done := a.done
	a.mu.Unlock()

	acct, err := a.source.LoadAccount(ctx, a.accountID)

	a.mu.Lock()
	if err == nil {
		a.next = acct.Sequence + 1
	}
	a.reconciling = false
	close(done)
	a.mu.Unlock()

	if err != nil {
		return fmt.Errorf("sequence: reconcile account %s: %w", a.accountID, err)
	}

	a.logger.Info("sequence reconciled",
		slog.String("account", a.accountID),
		slog.Int64("onchain", acct.Sequence),
		slog.Int64("next", acct.Sequence+1),
	)
	return nil
}
