// Package ledger defines the domain model for a Horizon-compatible network:
// accounts, claimable balances, submission outcomes, and the Client
// interface the engine consumes. Concrete backends live in the horizon
// (HTTP) and memory (in-process fake) subpackages.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donsmila-fx/piclaim/predicate"
)

// StroopsPerUnit is the protocol-defined subdivision of the native asset:
// one native unit is 10^7 stroops. Fees are quoted in stroops.
const StroopsPerUnit = 10_000_000

// AssetNative identifies the network's native asset in Balance and
// ClaimableBalance records.
const AssetNative = "native"

// Account is a point-in-time snapshot of an on-chain account. Snapshots are
// never mutated; refreshing an account means fetching a new snapshot.
type Account struct {
	// ID is the account's strkey-encoded public key.
	ID string

	// Sequence is the last consumed transaction sequence number. The next
	// acceptable transaction must carry Sequence+1.
	Sequence int64

	// Balances lists the account's holdings per asset.
	Balances []Balance
}

// Balance is one asset position held by an account.
type Balance struct {
	Asset  string
	Amount decimal.Decimal
}

// NativeBalance returns the account's spendable native-asset balance, or
// zero if the account holds none.
func (a *Account) NativeBalance() decimal.Decimal {
	for _, b := range a.Balances {
		if b.Asset == AssetNative {
			return b.Amount
		}
	}
	return decimal.Zero
}

// Claimant is one party entitled to claim a balance, together with that
// party's own release predicate. A nil Predicate means the condition could
// not be parsed and the balance must be treated as not claimable by them.
type Claimant struct {
	Destination string
	Predicate   *predicate.Predicate
}

// ClaimableBalance is a conditionally-releasable balance earmarked for one
// or more claimants. Read-only snapshot; refreshed by re-listing.
type ClaimableBalance struct {
	ID        string
	Asset     string
	Amount    decimal.Decimal
	Sponsor   string
	Claimants []Claimant
}

// ClaimableBy reports whether the given account may claim this balance at
// the reference instant. Only the matching claimant's own predicate subtree
// is evaluated; an account that is not listed as a claimant, or whose
// predicate failed to parse, gets false.
func (cb *ClaimableBalance) ClaimableBy(account string, ref time.Time) bool {
	for i := range cb.Claimants {
		if cb.Claimants[i].Destination != account {
			continue
		}
		return cb.Claimants[i].Predicate.Eval(ref)
	}
	return false
}

// Client is the engine's view of the ledger network. Implementations must be
// safe for concurrent use; every method honors context cancellation.
type Client interface {
	// LoadAccount fetches the current snapshot of an account.
	LoadAccount(ctx context.Context, accountID string) (*Account, error)

	// ListClaimableBalances returns the balances claimable by the given
	// account, including parsed release predicates.
	ListClaimableBalances(ctx context.Context, claimant string) ([]*ClaimableBalance, error)

	// BaseFee returns the network's current reference fee per operation,
	// in stroops.
	BaseFee(ctx context.Context) (int64, error)

	// SubmitTransaction sends a signed envelope to the network and returns
	// the transaction hash on acceptance. Failures are reported through
	// the sentinel and typed errors below so callers can classify them.
	SubmitTransaction(ctx context.Context, envelope []byte) (string, error)
}

// ErrBadSequence reports that the submitted transaction's sequence number
// did not match the account's next expected sequence.
var ErrBadSequence = errors.New("ledger: transaction sequence mismatch")

// RateLimitError reports that the endpoint throttled the request.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("ledger: rate limited, retry after %s", e.RetryAfter)
	}
	return "ledger: rate limited"
}

// RejectedError reports that the network accepted the request but rejected
// the transaction itself (bad operation, underfunded, invalid claim, ...).
type RejectedError struct {
	// Code is the ledger-reported result code, e.g. "tx_insufficient_balance"
	// or "op_no_trust".
	Code string
}

func (e *RejectedError) Error() string {
	return "ledger: transaction rejected: " + e.Code
}
