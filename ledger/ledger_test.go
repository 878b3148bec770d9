package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/predicate"
)

const (
	claimant = "GCLAIMANTXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
	stranger = "GSTRANGERXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX"
)

func TestNativeBalance(t *testing.T) {
	acct := &ledger.Account{
		ID: claimant,
		Balances: []ledger.Balance{
			{Asset: "USDC:GISSUER", Amount: decimal.NewFromInt(42)},
			{Asset: ledger.AssetNative, Amount: decimal.RequireFromString("12.5")},
		},
	}
	if got := acct.NativeBalance(); !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("NativeBalance() = %s, want 12.5", got)
	}

	empty := &ledger.Account{ID: claimant}
	if got := empty.NativeBalance(); !got.IsZero() {
		t.Errorf("NativeBalance() on empty account = %s, want 0", got)
	}
}

func TestClaimableBy(t *testing.T) {
	unlock := time.Date(2026, 3, 14, 14, 30, 0, 0, time.UTC)
	cb := &ledger.ClaimableBalance{
		ID:     "00000000aabbcc",
		Asset:  ledger.AssetNative,
		Amount: decimal.NewFromInt(100),
		Claimants: []ledger.Claimant{
			{Destination: stranger, Predicate: predicate.Unconditional()},
			{Destination: claimant, Predicate: predicate.NotBefore(unlock)},
		},
	}

	// Only the querying claimant's own subtree counts: the stranger's
	// unconditional predicate must not leak into our verdict.
	if cb.ClaimableBy(claimant, unlock.Add(-time.Second)) {
		t.Error("claimable before unlock despite not_before predicate")
	}
	if !cb.ClaimableBy(claimant, unlock.Add(time.Second)) {
		t.Error("not claimable after unlock")
	}
	if cb.ClaimableBy("GNOBODY", unlock.Add(time.Hour)) {
		t.Error("claimable by an account that is not a claimant")
	}
}

func TestClaimableBy_UnparseablePredicateFailsClosed(t *testing.T) {
	cb := &ledger.ClaimableBalance{
		ID:        "00000000ddeeff",
		Claimants: []ledger.Claimant{{Destination: claimant, Predicate: nil}},
	}
	if cb.ClaimableBy(claimant, time.Now()) {
		t.Error("balance with unparseable predicate must not be claimable")
	}
}
