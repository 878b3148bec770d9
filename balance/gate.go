// Package balance decides whether funds suffice for a planned withdrawal:
// an eligible claimable balance covering the amount, and enough spendable
// native balance to pay the submission fee.
package balance

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/donsmila-fx/piclaim/ledger"
)

// Verdict is the gate's decision for one planned attempt.
type Verdict int

const (
	// Sufficient — an eligible claimable balance covers the amount and the
	// account can pay the fee.
	Sufficient Verdict = iota
	// InsufficientForPayment — spendable balance cannot cover a direct
	// payment of the requested amount plus fee.
	InsufficientForPayment
	// InsufficientForFee — an eligible claimable balance exists but the
	// account cannot afford to submit the claim+payment transaction.
	InsufficientForFee
	// NoEligibleGrant — no claimable balance is currently unlockable for
	// the required amount, regardless of spendable balance.
	NoEligibleGrant
)

// String returns the verdict name.
func (v Verdict) String() string {
	switch v {
	case Sufficient:
		return "sufficient"
	case InsufficientForPayment:
		return "insufficient_for_payment"
	case InsufficientForFee:
		return "insufficient_for_fee"
	case NoEligibleGrant:
		return "no_eligible_grant"
	default:
		return "unknown"
	}
}

// FeeEstimate converts a per-operation reference fee in stroops into a
// native-unit fee for a transaction with the given operation count.
func FeeEstimate(perOpStroops int64, operations int) decimal.Decimal {
	total := decimal.NewFromInt(perOpStroops * int64(operations))
	return total.Div(decimal.NewFromInt(ledger.StroopsPerUnit))
}

// Evaluate gates a claim+payment attempt. It selects the first claimable
// balance that is unlockable by the account at the reference instant and
// covers the required amount. The eligibility check runs before any balance
// check: a rich account with no unlockable grant still gets NoEligibleGrant.
//
// The returned balance is non-nil only for Sufficient.
func Evaluate(
	acct *ledger.Account,
	required decimal.Decimal,
	feeEstimate decimal.Decimal,
	grants []*ledger.ClaimableBalance,
	ref time.Time,
) (Verdict, *ledger.ClaimableBalance) {
	var eligible *ledger.ClaimableBalance
	for _, g := range grants {
		if g.Asset != ledger.AssetNative {
			continue
		}
		if g.Amount.LessThan(required) {
			continue
		}
		if !g.ClaimableBy(acct.ID, ref) {
			continue
		}
		eligible = g
		break
	}
	if eligible == nil {
		return NoEligibleGrant, nil
	}

	if acct.NativeBalance().LessThan(feeEstimate) {
		return InsufficientForFee, nil
	}

	return Sufficient, eligible
}

// EvaluateDirect gates a plain payment attempt with no claim operation: the
// spendable balance alone must cover amount plus fee.
func EvaluateDirect(acct *ledger.Account, required, feeEstimate decimal.Decimal) Verdict {
	spendable := acct.NativeBalance()
	if spendable.LessThan(feeEstimate) {
		return InsufficientForFee
	}
	if spendable.LessThan(required.Add(feeEstimate)) {
		return InsufficientForPayment
	}
	return Sufficient
}
