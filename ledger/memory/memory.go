// Package memory is a fully in-memory ledger.Client. It enforces the same
// rules the real network does — sequence ordering, claim predicates, fee and
// balance checks — so the engine's concurrency and reconciliation behavior
// can be exercised without a network. Intended for unit testing and dry
// runs.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donsmila-fx/piclaim/ledger"
)

// Ensure Ledger implements ledger.Client at compile time.
var _ ledger.Client = (*Ledger)(nil)

// Ledger is a concurrency-safe fake network.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*ledger.Account
	grants   map[string]*ledger.ClaimableBalance
	baseFee  int64
	now      func() time.Time

	// scripted failures consumed before normal processing, in order.
	failures []error

	submissions int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithBaseFee sets the reference fee per operation in stroops.
func WithBaseFee(stroops int64) Option {
	return func(l *Ledger) { l.baseFee = stroops }
}

// WithNowFunc sets the clock used for predicate and time-bound enforcement.
func WithNowFunc(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New returns an empty Ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		accounts: make(map[string]*ledger.Account),
		grants:   make(map[string]*ledger.ClaimableBalance),
		baseFee:  100_000,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ──────────────────────────────────────────────────
// Fixture helpers
// ──────────────────────────────────────────────────

// PutAccount installs or replaces an account snapshot.
func (l *Ledger) PutAccount(a *ledger.Account) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *a
	cp.Balances = append([]ledger.Balance(nil), a.Balances...)
	l.accounts[a.ID] = &cp
}

// PutClaimableBalance installs or replaces a claimable balance.
func (l *Ledger) PutClaimableBalance(cb *ledger.ClaimableBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *cb
	cp.Claimants = append([]ledger.Claimant(nil), cb.Claimants...)
	l.grants[cb.ID] = &cp
}

// FailNextSubmissions queues errors returned by upcoming submissions before
// any processing. Use ledger sentinel/typed errors to script conflict,
// rate-limit, or transport scenarios.
func (l *Ledger) FailNextSubmissions(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, errs...)
}

// Submissions returns how many submissions reached the ledger (scripted
// failures included).
func (l *Ledger) Submissions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissions
}

// Sequence returns the account's current on-chain sequence.
func (l *Ledger) Sequence(accountID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[accountID]; ok {
		return a.Sequence
	}
	return 0
}

// ──────────────────────────────────────────────────
// ledger.Client
// ──────────────────────────────────────────────────

// LoadAccount returns a copy of the account snapshot.
func (l *Ledger) LoadAccount(_ context.Context, accountID string) (*ledger.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("memory: account %s not found", accountID)
	}
	cp := *a
	cp.Balances = append([]ledger.Balance(nil), a.Balances...)
	return &cp, nil
}

// ListClaimableBalances returns copies of the balances listing the claimant.
func (l *Ledger) ListClaimableBalances(_ context.Context, claimant string) ([]*ledger.ClaimableBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*ledger.ClaimableBalance
	for _, cb := range l.grants {
		for _, c := range cb.Claimants {
			if c.Destination == claimant {
				cp := *cb
				cp.Claimants = append([]ledger.Claimant(nil), cb.Claimants...)
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

// BaseFee returns the configured reference fee.
func (l *Ledger) BaseFee(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.baseFee, nil
}

// envelope mirrors the txn wire form.
type envelope struct {
	Source     string      `json:"source"`
	Sequence   int64       `json:"sequence"`
	Fee        int64       `json:"fee"`
	Operations []operation `json:"operations"`
	MinTime    int64       `json:"min_time"`
	MaxTime    int64       `json:"max_time"`
	Network    string      `json:"network"`
	Signature  string      `json:"signature"`
}

type operation struct {
	Type        string `json:"type"`
	BalanceID   string `json:"balance_id"`
	Destination string `json:"destination"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

// SubmitTransaction validates and applies a signed envelope.
func (l *Ledger) SubmitTransaction(_ context.Context, raw []byte) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submissions++

	if len(l.failures) > 0 {
		err := l.failures[0]
		l.failures = l.failures[1:]
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &ledger.RejectedError{Code: "tx_malformed"}
	}
	if env.Signature == "" {
		return "", &ledger.RejectedError{Code: "tx_bad_auth"}
	}

	src, ok := l.accounts[env.Source]
	if !ok {
		return "", &ledger.RejectedError{Code: "tx_no_source_account"}
	}
	if env.Sequence != src.Sequence+1 {
		return "", ledger.ErrBadSequence
	}

	now := l.now()
	if env.MaxTime > 0 && now.Unix() > env.MaxTime {
		return "", &ledger.RejectedError{Code: "tx_too_late"}
	}

	fee := decimal.NewFromInt(env.Fee).Div(decimal.NewFromInt(ledger.StroopsPerUnit))
	if l.native(src).LessThan(fee) {
		return "", &ledger.RejectedError{Code: "tx_insufficient_fee"}
	}

	// Validate all operations before applying any: a transaction applies
	// atomically or not at all.
	for _, op := range env.Operations {
		if err := l.validateOp(src, &env, op, now); err != nil {
			return "", err
		}
	}

	l.addNative(src, fee.Neg())
	for _, op := range env.Operations {
		l.applyOp(src, op)
	}
	src.Sequence++

	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (l *Ledger) validateOp(src *ledger.Account, env *envelope, op operation, now time.Time) error {
	switch op.Type {
	case "claim_claimable_balance":
		cb, ok := l.grants[op.BalanceID]
		if !ok {
			return &ledger.RejectedError{Code: "op_does_not_exist"}
		}
		if !cb.ClaimableBy(env.Source, now) {
			return &ledger.RejectedError{Code: "op_cannot_claim"}
		}
		return nil
	case "payment":
		if _, err := decimal.NewFromString(op.Amount); err != nil {
			return &ledger.RejectedError{Code: "op_malformed"}
		}
		// Underfunding is only checked loosely: a claim earlier in the
		// same transaction may fund the payment.
		return nil
	default:
		return &ledger.RejectedError{Code: "op_not_supported"}
	}
}

func (l *Ledger) applyOp(src *ledger.Account, op operation) {
	switch op.Type {
	case "claim_claimable_balance":
		cb := l.grants[op.BalanceID]
		delete(l.grants, op.BalanceID)
		l.addNative(src, cb.Amount)
	case "payment":
		amount, _ := decimal.NewFromString(op.Amount)
		l.addNative(src, amount.Neg())
		if dest, ok := l.accounts[op.Destination]; ok {
			l.addNative(dest, amount)
		}
	}
}

func (l *Ledger) native(a *ledger.Account) decimal.Decimal {
	for _, b := range a.Balances {
		if b.Asset == ledger.AssetNative {
			return b.Amount
		}
	}
	return decimal.Zero
}

func (l *Ledger) addNative(a *ledger.Account, delta decimal.Decimal) {
	for i := range a.Balances {
		if a.Balances[i].Asset == ledger.AssetNative {
			a.Balances[i].Amount = a.Balances[i].Amount.Add(delta)
			return
		}
	}
	a.Balances = append(a.Balances, ledger.Balance{Asset: ledger.AssetNative, Amount: delta})
}
