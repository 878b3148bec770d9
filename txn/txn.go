// Package txn assembles signed transaction intents: an ordered operation
// list (optional claim followed by a payment), a fee, a sequence lease, a
// validity window, and a signature over the canonical encoding. An Intent is
// immutable once built and is consumed by exactly one submission attempt.
package txn

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donsmila-fx/piclaim/ledger"
	"github.com/donsmila-fx/piclaim/sequence"
)

// ErrInvalidDestination reports a destination that is not a valid account
// address.
var ErrInvalidDestination = errors.New("txn: invalid destination address")

// Signer produces signatures with an account's private signing material.
// keys.Keypair satisfies it.
type Signer interface {
	// Sign signs the 32-byte transaction hash.
	Sign(message []byte) ([]byte, error)
	// Address returns the signer's strkey-encoded public key.
	Address() string
}

// AddressChecker validates destination addresses. keys.CheckAddress
// satisfies it; a nil checker skips validation.
type AddressChecker func(address string) error

// Operation types carried in an intent.
const (
	OpClaimClaimableBalance = "claim_claimable_balance"
	OpPayment               = "payment"
)

// Operation is one step of a transaction.
type Operation struct {
	Type string `json:"type"`

	// BalanceID is set for claim operations.
	BalanceID string `json:"balance_id,omitempty"`

	// Destination, Asset, Amount are set for payment operations.
	Destination string `json:"destination,omitempty"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// Intent is a fully built, signed transaction ready for one submission
// attempt.
type Intent struct {
	Source     string         `json:"source"`
	Sequence   sequence.Lease `json:"sequence"`
	FeeStroops int64          `json:"fee"`
	Operations []Operation    `json:"operations"`
	MinTime    int64          `json:"min_time"`
	MaxTime    int64          `json:"max_time"`
	Network    string         `json:"network"`
	Signature  string         `json:"signature,omitempty"`

	hash [sha256.Size]byte
}

// Hash returns the hex-encoded transaction hash the signature covers.
func (i *Intent) Hash() string {
	return hex.EncodeToString(i.hash[:])
}

// GrantID returns the claimed balance id, or "" for a plain payment.
func (i *Intent) GrantID() string {
	for _, op := range i.Operations {
		if op.Type == OpClaimClaimableBalance {
			return op.BalanceID
		}
	}
	return ""
}

// ExpiresAt returns the end of the validity window.
func (i *Intent) ExpiresAt() time.Time {
	return time.Unix(i.MaxTime, 0).UTC()
}

// Envelope returns the signed wire form submitted to the network.
func (i *Intent) Envelope() []byte {
	// Canonical encoding is deterministic for fixed inputs; see hashPayload.
	raw, err := json.Marshal(i)
	if err != nil {
		// Intent contains only marshalable fields; this cannot happen.
		panic(fmt.Sprintf("txn: envelope encode: %v", err))
	}
	return raw
}

// DefaultValidity bounds how long an unsubmitted or unconfirmed intent stays
// usable. Past it the sequence lease has almost certainly gone stale, so the
// intent is discarded rather than retried verbatim.
const DefaultValidity = 30 * time.Second

// Builder constructs intents for one source account and network.
type Builder struct {
	signer   Signer
	network  string
	validity time.Duration
	check    AddressChecker
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithValidity overrides the intent validity window.
func WithValidity(d time.Duration) BuilderOption {
	return func(b *Builder) { b.validity = d }
}

// WithAddressChecker sets the destination address validator.
func WithAddressChecker(check AddressChecker) BuilderOption {
	return func(b *Builder) { b.check = check }
}

// NewBuilder creates a Builder signing for the given network passphrase.
func NewBuilder(signer Signer, network string, opts ...BuilderOption) *Builder {
	b := &Builder{
		signer:   signer,
		network:  network,
		validity: DefaultValidity,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build assembles and signs an intent. If grant is non-nil the operation
// list is [claim(grant), payment(destination, amount)], otherwise just the
// payment. Deterministic given identical inputs including now.
func (b *Builder) Build(
	acct *ledger.Account,
	lease sequence.Lease,
	feePerOpStroops int64,
	destination string,
	amount decimal.Decimal,
	grant *ledger.ClaimableBalance,
	now time.Time,
) (*Intent, error) {
	if b.check != nil {
		if err := b.check(destination); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidDestination, destination)
		}
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("txn: non-positive amount %s", amount)
	}

	var ops []Operation
	if grant != nil {
		ops = append(ops, Operation{
			Type:      OpClaimClaimableBalance,
			BalanceID: grant.ID,
		})
	}
	ops = append(ops, Operation{
		Type:        OpPayment,
		Destination: destination,
		Asset:       ledger.AssetNative,
		Amount:      amount.String(),
	})

	intent := &Intent{
		Source:     acct.ID,
		Sequence:   lease,
		FeeStroops: feePerOpStroops * int64(len(ops)),
		Operations: ops,
		MinTime:    0,
		MaxTime:    now.UTC().Add(b.validity).Unix(),
		Network:    b.network,
	}

	payload, err := hashPayload(intent)
	if err != nil {
		return nil, fmt.Errorf("txn: canonical encode: %w", err)
	}
	intent.hash = sha256.Sum256(payload)

	sig, err := b.signer.Sign(intent.hash[:])
	if err != nil {
		return nil, fmt.Errorf("txn: sign: %w", err)
	}
	intent.Signature = base64.StdEncoding.EncodeToString(sig)

	return intent, nil
}

// hashPayload is the canonical pre-signature encoding: the intent without
// its signature. encoding/json emits struct fields in declaration order, so
// the encoding is deterministic.
func hashPayload(i *Intent) ([]byte, error) {
	unsigned := *i
	unsigned.Signature = ""
	return json.Marshal(&unsigned)
}
