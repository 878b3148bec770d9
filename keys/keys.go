// Package keys derives the account keypair from a BIP-39 mnemonic phrase
// using SLIP-10 ed25519 derivation at the network's registered path
// (m/44'/314159'/0'), and encodes keys in strkey form (G... addresses,
// S... seeds).
package keys

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic reports a malformed or checksum-failing phrase.
var ErrInvalidMnemonic = errors.New("keys: invalid mnemonic phrase")

// ErrInvalidAddress reports a malformed strkey account address.
var ErrInvalidAddress = errors.New("keys: invalid account address")

// coinType is the SLIP-44 registered coin type for the Pi network.
const coinType = 314159

// Keypair holds an account's signing material. It satisfies txn.Signer.
type Keypair struct {
	address string
	priv    ed25519.PrivateKey
}

// Derive derives the keypair for account index 0 from a mnemonic phrase.
func Derive(mnemonic string) (*Keypair, error) {
	return DeriveIndex(mnemonic, 0)
}

// DeriveIndex derives the keypair at m/44'/coinType'/index'.
func DeriveIndex(mnemonic string, index uint32) (*Keypair, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}

	key, err := slip10Derive(seed, []uint32{44, coinType, index})
	if err != nil {
		return nil, err
	}

	priv := ed25519.NewKeyFromSeed(key)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{
		address: encodeStrkey(versionAccount, pub),
		priv:    priv,
	}, nil
}

// Address returns the strkey-encoded public key (G...).
func (k *Keypair) Address() string { return k.address }

// Seed returns the strkey-encoded secret seed (S...). Handle with care.
func (k *Keypair) Seed() string {
	return encodeStrkey(versionSeed, k.priv.Seed())
}

// Sign signs a message (typically a 32-byte transaction hash).
func (k *Keypair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, message), nil
}

// CheckAddress validates a strkey account address. Satisfies
// txn.AddressChecker.
func CheckAddress(address string) error {
	_, err := decodeStrkey(versionAccount, address)
	return err
}

// slip10Derive walks a fully-hardened SLIP-10 ed25519 path. Every index is
// hardened implicitly; ed25519 has no non-hardened derivation.
func slip10Derive(seed []byte, path []uint32) ([]byte, error) {
	const hardened = 0x80000000

	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	if _, err := mac.Write(seed); err != nil {
		return nil, err
	}
	sum := mac.Sum(nil)
	key, chain := sum[:32], sum[32:]

	for _, index := range path {
		var data [1 + 32 + 4]byte
		copy(data[1:33], key)
		binary.BigEndian.PutUint32(data[33:], index|hardened)

		mac = hmac.New(sha512.New, chain)
		if _, err := mac.Write(data[:]); err != nil {
			return nil, err
		}
		sum = mac.Sum(nil)
		key, chain = sum[:32], sum[32:]
	}
	return key, nil
}
