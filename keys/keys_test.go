package keys

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Standard BIP-39 test vector phrase (valid checksum).
const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestDerive_Deterministic(t *testing.T) {
	a, err := Derive(testMnemonic)
	require.NoError(t, err)
	b, err := Derive(testMnemonic)
	require.NoError(t, err)

	assert.Equal(t, a.Address(), b.Address())
	assert.Equal(t, a.Seed(), b.Seed())
}

func TestDerive_AddressShape(t *testing.T) {
	kp, err := Derive(testMnemonic)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(kp.Address(), "G"), "address %q should start with G", kp.Address())
	assert.Len(t, kp.Address(), 56)
	assert.True(t, strings.HasPrefix(kp.Seed(), "S"), "seed %q should start with S", kp.Seed())
	assert.NoError(t, CheckAddress(kp.Address()))
}

func TestDerive_IndexesDiffer(t *testing.T) {
	a, err := DeriveIndex(testMnemonic, 0)
	require.NoError(t, err)
	b, err := DeriveIndex(testMnemonic, 1)
	require.NoError(t, err)

	assert.NotEqual(t, a.Address(), b.Address())
}

func TestDerive_InvalidMnemonic(t *testing.T) {
	tests := []string{
		"",
		"not a mnemonic",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", // bad checksum
	}
	for _, phrase := range tests {
		_, err := Derive(phrase)
		assert.ErrorIs(t, err, ErrInvalidMnemonic, "phrase %q", phrase)
	}
}

func TestSign_VerifiesAgainstAddress(t *testing.T) {
	kp, err := Derive(testMnemonic)
	require.NoError(t, err)

	message := []byte("transaction hash stand-in, 32b!!")
	sig, err := kp.Sign(message)
	require.NoError(t, err)

	pub, err := decodeStrkey(versionAccount, kp.Address())
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), message, sig))
}

func TestCheckAddress(t *testing.T) {
	kp, err := Derive(testMnemonic)
	require.NoError(t, err)

	assert.NoError(t, CheckAddress(kp.Address()))
	assert.Error(t, CheckAddress(""))
	assert.Error(t, CheckAddress("GSHORT"))
	assert.Error(t, CheckAddress(kp.Seed()), "seed strkey must not pass as an address")

	// Flip one character: checksum must catch it.
	addr := []byte(kp.Address())
	if addr[10] == 'A' {
		addr[10] = 'B'
	} else {
		addr[10] = 'A'
	}
	assert.Error(t, CheckAddress(string(addr)))
}

func TestStrkeyRoundTrip(t *testing.T) {
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	encoded := encodeStrkey(versionAccount, payload)
	decoded, err := decodeStrkey(versionAccount, encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}
