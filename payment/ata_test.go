package payment

import (
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// testWallet returns a syntactically valid 32-byte base58 address.
func testWallet(fill byte) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = fill + byte(i)
	}
	return base58.Encode(b)
}

func TestAssociatedTokenAddressDeterministic(t *testing.T) {
	wallet := testWallet(1)
	first, err := AssociatedTokenAddress(wallet, testMint)
	require.NoError(t, err)
	second, err := AssociatedTokenAddress(wallet, testMint)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	raw := base58.Decode(first)
	assert.Len(t, raw, 32)
	assert.False(t, isOnCurve(raw), "a program derived address must be off the curve")
}

func TestAssociatedTokenAddressVariesByWallet(t *testing.T) {
	a, err := AssociatedTokenAddress(testWallet(1), testMint)
	require.NoError(t, err)
	b, err := AssociatedTokenAddress(testWallet(2), testMint)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, testWallet(1), "the token account is distinct from the wallet")
}

func TestAssociatedTokenAddressRejectsBadInput(t *testing.T) {
	_, err := AssociatedTokenAddress("not-base58!!", testMint)
	assert.Error(t, err)
	_, err = AssociatedTokenAddress(testWallet(1), "tooshort")
	assert.Error(t, err)
}
