package payment

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcutil/base58"
)

// SPL token program addresses, fixed across the chain.
const (
	tokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	associatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

var pdaMarker = []byte("ProgramDerivedAddress")

// AssociatedTokenAddress derives the token account that holds the wallet's
// balance of the given mint. This is a pure derivation, no RPC call: the
// address is the first program-derived address of the associated-token
// program over the seeds (wallet, token program, mint), searching bump seeds
// downward until the candidate falls off the ed25519 curve.
func AssociatedTokenAddress(wallet, mint string) (string, error) {
	walletKey, err := decodeAddress(wallet)
	if err != nil {
		return "", fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}
	mintKey, err := decodeAddress(mint)
	if err != nil {
		return "", fmt.Errorf("invalid mint address %q: %w", mint, err)
	}
	tokenProgram, err := decodeAddress(tokenProgramID)
	if err != nil {
		return "", err
	}
	ataProgram, err := decodeAddress(associatedTokenProgramID)
	if err != nil {
		return "", err
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		h.Write(walletKey)
		h.Write(tokenProgram)
		h.Write(mintKey)
		h.Write([]byte{byte(bump)})
		h.Write(ataProgram)
		h.Write(pdaMarker)
		candidate := h.Sum(nil)
		if !isOnCurve(candidate) {
			return base58.Encode(candidate), nil
		}
	}
	return "", fmt.Errorf("no off-curve associated token address found for wallet %s", wallet)
}

func decodeAddress(s string) ([]byte, error) {
	raw := base58.Decode(s)
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte base58 address, got %d bytes", len(raw))
	}
	return raw, nil
}

// isOnCurve reports whether b is a valid ed25519 curve point. Program
// derived addresses must not be.
func isOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
