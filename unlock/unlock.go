package unlock

import (
	"context"
	"errors"
	"fmt"

	"omegamusic/payment"
	"omegamusic/store"
)

// Status is the terminal state of a redemption attempt.
type Status string

const (
	// StatusRedeemed: the payment qualified and the signature now maps to the
	// track. Re-redeeming the same pair lands here again.
	StatusRedeemed Status = "redeemed"
	// StatusRejected: the payment did not qualify; the caller may retry with
	// a different signature.
	StatusRejected Status = "rejected"
	// StatusConflict: the signature already unlocked a different track.
	StatusConflict Status = "conflict"
)

// Outcome is the result of a redemption attempt.
type Outcome struct {
	Status Status
	Reason string
}

// Verifier is the slice of the payment verifier the protocol needs.
type Verifier interface {
	Verify(ctx context.Context, signature string) (payment.Result, error)
}

// Protocol implements "redeem signature for track": verify the payment, then
// record the redemption in the ledger, enforcing at-most-one-track-per-
// signature. Redemption of the same (signature, track) pair is idempotent.
type Protocol struct {
	verifier Verifier
	ledger   *store.Ledger
}

// NewProtocol creates the redemption protocol.
func NewProtocol(verifier Verifier, ledger *store.Ledger) *Protocol {
	return &Protocol{verifier: verifier, ledger: ledger}
}

// Redeem runs one redemption attempt to a terminal state. An error return
// means infrastructure failed (RPC transport, persistence), not that the
// payment was judged invalid.
func (p *Protocol) Redeem(ctx context.Context, signature, trackID string) (Outcome, error) {
	result, err := p.verifier.Verify(ctx, signature)
	if err != nil {
		return Outcome{}, fmt.Errorf("payment verification failed: %w", err)
	}
	if !result.Valid {
		return Outcome{Status: StatusRejected, Reason: result.Reason}, nil
	}

	usedElsewhere, err := p.ledger.IsSignatureRedeemedForOtherTrack(ctx, signature, trackID)
	if err != nil {
		return Outcome{}, err
	}
	if usedElsewhere {
		return Outcome{Status: StatusConflict, Reason: "This payment was already used for another track"}, nil
	}

	if err := p.ledger.MarkRedeemed(ctx, signature, trackID); err != nil {
		// A concurrent redemption can still win between the check and the
		// mark; report it the same way as a detected conflict.
		if errors.Is(err, store.ErrSignatureConflict) {
			return Outcome{Status: StatusConflict, Reason: "This payment was already used for another track"}, nil
		}
		return Outcome{}, err
	}
	return Outcome{Status: StatusRedeemed}, nil
}
