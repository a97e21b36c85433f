package payment

import (
	"context"
	"fmt"
	"strconv"

	"omegamusic/config"
	"omegamusic/logger"
)

// Rejection reasons surfaced to the caller. These are expected outcomes, not
// infrastructure errors.
const (
	ReasonNotFound      = "Transaction not found yet. Wait a minute and try again."
	ReasonFailedOnChain = "Transaction failed on-chain"
	ReasonNoTransfer    = "No valid transfer of the minimum amount to the treasury found"
)

// Result is the outcome of verifying a payment signature.
type Result struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Verifier decides whether a transaction signature represents a qualifying
// token payment to the treasury. Pure verification, no ledger side effects.
type Verifier struct {
	rpc         *RPCClient
	treasuryATA string
	minAmount   uint64
	retry       RetryPolicy
}

// NewVerifier builds a verifier from configuration. The treasury's receiving
// token account is derived once here.
func NewVerifier(cfg *config.Config) (*Verifier, error) {
	if cfg.TreasuryWallet == "" {
		return nil, fmt.Errorf("TREASURY_WALLET not configured")
	}
	ata, err := AssociatedTokenAddress(cfg.TreasuryWallet, cfg.USDCMint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive treasury token account: %w", err)
	}
	return &Verifier{
		rpc:         NewRPCClient(cfg.SolanaRPCURL),
		treasuryATA: ata,
		minAmount:   cfg.MinPaymentRaw,
		retry:       DefaultRetryPolicy(),
	}, nil
}

// NewVerifierWithPolicy is NewVerifier with an explicit retry policy, for
// tests that should not sleep for real.
func NewVerifierWithPolicy(cfg *config.Config, policy RetryPolicy) (*Verifier, error) {
	v, err := NewVerifier(cfg)
	if err != nil {
		return nil, err
	}
	v.retry = policy
	return v, nil
}

// TreasuryTokenAccount returns the derived receiving account, exposed so the
// route layer can log it at startup.
func (v *Verifier) TreasuryTokenAccount() string {
	return v.treasuryATA
}

// Verify fetches the transaction (retrying while the node has not seen it
// yet) and scans its instructions for a token transfer to the treasury
// account of at least the configured minimum. The first qualifying
// instruction settles it; the transaction may contain others.
func (v *Verifier) Verify(ctx context.Context, signature string) (Result, error) {
	var tx *ParsedTransaction
	for attempt := 0; attempt < v.retry.MaxAttempts; attempt++ {
		var err error
		tx, err = v.rpc.GetTransaction(ctx, signature)
		if err != nil {
			return Result{}, fmt.Errorf("failed to fetch transaction %s: %w", signature, err)
		}
		if tx != nil {
			break
		}
		if attempt < v.retry.MaxAttempts-1 {
			if err := v.retry.Wait(ctx); err != nil {
				return Result{}, err
			}
		}
	}

	if tx == nil {
		return Result{Valid: false, Reason: ReasonNotFound}, nil
	}
	if tx.Meta != nil && tx.Meta.Err != nil {
		return Result{Valid: false, Reason: ReasonFailedOnChain}, nil
	}

	for i := range tx.Transaction.Message.Instructions {
		transfer := tx.Transaction.Message.Instructions[i].AsTokenTransfer()
		if transfer == nil || transfer.Info.Destination != v.treasuryATA {
			continue
		}
		amount := transferAmount(transfer)
		if amount >= v.minAmount {
			logger.Info("支付验证通过",
				logger.String("signature", signature),
				logger.Uint64("amount", amount))
			return Result{Valid: true}, nil
		}
	}

	return Result{Valid: false, Reason: ReasonNoTransfer}, nil
}

// transferAmount reads the raw minor-unit amount from either transfer
// variant; transferChecked carries it inside tokenAmount.
func transferAmount(t *TokenTransfer) uint64 {
	raw := t.Info.Amount
	if t.Type == "transferChecked" && t.Info.TokenAmount != nil {
		raw = t.Info.TokenAmount.Amount
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
