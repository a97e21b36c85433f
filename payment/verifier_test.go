package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"omegamusic/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(rpcURL, wallet string) *config.Config {
	return &config.Config{
		SolanaRPCURL:   rpcURL,
		TreasuryWallet: wallet,
		USDCMint:       testMint,
		MinPaymentRaw:  500000,
	}
}

// fastPolicy keeps the production schedule shape but records sleeps instead
// of performing them.
func fastPolicy(slept *int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Interval:    2 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			*slept++
			return nil
		},
	}
}

func rpcServer(t *testing.T, result string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%s}`, result)
	}))
	t.Cleanup(ts.Close)
	return ts, &calls
}

func transferTx(destination string, amount uint64) string {
	return fmt.Sprintf(`{
		"meta": {"err": null},
		"transaction": {"message": {"instructions": [
			{"program": "system", "parsed": {"type": "createAccount", "info": {}}},
			{"program": "spl-token", "parsed": {"type": "transfer", "info": {"destination": %q, "amount": "%d"}}}
		]}}
	}`, destination, amount)
}

func transferCheckedTx(destination string, amount uint64) string {
	return fmt.Sprintf(`{
		"meta": {"err": null},
		"transaction": {"message": {"instructions": [
			{"program": "spl-memo", "parsed": "thanks for the music"},
			{"program": "spl-token", "parsed": {"type": "transferChecked", "info": {"destination": %q, "tokenAmount": {"amount": "%d"}}}}
		]}}
	}`, destination, amount)
}

func TestVerifyNotFoundRetriesThenRejects(t *testing.T) {
	wallet := testWallet(1)
	ts, calls := rpcServer(t, "null")

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "sig-unknown")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonNotFound, result.Reason)
	assert.EqualValues(t, 4, atomic.LoadInt32(calls), "all attempts are used")
	assert.Equal(t, 3, slept, "no sleep after the final attempt")
}

func TestVerifyFailedOnChain(t *testing.T) {
	wallet := testWallet(1)
	ts, _ := rpcServer(t, `{"meta": {"err": {"InstructionError": [0, "Custom"]}}, "transaction": {"message": {"instructions": []}}}`)

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "sig-failed")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonFailedOnChain, result.Reason)
	assert.Equal(t, 0, slept, "found on the first attempt")
}

func TestVerifyAcceptsTransfer(t *testing.T) {
	wallet := testWallet(1)
	ata, err := AssociatedTokenAddress(wallet, testMint)
	require.NoError(t, err)
	ts, _ := rpcServer(t, transferTx(ata, 500000))

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "sig-good")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
}

func TestVerifyAcceptsTransferChecked(t *testing.T) {
	wallet := testWallet(2)
	ata, err := AssociatedTokenAddress(wallet, testMint)
	require.NoError(t, err)
	ts, _ := rpcServer(t, transferCheckedTx(ata, 750000))

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "sig-checked")
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerifyRejectsBelowMinimum(t *testing.T) {
	wallet := testWallet(1)
	ata, err := AssociatedTokenAddress(wallet, testMint)
	require.NoError(t, err)
	ts, _ := rpcServer(t, transferTx(ata, 499999))

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "sig-small")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonNoTransfer, result.Reason)
}

func TestVerifyRejectsWrongDestination(t *testing.T) {
	wallet := testWallet(1)
	otherATA, err := AssociatedTokenAddress(testWallet(9), testMint)
	require.NoError(t, err)
	ts, _ := rpcServer(t, transferTx(otherATA, 1000000))

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	result, err := v.Verify(context.Background(), "sig-elsewhere")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonNoTransfer, result.Reason)
}

func TestVerifyPropagatesRPCFailure(t *testing.T) {
	wallet := testWallet(1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(ts.Close)

	slept := 0
	v, err := NewVerifierWithPolicy(testConfig(ts.URL, wallet), fastPolicy(&slept))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), "sig-any")
	assert.Error(t, err, "transport faults are errors, not rejections")
}

func TestNewVerifierRequiresTreasury(t *testing.T) {
	_, err := NewVerifier(testConfig("http://localhost", ""))
	assert.Error(t, err)
}
