package server

import (
	"net/http"
	"strings"

	"omegamusic/logger"
)

// VerifyPaymentHandler runs a standalone payment check without touching the
// redemption registry; the download route is where redemption happens.
func (h *APIHandler) VerifyPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TransactionSignature string `json:"transactionSignature"`
		TrackID              string `json:"trackId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	signature := strings.TrimSpace(body.TransactionSignature)
	if signature == "" {
		writeError(w, http.StatusBadRequest, "Missing or invalid transactionSignature")
		return
	}
	if h.verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "Payment verification not configured")
		return
	}

	result, err := h.verifier.Verify(r.Context(), signature)
	if err != nil {
		logger.Error("payment verification error", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Payment verification failed")
		return
	}
	if !result.Valid {
		writeError(w, http.StatusBadRequest, result.Reason)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"trackId": body.TrackID,
	})
}
