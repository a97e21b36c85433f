package server

import (
	"encoding/json"
	"net/http"

	"omegamusic/config"
	"omegamusic/logger"
	"omegamusic/payment"
	"omegamusic/storage"
	"omegamusic/store"
	"omegamusic/unlock"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	ledger     *store.Ledger
	verifier   *payment.Verifier
	protocol   *unlock.Protocol
	audioStore *storage.AudioStore // nil 时音频保存到本地目录
	cfg        *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	ledger *store.Ledger,
	verifier *payment.Verifier,
	protocol *unlock.Protocol,
	audioStore *storage.AudioStore,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		ledger:     ledger,
		verifier:   verifier,
		protocol:   protocol,
		audioStore: audioStore,
		cfg:        cfg,
	}
}

// decodeBody 解析JSON请求体
func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode JSON response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   msg,
	})
}
