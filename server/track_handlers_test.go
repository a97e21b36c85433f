package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"omegamusic/config"
	"omegamusic/model"
	"omegamusic/payment"
	"omegamusic/store"
	"omegamusic/unlock"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubVerifier answers every signature with a fixed result.
type stubVerifier struct {
	result payment.Result
}

func (s stubVerifier) Verify(ctx context.Context, signature string) (payment.Result, error) {
	return s.result, nil
}

func newTestHandler(t *testing.T) (*APIHandler, *store.Ledger, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	backend, err := store.NewFileBackend(filepath.Join(dir, "store.json"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	ledger := store.NewLedger(backend, false)
	cfg := &config.Config{
		MaxTracks: 50,
		DataDir:   dir,
		AudioDir:  filepath.Join(dir, "audio"),
	}
	return NewAPIHandler(ledger, nil, nil, nil, cfg), ledger, cfg
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRegisterTrackRejectsOverCap(t *testing.T) {
	h, ledger, cfg := newTestHandler(t)
	cfg.MaxTracks = 1
	ctx := context.Background()

	_, err := ledger.RegisterTrack(ctx, &model.Track{Name: "Full", AudioURL: "https://cdn.example.com/f.mp3"})
	require.NoError(t, err)

	rec := postJSON(t, h.RegisterTrackHandler, "/api/register-track", map[string]string{
		"audioUrl": "https://cdn.example.com/new.mp3",
		"name":     "Over",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeJSON(t, rec)
	assert.Equal(t, false, resp["success"])
	assert.Contains(t, resp["error"], "Storage limit reached")

	count, err := ledger.GetTrackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "nothing registered past the cap")
}

func TestRegisterTrackSavesAudioLocally(t *testing.T) {
	h, ledger, cfg := newTestHandler(t)

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3 fake mp3 bytes"))
	}))
	t.Cleanup(audio.Close)

	rec := postJSON(t, h.RegisterTrackHandler, "/api/register-track", map[string]string{
		"audioUrl": audio.URL,
		"name":     "Fresh",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.NotContains(t, resp, "warning")
	trackID, _ := resp["trackId"].(string)
	require.NotEmpty(t, trackID)

	track, err := ledger.GetTrack(context.Background(), trackID)
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.NotEmpty(t, track.AudioPath, "downloaded audio registers the local-file variant")
	assert.Empty(t, track.AudioURL)

	_, err = os.Stat(filepath.Join(cfg.AudioDir, track.AudioPath))
	assert.NoError(t, err, "the audio bytes landed on disk")
}

func TestRegisterTrackFallsBackToURL(t *testing.T) {
	h, ledger, _ := newTestHandler(t)

	audio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusInternalServerError)
	}))
	t.Cleanup(audio.Close)

	rec := postJSON(t, h.RegisterTrackHandler, "/api/register-track", map[string]string{
		"audioUrl": audio.URL,
		"name":     "Expiring",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON(t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Contains(t, resp["warning"], "may expire")
	trackID, _ := resp["trackId"].(string)
	require.NotEmpty(t, trackID)

	track, err := ledger.GetTrack(context.Background(), trackID)
	require.NoError(t, err)
	require.NotNil(t, track)
	assert.Equal(t, audio.URL, track.AudioURL, "track kept as the expiring-URL variant")
	assert.Empty(t, track.AudioPath)
}

func downloadRequest(id, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/track/"+id+"/download?signature="+signature, nil)
	return mux.SetURLVars(req, map[string]string{"id": id})
}

func TestDownloadRejectedPaymentMapsTo400(t *testing.T) {
	h, ledger, _ := newTestHandler(t)
	ctx := context.Background()

	id, err := ledger.RegisterTrack(ctx, &model.Track{Name: "Locked", AudioURL: "https://cdn.example.com/l.mp3"})
	require.NoError(t, err)
	h.protocol = unlock.NewProtocol(stubVerifier{result: payment.Result{Valid: false, Reason: payment.ReasonNoTransfer}}, ledger)

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, downloadRequest(id, "sig-bad"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), payment.ReasonNoTransfer)

	// The signature was never recorded.
	other, err := ledger.IsSignatureRedeemedForOtherTrack(ctx, "sig-bad", "anything")
	require.NoError(t, err)
	assert.False(t, other)
}

func TestDownloadConflictMapsTo403(t *testing.T) {
	h, ledger, _ := newTestHandler(t)
	ctx := context.Background()

	id, err := ledger.RegisterTrack(ctx, &model.Track{Name: "Wanted", AudioURL: "https://cdn.example.com/w.mp3"})
	require.NoError(t, err)
	require.NoError(t, ledger.MarkRedeemed(ctx, "sig1", "some-other-track"))
	h.protocol = unlock.NewProtocol(stubVerifier{result: payment.Result{Valid: true}}, ledger)

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, downloadRequest(id, "sig1"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "already used for another track")
	assert.NotContains(t, rec.Header().Get("Content-Disposition"), "attachment", "no audio streamed on conflict")
}

func TestDownloadRequiresSignature(t *testing.T) {
	h, ledger, _ := newTestHandler(t)
	id, err := ledger.RegisterTrack(context.Background(), &model.Track{Name: "X", AudioURL: "https://cdn.example.com/x.mp3"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.DownloadHandler(rec, downloadRequest(id, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing signature")
}
