package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"omegamusic/logger"
	"omegamusic/model"
	"omegamusic/storage"
	"omegamusic/unlock"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// previewBytes 预览返回的最大字节数，约25秒的MP3
const previewBytes = 500000

var whitespaceRun = regexp.MustCompile(`\s+`)

type registerTrackRequest struct {
	AudioURL string `json:"audioUrl"`
	Name     string `json:"name"`
	Lyrics   string `json:"lyrics"`
}

// RegisterTrackHandler downloads the generated audio and registers the track.
// When the download fails the track is still registered with the external
// URL so the user does not lose it, with a warning that the URL may expire.
func (h *APIHandler) RegisterTrackHandler(w http.ResponseWriter, r *http.Request) {
	count, err := h.ledger.GetTrackCount(r.Context())
	if err != nil {
		logger.Error("failed to read track count", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to register track")
		return
	}
	if count >= h.cfg.MaxTracks {
		writeError(w, http.StatusForbidden,
			fmt.Sprintf("Storage limit reached (max %d tracks). Delete old tracks to add new ones.", h.cfg.MaxTracks))
		return
	}

	var req registerTrackRequest
	if err := decodeBody(r, &req); err != nil || strings.TrimSpace(req.AudioURL) == "" {
		writeError(w, http.StatusBadRequest, "Missing audioUrl")
		return
	}
	audioURL := strings.TrimSpace(req.AudioURL)
	displayName := strings.TrimSpace(req.Name)
	if displayName == "" {
		displayName = "Untitled"
	}
	lyrics := strings.TrimSpace(req.Lyrics)

	// 下载音频，第一次25秒超时，失败后用15秒超时再试一次
	audio, err := fetchAudio(audioURL, 25*time.Second)
	if err != nil {
		logger.Warn("音频下载失败，重试一次", logger.String("url", audioURL), logger.ErrorField(err))
		audio, err = fetchAudio(audioURL, 15*time.Second)
	}
	if err != nil || len(audio) == 0 {
		// 下载失败时按外部URL注册，URL可能过期
		h.registerByURL(w, r, audioURL, displayName, lyrics)
		return
	}

	trackID := uuid.NewString()
	track := &model.Track{Name: displayName, Lyrics: lyrics}

	if h.audioStore != nil {
		blobURL, err := h.audioStore.PutAudio(r.Context(), trackID, bytes.NewReader(audio), int64(len(audio)), "audio/mpeg")
		if err != nil {
			logger.Error("音频上传到存储桶失败", logger.String("trackId", trackID), logger.ErrorField(err))
			h.registerByURL(w, r, audioURL, displayName, lyrics)
			return
		}
		track.BlobURL = blobURL
	} else {
		fileName := trackID + ".mp3"
		if err := os.MkdirAll(h.cfg.AudioDir, 0755); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save audio")
			return
		}
		if err := os.WriteFile(filepath.Join(h.cfg.AudioDir, fileName), audio, 0644); err != nil {
			logger.Error("音频写入本地文件失败", logger.String("trackId", trackID), logger.ErrorField(err))
			writeError(w, http.StatusInternalServerError, "Failed to save audio")
			return
		}
		track.AudioPath = fileName
	}

	// 注册失败意味着持久化未确认（包括写入后回读失败），不得报告成功
	if err := h.ledger.RegisterTrackWithID(r.Context(), trackID, track); err != nil {
		logger.Error("track registration failed", logger.String("trackId", trackID), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Track not persisted; try again.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"trackId": trackID,
	})
}

// registerByURL registers the track with its external URL variant only.
func (h *APIHandler) registerByURL(w http.ResponseWriter, r *http.Request, audioURL, name, lyrics string) {
	trackID, err := h.ledger.RegisterTrack(r.Context(), &model.Track{
		Name:     name,
		AudioURL: audioURL,
		Lyrics:   lyrics,
	})
	if err != nil {
		logger.Error("fallback track registration failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to register track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"trackId": trackID,
		"warning": "Audio saved by URL; it may expire. Unlock soon to keep it.",
	})
}

// GetTrackHandler returns a track's name and lyrics.
func (h *APIHandler) GetTrackHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.ledger.GetTrack(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"name":    track.Name,
		"lyrics":  track.Lyrics,
	})
}

// UpdateLyricsHandler replaces a track's lyrics.
func (h *APIHandler) UpdateLyricsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body struct {
		Lyrics string `json:"lyrics"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	track, err := h.ledger.SetLyrics(r.Context(), id, body.Lyrics)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update lyrics")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"lyrics":  track.Lyrics,
	})
}

// ListenHandler increments a track's play counter.
func (h *APIHandler) ListenHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.ledger.GetTrack(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load track")
		return
	}
	if track == nil {
		writeError(w, http.StatusNotFound, "Track not found")
		return
	}
	plays, err := h.ledger.IncrementPlay(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count play")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"plays":   plays,
	})
}

// ValidateTracksHandler filters the given ids down to tracks whose audio is
// still reachable.
func (h *APIHandler) ValidateTracksHandler(w http.ResponseWriter, r *http.Request) {
	validIDs := make([]string, 0)
	idsParam := strings.TrimSpace(r.URL.Query().Get("ids"))
	if idsParam == "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "validIds": validIDs})
		return
	}
	for _, id := range strings.Split(idsParam, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		track, err := h.ledger.GetTrack(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load tracks")
			return
		}
		if track == nil {
			continue
		}
		if h.audioAvailable(r, track) {
			validIDs = append(validIDs, id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"validIds": validIDs,
	})
}

func (h *APIHandler) audioAvailable(r *http.Request, track *model.Track) bool {
	switch {
	case track.BlobURL != "":
		if h.audioStore == nil {
			return false
		}
		objectName := storage.ObjectNameFromBlobURL(track.BlobURL)
		if objectName == "" {
			return false
		}
		_, err := h.audioStore.StatAudio(r.Context(), objectName)
		return err == nil
	case track.AudioPath != "":
		_, err := os.Stat(filepath.Join(h.cfg.AudioDir, track.AudioPath))
		return err == nil
	default:
		return track.AudioURL != ""
	}
}

// PreviewHandler streams the first previewBytes of a track's audio without
// requiring an unlock.
func (h *APIHandler) PreviewHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	track, err := h.ledger.GetTrack(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load track", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}

	body, contentType, err := h.openAudio(r, track)
	if err != nil {
		logger.Warn("预览音频打开失败", logger.String("trackId", id), logger.ErrorField(err))
		http.Error(w, "Audio unavailable", http.StatusBadGateway)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", contentType)
	if _, err := io.CopyN(w, body, previewBytes); err != nil && err != io.EOF {
		logger.Debug("preview stream interrupted", logger.String("trackId", id), logger.ErrorField(err))
	}
}

// DownloadHandler redeems a payment signature for the track and, on success,
// streams the full audio as an attachment. Access is proven by presenting a
// qualifying signature, not by session state.
func (h *APIHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	signature := strings.TrimSpace(r.URL.Query().Get("signature"))
	if signature == "" {
		http.Error(w, "Missing signature", http.StatusBadRequest)
		return
	}
	track, err := h.ledger.GetTrack(r.Context(), id)
	if err != nil {
		http.Error(w, "Failed to load track", http.StatusInternalServerError)
		return
	}
	if track == nil {
		http.Error(w, "Track not found", http.StatusNotFound)
		return
	}
	if h.protocol == nil {
		http.Error(w, "Payment verification not configured", http.StatusServiceUnavailable)
		return
	}

	outcome, err := h.protocol.Redeem(r.Context(), signature, id)
	if err != nil {
		logger.Error("redemption failed", logger.String("trackId", id), logger.ErrorField(err))
		http.Error(w, "Payment verification failed", http.StatusInternalServerError)
		return
	}
	switch outcome.Status {
	case unlock.StatusRejected:
		http.Error(w, outcome.Reason, http.StatusBadRequest)
		return
	case unlock.StatusConflict:
		http.Error(w, outcome.Reason, http.StatusForbidden)
		return
	}

	body, contentType, err := h.openAudio(r, track)
	if err != nil {
		logger.Error("下载音频打开失败", logger.String("trackId", id), logger.ErrorField(err))
		http.Error(w, "Download failed", http.StatusBadGateway)
		return
	}
	defer body.Close()

	filename := whitespaceRun.ReplaceAllString(track.Name, "_") + ".mp3"
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := io.Copy(w, body); err != nil {
		logger.Debug("download stream interrupted", logger.String("trackId", id), logger.ErrorField(err))
	}
}

// openAudio opens the track's audio bytes from whichever variant it carries.
func (h *APIHandler) openAudio(r *http.Request, track *model.Track) (io.ReadCloser, string, error) {
	switch {
	case track.BlobURL != "":
		if h.audioStore == nil {
			return nil, "", fmt.Errorf("blob store not configured")
		}
		objectName := storage.ObjectNameFromBlobURL(track.BlobURL)
		if objectName == "" {
			return nil, "", fmt.Errorf("unrecognized blob url %q", track.BlobURL)
		}
		object, err := h.audioStore.GetAudio(r.Context(), objectName)
		if err != nil {
			return nil, "", err
		}
		return object, "audio/mpeg", nil
	case track.AudioPath != "":
		f, err := os.Open(filepath.Join(h.cfg.AudioDir, track.AudioPath))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open local audio: %w", err)
		}
		return f, "audio/mpeg", nil
	case track.AudioURL != "":
		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, track.AudioURL, nil)
		if err != nil {
			return nil, "", err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("upstream audio fetch failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, "", fmt.Errorf("upstream audio returned status %d", resp.StatusCode)
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "audio/mpeg"
		}
		return resp.Body, contentType, nil
	default:
		return nil, "", fmt.Errorf("track has no audio source")
	}
}

// fetchAudio downloads the full audio bytes with a hard timeout.
func fetchAudio(url string, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("audio download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audio download returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("audio download read failed: %w", err)
	}
	return data, nil
}
