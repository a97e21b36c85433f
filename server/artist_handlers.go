package server

import (
	"net/http"
	"strings"

	"omegamusic/logger"
	"omegamusic/model"
	"omegamusic/store"

	"github.com/gorilla/mux"
)

// GetArtistsHandler returns all artist profiles owned by a wallet.
func (h *APIHandler) GetArtistsHandler(w http.ResponseWriter, r *http.Request) {
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "Missing wallet")
		return
	}
	artists, err := h.ledger.GetArtists(r.Context(), wallet)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load artists")
		return
	}
	if artists == nil {
		artists = []*model.Artist{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"artists": artists,
	})
}

// CreateArtistHandler creates an artist profile for a wallet.
func (h *APIHandler) CreateArtistHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Wallet   string `json:"wallet"`
		Name     string `json:"name"`
		ImageURL string `json:"imageUrl"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	wallet := strings.TrimSpace(body.Wallet)
	name := strings.TrimSpace(body.Name)
	if wallet == "" || name == "" {
		writeError(w, http.StatusBadRequest, "Missing wallet or name")
		return
	}
	artist, err := h.ledger.CreateArtist(r.Context(), wallet, name, strings.TrimSpace(body.ImageURL))
	if err != nil {
		logger.Error("failed to create artist", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create artist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"artist":  artist,
	})
}

type artistUpdateBody struct {
	Name       *string `json:"name"`
	ImageURL   *string `json:"imageUrl"`
	Slug       *string `json:"slug"`
	Bio        *string `json:"bio"`
	YoutubeURL *string `json:"youtubeUrl"`
	WebsiteURL *string `json:"websiteUrl"`
}

// UpdateArtistHandler applies a partial update to an artist. Only the owning
// wallet may update it; ownership here is wallet-string equality, the wallet
// signing flow lives outside this service.
func (h *APIHandler) UpdateArtistHandler(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "Missing wallet")
		return
	}
	var body artistUpdateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	artist, err := h.ledger.UpdateArtist(r.Context(), wallet, artistID, store.ArtistUpdate{
		Name:       body.Name,
		ImageURL:   body.ImageURL,
		Slug:       body.Slug,
		Bio:        body.Bio,
		YoutubeURL: body.YoutubeURL,
		WebsiteURL: body.WebsiteURL,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update artist")
		return
	}
	if artist == nil {
		writeError(w, http.StatusNotFound, "Artist not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"artist":  artist,
	})
}

// DeleteArtistHandler removes an artist and the wallet's assignments to it.
func (h *APIHandler) DeleteArtistHandler(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	wallet := strings.TrimSpace(r.URL.Query().Get("wallet"))
	if wallet == "" {
		writeError(w, http.StatusBadRequest, "Missing wallet")
		return
	}
	if err := h.ledger.DeleteArtist(r.Context(), wallet, artistID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete artist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// LikeArtistHandler increments the like counter on POST and reads it on GET.
func (h *APIHandler) LikeArtistHandler(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	artist, err := h.ledger.GetArtistByID(r.Context(), artistID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load artist")
		return
	}
	if artist == nil {
		writeError(w, http.StatusNotFound, "Artist not found")
		return
	}

	var likes int
	if r.Method == http.MethodPost {
		likes, err = h.ledger.LikeArtist(r.Context(), artistID)
	} else {
		likes, err = h.ledger.GetArtistLikes(r.Context(), artistID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count likes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"likes":   likes,
	})
}

// ArtistTracksHandler returns the artist's assigned tracks.
func (h *APIHandler) ArtistTracksHandler(w http.ResponseWriter, r *http.Request) {
	artistID := mux.Vars(r)["id"]
	artist, err := h.ledger.GetArtistByID(r.Context(), artistID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load artist")
		return
	}
	if artist == nil {
		writeError(w, http.StatusNotFound, "Artist not found")
		return
	}
	tracks, err := h.artistTrackList(r, artist)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tracks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"artist":  artist,
		"tracks":  tracks,
	})
}

// ArtistBySlugHandler looks an artist up by profile slug. The raw query is
// normalized the same way slugs are stored.
func (h *APIHandler) ArtistBySlugHandler(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		writeError(w, http.StatusBadRequest, "Missing slug")
		return
	}
	artist, err := h.ledger.GetArtistBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load artist")
		return
	}
	if artist == nil {
		writeError(w, http.StatusNotFound, "Artist not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"artist":  artist,
	})
}

// ArtistProfileHandler returns the artist page payload: profile, assigned
// tracks and like count.
func (h *APIHandler) ArtistProfileHandler(w http.ResponseWriter, r *http.Request) {
	slug := strings.TrimSpace(r.URL.Query().Get("slug"))
	if slug == "" {
		writeError(w, http.StatusBadRequest, "Missing slug")
		return
	}
	artist, err := h.ledger.GetArtistBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load artist")
		return
	}
	if artist == nil {
		writeError(w, http.StatusNotFound, "Artist not found")
		return
	}
	tracks, err := h.artistTrackList(r, artist)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load tracks")
		return
	}
	likes, err := h.ledger.GetArtistLikes(r.Context(), artist.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load likes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"artist":  artist,
		"tracks":  tracks,
		"likes":   likes,
	})
}

func (h *APIHandler) artistTrackList(r *http.Request, artist *model.Artist) ([]map[string]string, error) {
	trackIDs, err := h.ledger.GetTracksByArtist(r.Context(), artist.Wallet, artist.ID)
	if err != nil {
		return nil, err
	}
	tracks := make([]map[string]string, 0, len(trackIDs))
	for _, tid := range trackIDs {
		t, err := h.ledger.GetTrack(r.Context(), tid)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		tracks = append(tracks, map[string]string{"id": tid, "name": t.Name})
	}
	return tracks, nil
}

// AssignTrackHandler maps a track to one of the wallet's artists, or clears
// the mapping when artistId is empty. The artist must belong to the wallet;
// that invariant is checked here, not in the ledger.
func (h *APIHandler) AssignTrackHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Wallet   string  `json:"wallet"`
		TrackID  string  `json:"trackId"`
		ArtistID *string `json:"artistId"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	wallet := strings.TrimSpace(body.Wallet)
	trackID := strings.TrimSpace(body.TrackID)
	if wallet == "" || trackID == "" {
		writeError(w, http.StatusBadRequest, "Missing wallet or trackId")
		return
	}

	artistID := ""
	if body.ArtistID != nil {
		artistID = strings.TrimSpace(*body.ArtistID)
	}
	if artistID != "" {
		artists, err := h.ledger.GetArtists(r.Context(), wallet)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load artists")
			return
		}
		owned := false
		for _, a := range artists {
			if a.ID == artistID {
				owned = true
				break
			}
		}
		if !owned {
			writeError(w, http.StatusBadRequest, "Artist not found")
			return
		}
	}

	if err := h.ledger.SetAssignment(r.Context(), wallet, trackID, artistID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to assign track")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// TrendingHandler returns the ranked view of artists with unlocked tracks.
func (h *APIHandler) TrendingHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.Trending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute trending")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"trending": list,
	})
}
