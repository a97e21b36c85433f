package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"omegamusic/logger"
	"omegamusic/model"

	"github.com/google/uuid"
)

// Ledger is the single source of truth for all track, artist, assignment,
// counter and redeemed-signature state. It keeps the snapshot in memory,
// loads it lazily from the injected Backend and persists after every
// mutation. Lookup misses are reported as nil results, not errors; errors
// mean the backend failed. Methods return copies, never pointers into the
// cached snapshot: callers encode results without holding the mutex.
type Ledger struct {
	backend      Backend
	alwaysReload bool

	// mu 保护快照，处理器并发调用所有方法
	mu     sync.Mutex
	snap   *model.Snapshot
	loaded bool
}

// NewLedger creates a Ledger on top of backend. With alwaysReload set, every
// mutating operation re-reads the persisted snapshot before applying its
// change; remote-backed deployments run many short-lived instances and must
// not trust a long-lived cache.
func NewLedger(backend Backend, alwaysReload bool) *Ledger {
	return &Ledger{
		backend:      backend,
		alwaysReload: alwaysReload,
		snap:         model.NewSnapshot(),
	}
}

// Invalidate marks the in-memory cache stale so the next operation reloads
// from the backend. The file backend's watcher calls this when another
// process rewrites the store file.
func (l *Ledger) Invalidate() {
	l.mu.Lock()
	l.loaded = false
	l.mu.Unlock()
}

// ensureLoaded loads the snapshot if the cache is stale. Callers hold mu.
func (l *Ledger) ensureLoaded(ctx context.Context, force bool) error {
	if l.loaded && !force && !l.alwaysReload {
		return nil
	}
	snap, err := l.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load store snapshot: %w", err)
	}
	if snap != nil {
		l.snap = snap
	} else if l.snap == nil {
		l.snap = model.NewSnapshot()
	}
	l.loaded = true
	return nil
}

// persist saves the snapshot. An ErrEmptyOverwrite from the backend is the
// anti-corruption guard firing: the persisted state is newer than ours, so
// reload it and report success; the caller's read-after-write then observes
// the pre-existing state.
func (l *Ledger) persist(ctx context.Context) error {
	err := l.backend.Save(ctx, l.snap)
	if err == nil {
		return nil
	}
	if err == ErrEmptyOverwrite {
		return l.ensureLoaded(ctx, true)
	}
	return fmt.Errorf("failed to persist store snapshot: %w", err)
}

// RegisterTrack allocates a fresh id for track and persists it. The track
// must carry exactly one audio-location variant.
func (l *Ledger) RegisterTrack(ctx context.Context, track *model.Track) (string, error) {
	id := uuid.NewString()
	if err := l.RegisterTrackWithID(ctx, id, track); err != nil {
		return "", err
	}
	return id, nil
}

// RegisterTrackWithID persists track under a caller-chosen id (used when the
// id names the stored audio object). The cache is force-reloaded first so a
// concurrent writer's tracks are merged rather than clobbered, and the write
// is verified by reading the snapshot back: a registration must never report
// success when the persisted store does not contain it.
func (l *Ledger) RegisterTrackWithID(ctx context.Context, id string, track *model.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, true); err != nil {
		return err
	}
	l.snap.Tracks[id] = track
	if err := l.persist(ctx); err != nil {
		return err
	}

	// 写入后回读校验：并发的空缓存重载可能覆盖掉刚写入的记录
	saved, err := l.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify track registration: %w", err)
	}
	if saved == nil || saved.Tracks[id] == nil {
		logger.Error("track missing from persisted store after save",
			logger.String("trackId", id))
		return fmt.Errorf("track %s not persisted, store was overwritten concurrently", id)
	}
	l.snap = saved
	return nil
}

// GetTrack returns a copy of the track with the given id, or nil if absent.
func (l *Ledger) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return nil, err
	}
	track := l.snap.Tracks[id]
	if track == nil {
		return nil, nil
	}
	out := *track
	return &out, nil
}

// GetTrackCount returns the number of registered tracks. The route layer
// checks it against the configured cap before registering.
func (l *Ledger) GetTrackCount(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return 0, err
	}
	return len(l.snap.Tracks), nil
}

// SetLyrics replaces the lyrics of a track. Returns a copy of the updated
// track, or nil if the track does not exist.
func (l *Ledger) SetLyrics(ctx context.Context, id, lyrics string) (*model.Track, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return nil, err
	}
	track := l.snap.Tracks[id]
	if track == nil {
		return nil, nil
	}
	track.Lyrics = lyrics
	if err := l.persist(ctx); err != nil {
		return nil, err
	}
	// persist may have reloaded the snapshot; report the state it settled on
	track = l.snap.Tracks[id]
	if track == nil {
		return nil, nil
	}
	out := *track
	return &out, nil
}

// CreateArtist creates an artist profile under wallet.
func (l *Ledger) CreateArtist(ctx context.Context, wallet, name, imageURL string) (*model.Artist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return nil, err
	}
	artist := &model.Artist{
		ID:       uuid.NewString(),
		Wallet:   wallet,
		Name:     name,
		ImageURL: imageURL,
	}
	l.snap.Artists[wallet] = append(l.snap.Artists[wallet], artist)
	if err := l.persist(ctx); err != nil {
		return nil, err
	}
	out := *artist
	return &out, nil
}

// ArtistUpdate carries a partial artist update; only non-nil fields are
// applied. An empty string clears the field.
type ArtistUpdate struct {
	Name       *string
	ImageURL   *string
	Slug       *string
	Bio        *string
	YoutubeURL *string
	WebsiteURL *string
}

// UpdateArtist applies a partial update to an artist owned by wallet. The
// slug is normalized before storage. Returns nil if the artist is not found
// under that wallet.
func (l *Ledger) UpdateArtist(ctx context.Context, wallet, artistID string, upd ArtistUpdate) (*model.Artist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return nil, err
	}
	var artist *model.Artist
	for _, a := range l.snap.Artists[wallet] {
		if a.ID == artistID {
			artist = a
			break
		}
	}
	if artist == nil {
		return nil, nil
	}
	if upd.Name != nil {
		artist.Name = *upd.Name
	}
	if upd.ImageURL != nil {
		artist.ImageURL = *upd.ImageURL
	}
	if upd.Slug != nil {
		artist.Slug = Slugify(*upd.Slug)
	}
	if upd.Bio != nil {
		artist.Bio = *upd.Bio
	}
	if upd.YoutubeURL != nil {
		artist.YoutubeURL = *upd.YoutubeURL
	}
	if upd.WebsiteURL != nil {
		artist.WebsiteURL = *upd.WebsiteURL
	}
	if err := l.persist(ctx); err != nil {
		return nil, err
	}
	out := *artist
	return &out, nil
}

// GetArtists returns copies of all artist profiles owned by wallet.
func (l *Ledger) GetArtists(ctx context.Context, wallet string) ([]*model.Artist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return nil, err
	}
	return copyArtists(l.snap.Artists[wallet]), nil
}

func copyArtists(list []*model.Artist) []*model.Artist {
	if list == nil {
		return nil
	}
	out := make([]*model.Artist, len(list))
	for i, a := range list {
		c := *a
		out[i] = &c
	}
	return out
}

// GetArtistByID returns a copy of the artist with the given id, across all
// wallets.
func (l *Ledger) GetArtistByID(ctx context.Context, artistID string) (*model.Artist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return nil, err
	}
	for _, list := range l.snap.Artists {
		for _, a := range list {
			if a.ID == artistID {
				out := *a
				return &out, nil
			}
		}
	}
	return nil, nil
}

// GetArtistBySlug returns the first artist whose slug matches the normalized
// input. Slug uniqueness is not enforced at write time; wallets are scanned
// in sorted order so the winner of a collision is at least deterministic.
func (l *Ledger) GetArtistBySlug(ctx context.Context, slug string) (*model.Artist, error) {
	norm := Slugify(slug)
	if norm == "" {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return nil, err
	}
	wallets := make([]string, 0, len(l.snap.Artists))
	for w := range l.snap.Artists {
		wallets = append(wallets, w)
	}
	sort.Strings(wallets)
	for _, w := range wallets {
		for _, a := range l.snap.Artists[w] {
			if a.Slug == norm {
				out := *a
				return &out, nil
			}
		}
	}
	return nil, nil
}

// DeleteArtist removes an artist owned by wallet together with the wallet's
// assignments pointing at it.
func (l *Ledger) DeleteArtist(ctx context.Context, wallet, artistID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return err
	}
	list := l.snap.Artists[wallet]
	next := list[:0]
	for _, a := range list {
		if a.ID != artistID {
			next = append(next, a)
		}
	}
	if len(next) > 0 {
		l.snap.Artists[wallet] = next
	} else {
		delete(l.snap.Artists, wallet)
	}
	if m := l.snap.Assignments[wallet]; m != nil {
		for tid, aid := range m {
			if aid == artistID {
				delete(m, tid)
			}
		}
		if len(m) == 0 {
			delete(l.snap.Assignments, wallet)
		}
	}
	return l.persist(ctx)
}

// SetAssignment maps a track to an artist within the wallet's scope.
// Reassignment overwrites; an empty artistID removes the entry. Ownership of
// the artist is the caller layer's check, not the Ledger's.
func (l *Ledger) SetAssignment(ctx context.Context, wallet, trackID, artistID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return err
	}
	m := l.snap.Assignments[wallet]
	if m == nil {
		m = make(map[string]string)
		l.snap.Assignments[wallet] = m
	}
	if artistID != "" {
		m[trackID] = artistID
	} else {
		delete(m, trackID)
	}
	return l.persist(ctx)
}

// GetTracksByArtist returns the ids of tracks the wallet assigned to the
// artist, sorted for deterministic output.
func (l *Ledger) GetTracksByArtist(ctx context.Context, wallet, artistID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return nil, err
	}
	var ids []string
	for tid, aid := range l.snap.Assignments[wallet] {
		if aid == artistID {
			ids = append(ids, tid)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LikeArtist increments the artist's like counter and returns the count as
// persisted.
func (l *Ledger) LikeArtist(ctx context.Context, artistID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return 0, err
	}
	l.snap.ArtistLikes[artistID]++
	if err := l.persist(ctx); err != nil {
		return 0, err
	}
	// persist may have reloaded the snapshot; report what later reads will see
	return l.snap.ArtistLikes[artistID], nil
}

// GetArtistLikes returns the artist's like count.
func (l *Ledger) GetArtistLikes(ctx context.Context, artistID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return 0, err
	}
	return l.snap.ArtistLikes[artistID], nil
}

// IncrementPlay increments the track's play counter and returns the count as
// persisted.
func (l *Ledger) IncrementPlay(ctx context.Context, trackID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return 0, err
	}
	l.snap.TrackPlays[trackID]++
	if err := l.persist(ctx); err != nil {
		return 0, err
	}
	return l.snap.TrackPlays[trackID], nil
}

// GetTrackPlays returns the track's play count.
func (l *Ledger) GetTrackPlays(ctx context.Context, trackID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, false); err != nil {
		return 0, err
	}
	return l.snap.TrackPlays[trackID], nil
}

// IsSignatureRedeemedForOtherTrack reports whether signature already unlocked
// a track different from trackID. A signature never seen, or seen for the
// same track, returns false.
func (l *Ledger) IsSignatureRedeemedForOtherTrack(ctx context.Context, signature, trackID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return false, err
	}
	usedFor, ok := l.snap.UsedSignatures[signature]
	if !ok {
		return false, nil
	}
	return usedFor != trackID, nil
}

// MarkRedeemed records that signature unlocked trackID. Marking the same
// pair again is idempotent; marking the signature for a different track
// returns ErrSignatureConflict: a signature maps to exactly one track,
// forever.
func (l *Ledger) MarkRedeemed(ctx context.Context, signature, trackID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return err
	}
	if usedFor, ok := l.snap.UsedSignatures[signature]; ok {
		if usedFor != trackID {
			return ErrSignatureConflict
		}
		return nil
	}
	l.snap.UsedSignatures[signature] = trackID
	return l.persist(ctx)
}
