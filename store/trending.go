package store

import (
	"context"
	"sort"

	"omegamusic/model"
)

// Trending builds the ranked artist view restricted to unlocked tracks: for
// every artist, the subset of its assigned tracks that appear as a value in
// the redeemed-signature registry, sorted by play count descending; artists
// with no qualifying track are dropped and the rest are sorted by total
// plays descending. Ties break by ascending id so the output is
// deterministic. Pure read, no mutation.
func (l *Ledger) Trending(ctx context.Context) ([]model.TrendingArtist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLoaded(ctx, l.alwaysReload); err != nil {
		return nil, err
	}

	unlocked := make(map[string]bool, len(l.snap.UsedSignatures))
	for _, trackID := range l.snap.UsedSignatures {
		unlocked[trackID] = true
	}

	list := make([]model.TrendingArtist, 0)
	for wallet, artists := range l.snap.Artists {
		assignments := l.snap.Assignments[wallet]
		if assignments == nil {
			continue
		}
		for _, artist := range artists {
			var tracks []model.TrendingTrack
			for tid, aid := range assignments {
				if aid != artist.ID || !unlocked[tid] {
					continue
				}
				t := l.snap.Tracks[tid]
				if t == nil {
					continue
				}
				tracks = append(tracks, model.TrendingTrack{
					ID:    tid,
					Name:  t.Name,
					Plays: l.snap.TrackPlays[tid],
				})
			}
			if len(tracks) == 0 {
				continue
			}
			sort.Slice(tracks, func(i, j int) bool {
				if tracks[i].Plays != tracks[j].Plays {
					return tracks[i].Plays > tracks[j].Plays
				}
				return tracks[i].ID < tracks[j].ID
			})
			total := 0
			for _, t := range tracks {
				total += t.Plays
			}
			a := *artist
			list = append(list, model.TrendingArtist{
				Artist:     &a,
				Tracks:     tracks,
				TotalPlays: total,
			})
		}
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].TotalPlays != list[j].TotalPlays {
			return list[i].TotalPlays > list[j].TotalPlays
		}
		return list[i].Artist.ID < list[j].Artist.ID
	})
	return list, nil
}
