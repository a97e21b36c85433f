package store

import (
	"context"
	"testing"

	"omegamusic/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrendingExcludesLockedTracks(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	artist, err := l.CreateArtist(ctx, "W1", "Nova", "")
	require.NoError(t, err)
	id, err := l.RegisterTrack(ctx, &model.Track{Name: "Locked", AudioURL: "https://cdn.example.com/l.mp3"})
	require.NoError(t, err)
	require.NoError(t, l.SetAssignment(ctx, "W1", id, artist.ID))

	// Assigned but never redeemed: the artist must not appear.
	trending, err := l.Trending(ctx)
	require.NoError(t, err)
	assert.Empty(t, trending)
}

func TestTrendingRanking(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	nova, err := l.CreateArtist(ctx, "W1", "Nova", "")
	require.NoError(t, err)
	t1, err := l.RegisterTrack(ctx, &model.Track{Name: "T1", AudioURL: "https://cdn.example.com/1.mp3"})
	require.NoError(t, err)
	require.NoError(t, l.SetAssignment(ctx, "W1", t1, nova.ID))
	require.NoError(t, l.MarkRedeemed(ctx, "sig1", t1))

	trending, err := l.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, trending, 1)
	assert.Equal(t, "Nova", trending[0].Artist.Name)
	require.Len(t, trending[0].Tracks, 1)
	assert.Equal(t, t1, trending[0].Tracks[0].ID)
	assert.Equal(t, 0, trending[0].TotalPlays)

	_, err = l.IncrementPlay(ctx, t1)
	require.NoError(t, err)

	trending, err = l.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, trending, 1)
	assert.Equal(t, 1, trending[0].TotalPlays)
	assert.Equal(t, 1, trending[0].Tracks[0].Plays)
}

func TestTrendingOrdersByTotalPlays(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	quiet, err := l.CreateArtist(ctx, "W1", "Quiet", "")
	require.NoError(t, err)
	loud, err := l.CreateArtist(ctx, "W2", "Loud", "")
	require.NoError(t, err)

	tQuiet, err := l.RegisterTrack(ctx, &model.Track{Name: "Q", AudioURL: "https://cdn.example.com/q.mp3"})
	require.NoError(t, err)
	tLoudA, err := l.RegisterTrack(ctx, &model.Track{Name: "LA", AudioURL: "https://cdn.example.com/la.mp3"})
	require.NoError(t, err)
	tLoudB, err := l.RegisterTrack(ctx, &model.Track{Name: "LB", AudioURL: "https://cdn.example.com/lb.mp3"})
	require.NoError(t, err)

	require.NoError(t, l.SetAssignment(ctx, "W1", tQuiet, quiet.ID))
	require.NoError(t, l.SetAssignment(ctx, "W2", tLoudA, loud.ID))
	require.NoError(t, l.SetAssignment(ctx, "W2", tLoudB, loud.ID))

	require.NoError(t, l.MarkRedeemed(ctx, "sigQ", tQuiet))
	require.NoError(t, l.MarkRedeemed(ctx, "sigA", tLoudA))
	require.NoError(t, l.MarkRedeemed(ctx, "sigB", tLoudB))

	for i := 0; i < 5; i++ {
		_, err = l.IncrementPlay(ctx, tLoudA)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err = l.IncrementPlay(ctx, tLoudB)
		require.NoError(t, err)
	}
	_, err = l.IncrementPlay(ctx, tQuiet)
	require.NoError(t, err)

	trending, err := l.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, trending, 2)

	assert.Equal(t, "Loud", trending[0].Artist.Name)
	assert.Equal(t, 7, trending[0].TotalPlays)
	// Tracks sorted by play count descending within the artist.
	require.Len(t, trending[0].Tracks, 2)
	assert.Equal(t, tLoudA, trending[0].Tracks[0].ID)
	assert.Equal(t, 5, trending[0].Tracks[0].Plays)
	assert.Equal(t, tLoudB, trending[0].Tracks[1].ID)

	assert.Equal(t, "Quiet", trending[1].Artist.Name)
	assert.Equal(t, 1, trending[1].TotalPlays)
}

func TestTrendingTieBreakDeterministic(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	a, err := l.CreateArtist(ctx, "W1", "A", "")
	require.NoError(t, err)
	b, err := l.CreateArtist(ctx, "W2", "B", "")
	require.NoError(t, err)

	ta, err := l.RegisterTrack(ctx, &model.Track{Name: "TA", AudioURL: "https://cdn.example.com/ta.mp3"})
	require.NoError(t, err)
	tb, err := l.RegisterTrack(ctx, &model.Track{Name: "TB", AudioURL: "https://cdn.example.com/tb.mp3"})
	require.NoError(t, err)
	require.NoError(t, l.SetAssignment(ctx, "W1", ta, a.ID))
	require.NoError(t, l.SetAssignment(ctx, "W2", tb, b.ID))
	require.NoError(t, l.MarkRedeemed(ctx, "sigA", ta))
	require.NoError(t, l.MarkRedeemed(ctx, "sigB", tb))

	// Equal totals: order falls back to ascending artist id.
	first, err := l.Trending(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)
	for i := 0; i < 10; i++ {
		again, err := l.Trending(ctx)
		require.NoError(t, err)
		assert.Equal(t, first[0].Artist.ID, again[0].Artist.ID)
		assert.Equal(t, first[1].Artist.ID, again[1].Artist.ID)
	}
	assert.Less(t, first[0].Artist.ID, first[1].Artist.ID)
}
