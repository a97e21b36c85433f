package model

// Track represents a generated track in the ledger. Exactly one of AudioURL,
// AudioPath and BlobURL is set, indicating where the audio bytes live:
// an external (possibly expiring) URL, a file in the local audio directory,
// or an object in the blob store.
type Track struct {
	Name      string `json:"name"`
	AudioURL  string `json:"audioUrl,omitempty"`
	AudioPath string `json:"audioPath,omitempty"`
	BlobURL   string `json:"blobUrl,omitempty"`
	Lyrics    string `json:"lyrics,omitempty"`
}

// Artist represents an artist profile owned by a wallet.
type Artist struct {
	ID         string `json:"id"`
	Wallet     string `json:"wallet"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Slug       string `json:"slug,omitempty"`
	Bio        string `json:"bio,omitempty"`
	YoutubeURL string `json:"youtubeUrl,omitempty"`
	WebsiteURL string `json:"websiteUrl,omitempty"`
}

// Snapshot is the full persisted ledger state, always read and written as a
// whole document by both store backends.
type Snapshot struct {
	Tracks map[string]*Track `json:"tracks"`
	// UsedSignatures maps a payment transaction signature to the single track
	// it unlocked, forever.
	UsedSignatures map[string]string `json:"usedSignatures"`
	// Artists are grouped by owning wallet address.
	Artists map[string][]*Artist `json:"artists"`
	// Assignments: wallet -> trackId -> artistId.
	Assignments map[string]map[string]string `json:"assignments"`
	ArtistLikes map[string]int               `json:"artistLikes"`
	TrackPlays  map[string]int               `json:"trackPlays"`
}

// NewSnapshot returns an empty snapshot with all maps initialized.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Tracks:         make(map[string]*Track),
		UsedSignatures: make(map[string]string),
		Artists:        make(map[string][]*Artist),
		Assignments:    make(map[string]map[string]string),
		ArtistLikes:    make(map[string]int),
		TrackPlays:     make(map[string]int),
	}
}

// Normalize fills in nil maps after JSON decoding so callers never have to
// check for them.
func (s *Snapshot) Normalize() {
	if s.Tracks == nil {
		s.Tracks = make(map[string]*Track)
	}
	if s.UsedSignatures == nil {
		s.UsedSignatures = make(map[string]string)
	}
	if s.Artists == nil {
		s.Artists = make(map[string][]*Artist)
	}
	if s.Assignments == nil {
		s.Assignments = make(map[string]map[string]string)
	}
	if s.ArtistLikes == nil {
		s.ArtistLikes = make(map[string]int)
	}
	if s.TrackPlays == nil {
		s.TrackPlays = make(map[string]int)
	}
}

// TrendingTrack is one track entry inside a trending artist.
type TrendingTrack struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Plays int    `json:"plays"`
}

// TrendingArtist is one ranked entry of the trending view: an artist with its
// unlocked tracks sorted by play count.
type TrendingArtist struct {
	Artist     *Artist         `json:"artist"`
	Tracks     []TrendingTrack `json:"tracks"`
	TotalPlays int             `json:"totalPlays"`
}
