package store

import (
	"context"
	"errors"

	"omegamusic/model"
)

// Backend defines the interface for snapshot persistence. The snapshot is
// always read and written as one whole document.
type Backend interface {
	// Load returns the persisted snapshot, or (nil, nil) when nothing has
	// been persisted yet.
	Load(ctx context.Context) (*model.Snapshot, error)
	// Save persists the snapshot, replacing the previous document.
	Save(ctx context.Context, snap *model.Snapshot) error
	// Close releases backend resources.
	Close() error
}

// ErrEmptyOverwrite is returned by a backend that refuses to replace a
// non-empty persisted track set with an empty one. A cache that holds zero
// tracks while the persisted store has some is almost always a freshly
// started process racing a concurrent writer, not a deliberate wipe. The
// Ledger reacts by reloading instead of surfacing the error.
var ErrEmptyOverwrite = errors.New("store: refusing to overwrite non-empty store with empty track set")

// ErrSignatureConflict is returned when a payment signature is marked for a
// track different from the one it already unlocked.
var ErrSignatureConflict = errors.New("store: signature already redeemed for another track")
