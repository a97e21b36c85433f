package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"omegamusic/logger"
	"omegamusic/model"

	"github.com/fsnotify/fsnotify"
)

// FileBackend persists the snapshot as one JSON document on local disk.
type FileBackend struct {
	path    string
	watcher *fsnotify.Watcher

	// mu 保护 lastSave，监听协程和保存方并发访问
	mu       sync.Mutex
	lastSave time.Time
}

// NewFileBackend creates a file backend storing the snapshot at path. The
// parent directory is created if missing.
func NewFileBackend(path string) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileBackend{path: path}, nil
}

// Load reads the snapshot from disk. A missing file means nothing has been
// persisted yet.
func (b *FileBackend) Load(_ context.Context) (*model.Snapshot, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store file %s: %w", b.path, err)
	}
	snap := &model.Snapshot{}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, fmt.Errorf("failed to decode store file %s: %w", b.path, err)
	}
	snap.Normalize()
	return snap, nil
}

// Save writes the snapshot to disk. Saving an empty track set over a
// non-empty persisted one is refused with ErrEmptyOverwrite; the caller is
// expected to reload instead. This protects the shared file when several
// processes write it (see ErrEmptyOverwrite).
func (b *FileBackend) Save(ctx context.Context, snap *model.Snapshot) error {
	if len(snap.Tracks) == 0 {
		existing, err := b.Load(ctx)
		if err == nil && existing != nil && len(existing.Tracks) > 0 {
			logger.Warn("拒绝用空快照覆盖非空存储文件",
				logger.String("path", b.path),
				logger.Int("existingTracks", len(existing.Tracks)))
			return ErrEmptyOverwrite
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := os.WriteFile(b.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file %s: %w", b.path, err)
	}
	if info, err := os.Stat(b.path); err == nil {
		b.mu.Lock()
		b.lastSave = info.ModTime()
		b.mu.Unlock()
	}
	return nil
}

// ownWrite reports whether the store file still carries the mtime of this
// backend's latest Save. The watcher uses it to skip events for our own
// writes; the cache only needs invalidating when another process rewrites
// the file.
func (b *FileBackend) ownWrite() bool {
	info, err := os.Stat(b.path)
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.lastSave.IsZero() && info.ModTime().Equal(b.lastSave)
}

// Watch starts watching the store file's directory and calls onChange
// whenever the file is rewritten, including by other processes sharing it.
func (b *FileBackend) Watch(onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create store watcher: %w", err)
	}
	// Watch the directory, not the file: editors and atomic writers replace
	// the file and would otherwise drop the watch.
	if err := watcher.Add(filepath.Dir(b.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch store directory: %w", err)
	}
	b.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != b.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if b.ownWrite() {
						continue
					}
					logger.Debug("存储文件发生变化，标记缓存为过期", logger.String("path", b.path))
					onChange()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("存储文件监听错误", logger.ErrorField(err))
			}
		}
	}()
	return nil
}

// Close stops the watcher if one was started.
func (b *FileBackend) Close() error {
	if b.watcher != nil {
		return b.watcher.Close()
	}
	return nil
}
