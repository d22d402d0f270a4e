package cli

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/patchbay/internal/adapters/file"
	"github.com/aretw0/patchbay/pkg/domain"
	"github.com/fsnotify/fsnotify"
)

// WatchPatch watches path and sends the decoded snapshot each time its
// content changes. Events are coalesced for settle before the file is read.
// The parent directory is watched so that editors that save by renaming a
// temporary file are still seen. Files that fail to decode are logged and
// skipped until fixed. The channel closes when ctx is done.
func WatchPatch(ctx context.Context, path string, settle time.Duration, logger *slog.Logger) (<-chan *domain.Snapshot, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	var last [sha256.Size]byte
	if data, err := os.ReadFile(abs); err == nil {
		last = sha256.Sum256(data)
	}

	out := make(chan *domain.Snapshot)
	go func() {
		defer close(out)
		defer w.Close()

		timer := time.NewTimer(settle)
		timer.Stop()
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("patch watcher error", "path", path, "err", err)
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
					continue
				}
				timer.Reset(settle)
			case <-timer.C:
				data, err := os.ReadFile(abs)
				if err != nil {
					logger.Warn("patch file unreadable", "path", path, "err", err)
					continue
				}
				sum := sha256.Sum256(data)
				if sum == last {
					continue
				}
				last = sum
				snap, err := file.Decode(data)
				if err != nil {
					logger.Error("patch file invalid, keeping current patch", "path", path, "err", err)
					continue
				}
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
