// Package watcher notices when another process rewrites a file.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultDebounce collapses the burst of events produced by one atomic write.
const DefaultDebounce = 100 * time.Millisecond

// Watcher calls onChange after the target file is created, written or
// replaced. It watches the parent directory because atomic writers replace
// the file by rename, which drops a watch held on the file itself.
type Watcher struct {
	target   string
	parent   string
	onChange func()
	debounce time.Duration
}

// New returns a Watcher for target.
func New(target string, onChange func()) *Watcher {
	target = filepath.Clean(target)
	return &Watcher{
		target:   target,
		parent:   filepath.Dir(target),
		onChange: onChange,
		debounce: DefaultDebounce,
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.parent, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.parent); err != nil {
		return fmt.Errorf("watch %s: %w", w.parent, err)
	}
	log.Debug().Str("path", w.target).Msg("Watching file")

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.onChange)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("Watcher error")
		}
	}
}
