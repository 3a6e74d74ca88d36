package instructions

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a Store when its override file changes on disk.
// The parent directory is watched so editors that replace the file by rename are seen.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	onReload func(error)
	debounce time.Duration
	stopOnce sync.Once
}

// NewWatcher creates a watcher for store's override file. onReload, if non-nil, is called after each reload attempt.
func NewWatcher(store *Store, onReload func(error)) (*Watcher, error) {
	if store.Path() == "" {
		return nil, fmt.Errorf("instructions store has no override file to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(store.Path()), err)
	}
	return &Watcher{
		store:    store,
		watcher:  fw,
		onReload: onReload,
		debounce: defaultDebounce,
	}, nil
}

// Run processes file events until ctx is canceled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	target := filepath.Clean(w.store.Path())
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// Editors often write in several steps; coalesce them.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			err := w.store.Reload()
			if w.onReload != nil {
				w.onReload(err)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.store.logger.Warn("⚠️ Instruction watcher error: %v", err)
		}
	}
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
	})
	return err
}
