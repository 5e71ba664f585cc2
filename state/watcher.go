package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/grovetools/livesync/logging"
	"github.com/sirupsen/logrus"
)

// Watcher reports changes made to the preferences file by other processes
// (for example a theme switched from another terminal).
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(State)
	logger   *logrus.Entry

	mu    sync.Mutex
	timer *time.Timer
	wg    sync.WaitGroup
}

// NewWatcher watches the directory holding the store's file. fsnotify does
// not survive the rename used by Set, so the directory is watched instead of
// the file itself.
func NewWatcher(store *Store, debounce time.Duration, onChange func(State)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(store.Path())
	if err := ensureDir(dir); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}

	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &Watcher{
		store:    store,
		watcher:  w,
		debounce: debounce,
		onChange: onChange,
		logger:   logging.NewLogger("prefs-watcher"),
	}, nil
}

// Run processes events until ctx is cancelled. It closes the watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()

	target := filepath.Base(w.store.Path())
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

// schedule coalesces bursts of events into one reload after the debounce window.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.timer == t {
			w.timer = nil
		}
		w.mu.Unlock()
		w.reload()
	})
	w.timer = t
}

func (w *Watcher) reload() {
	state, err := w.store.Load()
	if err != nil {
		w.logger.WithError(err).Warn("Failed to reload preferences")
		return
	}
	w.logger.Debug("Preferences changed")
	if w.onChange != nil {
		w.onChange(state)
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	if w.timer != nil && w.timer.Stop() {
		w.wg.Done()
	}
	w.timer = nil
	w.mu.Unlock()
	w.wg.Wait()
	w.watcher.Close()
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
