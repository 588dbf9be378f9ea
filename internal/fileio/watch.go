package fileio

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"docvet/internal/logging"
)

const debounceWindow = 250 * time.Millisecond

// Watcher observes a single directory and invokes a callback when files
// with a watched extension change. Events are debounced so that an editor
// emitting several writes per save triggers the callback once.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	exts     map[string]bool
	onChange func()

	mu       sync.Mutex
	pending  bool
	lastSeen time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher starts watching dir for changes to files whose extension is in
// exts (lowercase, with leading dot). The callback runs on the watcher
// goroutine, so it must not block for long.
func NewWatcher(dir string, exts []string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[strings.ToLower(e)] = true
	}

	w := &Watcher{
		fsw:      fsw,
		dir:      dir,
		exts:     extSet,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go w.run()
	logging.FileIO("watching %s for changes", dir)
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.exts[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.pending = true
			w.lastSeen = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryFileIO).Error("watcher error on %s: %v", w.dir, err)

		case <-ticker.C:
			w.mu.Lock()
			fire := w.pending && time.Since(w.lastSeen) >= debounceWindow
			if fire {
				w.pending = false
			}
			w.mu.Unlock()
			if fire {
				logging.FileIODebug("change detected in %s", w.dir)
				w.onChange()
			}
		}
	}
}

// Stop halts the watch goroutine and releases the underlying fsnotify
// resources. It blocks until the goroutine has exited.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
	w.fsw.Close()
}
