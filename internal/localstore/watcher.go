package localstore

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher evicts memoized fingerprints the moment fsnotify reports a
// write under the vault root, so a reconcile pass started immediately
// after an edit never trusts a fingerprint computed before it.
//
// This is an addition beyond the teacher, which has no equivalent —
// grounded on the fsnotify dependency declared in the teacher's
// go.mod but never wired to anything there.
type Watcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	done    chan struct{}
}

// NewWatcher starts watching root (and its subdirectories) for
// writes, invalidating store's memo on every Write/Create/Rename
// event. Call Close to stop.
func NewWatcher(store *Store, root string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{store: store, watcher: fw, logger: log, done: make(chan struct{})}

	if err := w.addTree(root); err != nil {
		_ = fw.Close()
		return nil, err
	}

	go w.loop(root)
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("watch directory failed", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
}

func (w *Watcher) loop(root string) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			rel, err := filepath.Rel(root, event.Name)
			if err != nil {
				continue
			}
			name := filepath.ToSlash(rel)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.store.Invalidate(name)
			}
			if event.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.logger.Warn("watch new directory failed", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("vault watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
