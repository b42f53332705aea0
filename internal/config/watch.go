package config

// #region imports
import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// #endregion

// #region watcher

// Watcher reloads the YAML file on change and pushes its tunables into the
// versioned store, so thresholds can be tuned without a restart.
type Watcher struct {
	path  string
	store *Store
}

// NewWatcher creates a watcher for the given config file path.
func NewWatcher(path string, store *Store) *Watcher {
	return &Watcher{path: path, store: store}
}

// #endregion watcher

// #region run

// Run blocks until ctx is done, applying file changes as they land.
// Editors replace files rather than writing in place, so the parent
// directory is watched and events are filtered by name.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.apply()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[CFG] watch error: %v", err)
		}
	}
}

// #endregion run

// #region apply

// apply reloads the file and writes changed tunables into the store.
func (w *Watcher) apply() {
	f, err := Load(w.path)
	if err != nil {
		log.Printf("[CFG] reload rejected: %v", err)
		return
	}
	for key, value := range f.Tunables() {
		current, err := w.store.Get(key)
		if err == nil && current == value {
			continue
		}
		if _, err := w.store.Set(key, value, "file"); err != nil {
			log.Printf("[CFG] reload set %s: %v", key, err)
			continue
		}
		log.Printf("[CFG] reload: %s = %v", key, value)
	}
}

// #endregion apply
