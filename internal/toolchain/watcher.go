package toolchain

import (
	"context"
	"os"

	"github.com/fsnotify/fsnotify"

	"ledgerdev/internal/logging"
)

// Watcher evicts cache entries whose binary is removed or renamed in a probe
// directory, so an uninstall is noticed before the next execution fails.
type Watcher struct {
	cache   *Cache
	watcher *fsnotify.Watcher
	dirs    []string
}

// NewWatcher watches every existing directory in dirs. Missing directories are skipped.
func NewWatcher(cache *Cache, dirs []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{cache: cache, watcher: fw}
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := fw.Add(dir); err != nil {
			logging.ResolverWarn("cannot watch %s: %v", dir, err)
			continue
		}
		w.dirs = append(w.dirs, dir)
	}
	return w, nil
}

// Dirs returns the directories actually being watched.
func (w *Watcher) Dirs() []string { return w.dirs }

// Run processes events until ctx is done, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Chmod) {
				continue
			}
			if ev.Has(fsnotify.Chmod) {
				if checkLiveness(ev.Name) == nil {
					continue
				}
			}
			for _, tool := range w.cache.InvalidatePath(ev.Name) {
				logging.Resolver("%s changed (%s), evicted cached path for %s", ev.Name, ev.Op, tool)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.ResolverWarn("watcher error: %v", err)
		}
	}
}
