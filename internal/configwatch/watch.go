// Package configwatch implements the optional file-watch reload path: when
// BootstrapOptions.WatchConfigFile is set, the kernel re-runs the file
// loader on every fsnotify write/create/rename event for a watched config
// path and pushes the changed keys through ResolvedConfig.Set, which fires
// any registered onUpdate watchers — so "running config changed on disk"
// and "a service called Set" look identical to subscribers.
package configwatch

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Logger is the minimal logging surface Watcher needs.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ReloadFunc re-runs the file loader and applies any changed keys; it
// returns the list of "module.key" strings that changed, for logging.
type ReloadFunc func() ([]string, error)

// Watcher wraps an fsnotify.Watcher scoped to a single config file's
// directory (fsnotify watches directories reliably across editors that
// replace-via-rename; watching the file path directly misses some editors'
// save patterns).
type Watcher struct {
	fsw    *fsnotify.Watcher
	path   string
	reload ReloadFunc
	logger Logger
	done   chan struct{}
}

// New starts watching path's containing directory and calls reload
// whenever path itself is written, created, or renamed into place.
func New(path string, reload ReloadFunc, logger Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, path: filepath.Clean(path), reload: reload, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !(event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0) {
				continue
			}
			changed, err := w.reload()
			if err != nil {
				w.logger.Error("config reload failed", "path", w.path, "error", err)
				continue
			}
			if len(changed) > 0 {
				w.logger.Warn("config file changed on disk", "path", w.path, "keys", changed)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "path", w.path, "error", err)
		}
	}
}

// Close stops the watcher. Idempotent.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.fsw.Close()
}
