// Package watch implements rush's re-run loop: watch the working
// directory recursively, and on any filesystem change, wipe the cache
// and re-run the requested task. A changed path is never attributed to
// the specific inputs it could have affected; any change invalidates
// the whole cache.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// debounce is how long the watcher waits after an event before acting,
// draining any further events that arrive in the meantime. This turns
// a burst of saves (an editor's write-then-rename, a build tool
// touching a dozen files) into a single re-run.
const debounce = 200 * time.Millisecond

// excludeDirs are never watched, and never trigger a re-run.
var excludeDirs = map[string]bool{
	".git": true,
}

// Watcher watches a directory tree and invokes a callback after each
// quiet period following a change.
type Watcher struct {
	fsw     *fsnotify.Watcher
	root    string
	logger  hclog.Logger
	exclude map[string]bool
}

// New creates a Watcher rooted at root. cacheDirName is added to the
// exclude set so that rush's own cache writes never trigger a
// self-inflicted re-run.
func New(root, cacheDirName string, logger hclog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating filesystem watcher")
	}

	exclude := map[string]bool{cacheDirName: true}
	for k, v := range excludeDirs {
		exclude[k] = v
	}

	w := &Watcher{
		fsw:     fsw,
		root:    root,
		logger:  logger.Named("watch"),
		exclude: exclude,
	}
	if err := w.addRecursively(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addRecursively(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.exclude[d.Name()] {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return errors.Wrapf(err, "watching %s", path)
		}
		return nil
	})
}

// onCreate re-watches a newly created directory, since fsnotify
// doesn't watch recursively on its own: a directory created after
// Watch started is invisible until we explicitly add it.
func (w *Watcher) onCreate(name string) {
	info, err := os.Lstat(name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if err := w.addRecursively(name); err != nil {
			w.logger.Debug("failed to watch new directory", "path", name, "error", err)
		}
	}
}

// Run blocks, invoking onChange after each debounced burst of
// filesystem activity, until stop is closed. A failing onChange is
// logged, not fatal: the watcher keeps running so the next save can
// still trigger a re-run.
func (w *Watcher) Run(stop <-chan struct{}, onChange func() error) {
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.isExcluded(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				w.onCreate(ev.Name)
			}
			w.drain(stop)
			if err := onChange(); err != nil {
				w.logger.Warn("re-run failed", "error", err)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// drain waits out the debounce window, absorbing any further events
// so a burst of saves produces exactly one re-run.
func (w *Watcher) drain(stop <-chan struct{}) {
	timer := time.NewTimer(debounce)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.isExcluded(ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				w.onCreate(ev.Name)
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(debounce)
		case <-w.fsw.Errors:
		}
	}
}

func (w *Watcher) isExcluded(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if w.exclude[part] {
			return true
		}
	}
	return false
}
