package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/AaronLay10/questgraph/internal/events"
)

// GraphWatcher re-validates a graph file whenever it changes on disk and
// reports the outcome as graph.file_changed. The running graph is never
// swapped; a restart picks up the new file.
type GraphWatcher struct {
	path     string
	validate func(path string) error
	log      *slog.Logger

	mu       sync.Mutex
	onChange []func(err error)
}

// NewGraphWatcher creates a watcher for path. validate parses and builds the
// file without starting it.
func NewGraphWatcher(path string, validate func(path string) error, log *slog.Logger) *GraphWatcher {
	if log == nil {
		log = slog.Default()
	}
	return &GraphWatcher{path: path, validate: validate, log: log.With("component", "watcher")}
}

// OnChange registers a callback invoked after every re-validation with its
// result.
func (w *GraphWatcher) OnChange(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Check validates the file once and reports the result.
func (w *GraphWatcher) Check() error {
	err := w.validate(w.path)
	fields := map[string]interface{}{
		"path":  w.path,
		"valid": err == nil,
	}
	level := "info"
	if err != nil {
		level = "warn"
		fields["error"] = err.Error()
		w.log.Warn("graph file invalid", "path", w.path, "error", err)
	} else {
		w.log.Info("graph file changed; restart to apply", "path", w.path)
	}
	events.Emit(level, "graph.file_changed", "", fields)

	w.mu.Lock()
	callbacks := make([]func(error), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()
	for _, fn := range callbacks {
		fn(err)
	}
	return err
}

// Watch starts a background goroutine that re-validates the file on change.
// The directory is watched so editors that replace the file are seen too.
// Call the returned stop function to clean up.
func (w *GraphWatcher) Watch() (stop func(), err error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("graph watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("graph watcher add %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	done := make(chan struct{})
	go func() {
		defer fw.Close()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					w.Check()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.log.Warn("graph watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
