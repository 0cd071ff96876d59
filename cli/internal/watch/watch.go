// Package watch re-runs a callback when a pipeline file changes.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/satishbabariya/objql/internal/debug"
)

// DefaultDebounce is how long writes must settle before the callback runs.
const DefaultDebounce = 300 * time.Millisecond

// Watcher watches a file for changes
type Watcher struct {
	file     string
	callback func(path string) error
	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopped  sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher calling callback with the file path after each
// settled change. Editors that replace the file on save are handled by
// watching its directory.
func New(file string, debounce time.Duration, callback func(path string) error) (*Watcher, error) {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(absPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		file:     absPath,
		callback: callback,
		debounce: debounce,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// Start runs the callback once and then after every change.
func (w *Watcher) Start() error {
	if err := w.callback(w.file); err != nil {
		return fmt.Errorf("initial callback failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		timer := time.NewTimer(w.debounce)
		timer.Stop()
		defer timer.Stop()
		var fire <-chan time.Time

		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if p, err := filepath.Abs(event.Name); err == nil && p == w.file {
					timer.Reset(w.debounce)
					fire = timer.C
				}

			case <-fire:
				fire = nil
				if err := w.callback(w.file); err != nil {
					debug.Warn("Watch callback failed", "file", w.file, "error", err)
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				debug.Warn("Watch error", "file", w.file, "error", err)

			case <-w.done:
				return
			}
		}
	}()
	return nil
}

// Stop stops watching and waits for a running callback to return.
func (w *Watcher) Stop() error {
	var err error
	w.stopped.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
