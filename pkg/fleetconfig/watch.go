package fleetconfig

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file for changes, grounded directly on
// pkg/config/provider/file.go's fsnotify-based Watch.
type Watcher struct {
	path string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	closed  bool
}

// NewWatcher resolves path to an absolute path and prepares a Watcher.
func NewWatcher(path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("fleetconfig: resolve watch path: %w", err)
	}
	return &Watcher{path: abs}, nil
}

// Watch starts watching the config file's directory (to survive
// editor atomic-rename saves) and returns a channel that receives a
// value on every write/create/rename event targeting the file.
func (w *Watcher) Watch(ctx context.Context) (<-chan struct{}, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("fleetconfig: watcher is closed")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fleetconfig: create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("fleetconfig: watch directory: %w", err)
	}
	w.watcher = fw

	changes := make(chan struct{}, 1)
	go func() {
		defer close(changes)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case changes <- struct{}{}:
				default:
				}
			case _, ok := <-fw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return changes, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
