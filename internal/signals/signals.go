// Package signals lets a separate process ask a running decomposition to
// stop by dropping a file into a signals directory.
package signals

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StopFile is the file name that requests a stop.
const StopFile = "stop"

// DefaultDir returns the signals directory inside a project.
func DefaultDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".geodecomp", "signals")
}

// Watcher watches a signals directory for a stop request.
type Watcher struct {
	dir string

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates dir if needed and starts watching it. If the platform
// watcher cannot be started, ShouldStop still polls the directory.
func NewWatcher(dir string) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:    dir,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return w, nil
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return w, nil
	}
	w.watcher = fw

	w.wg.Add(1)
	go w.watch()

	return w, nil
}

func (w *Watcher) watch() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == StopFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.markStopped()
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) markStopped() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
}

// ShouldStop reports whether a stop has been requested. It also checks the
// file directly in case the watcher missed the event.
func (w *Watcher) ShouldStop() bool {
	if _, err := os.Stat(filepath.Join(w.dir, StopFile)); err == nil {
		w.markStopped()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Stopped returns a channel closed once a stop is observed.
func (w *Watcher) Stopped() <-chan struct{} {
	return w.stopCh
}

// RequestStop writes the stop file.
func (w *Watcher) RequestStop() error {
	return RequestStop(w.dir)
}

// RequestStop writes the stop file into dir. It is used by a second process
// that has no Watcher of its own.
func RequestStop(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, StopFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// Clear removes the stop file. A stop already observed stays observed.
func (w *Watcher) Clear() error {
	err := os.Remove(filepath.Join(w.dir, StopFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// WithStop returns a context cancelled when a stop is observed or parent is done.
func (w *Watcher) WithStop(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Close stops watching.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}
