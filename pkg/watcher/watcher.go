// Package watcher reloads the configuration file when it changes on disk.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/relgraph/pkg/logging"
)

// settleDelay batches the burst of events editors produce for one save.
const settleDelay = 100 * time.Millisecond

// ChangeEvent represents a batch of file system changes to the watched file
type ChangeEvent struct {
	Path      string
	Ops       fsnotify.Op
	Timestamp time.Time
}

// FileWatcher watches a single file. It watches the parent directory so that
// editors replacing the file by rename are still noticed.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan ChangeEvent
}

// NewFileWatcher creates a watcher for path.
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan ChangeEvent, 10),
	}, nil
}

// Start begins watching. Events stop and the channel closes when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		fw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Info("watching config file", "path", fw.path)

	go fw.processEvents(ctx)
	return nil
}

// Path returns the absolute path of the watched file.
func (fw *FileWatcher) Path() string {
	return fw.path
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	var pending fsnotify.Op
	flushTimer := time.NewTimer(settleDelay)
	flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			flushTimer.Stop()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			logging.Trace("config file event", "op", event.Op.String())
			pending |= event.Op
			flushTimer.Reset(settleDelay)

		case <-flushTimer.C:
			if pending == 0 {
				continue
			}
			ev := ChangeEvent{Path: fw.path, Ops: pending, Timestamp: time.Now()}
			pending = 0
			select {
			case fw.events <- ev:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}
