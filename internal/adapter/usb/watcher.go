package usb

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// FsWatcher turns file events under a /dev/bus/usb style tree into hotplug
// notifications: a node created means a device arrived, a node removed
// means one departed.
type FsWatcher struct {
	watcher *fsnotify.Watcher
	out     chan Notification
	done    chan struct{}
	logger  *slog.Logger
}

// NewFsWatcher watches root and every bus directory below it.
func NewFsWatcher(root string, logger *slog.Logger) (*FsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return nil, err
	}

	w := &FsWatcher{
		watcher: watcher,
		out:     make(chan Notification, 16),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go w.processEvents()
	return w, nil
}

// Notifications is closed when the watcher stops.
func (w *FsWatcher) Notifications() <-chan Notification { return w.out }

// Close stops watching and releases the OS handles.
func (w *FsWatcher) Close() error {
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *FsWatcher) processEvents() {
	defer close(w.done)
	defer close(w.out)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("usb watcher error", "error", err)
		}
	}
}

func (w *FsWatcher) handleEvent(event fsnotify.Event) {
	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// a new bus directory; its device nodes show up as later events
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Debug("usb watch add failed", "path", event.Name, "error", err)
			}
			return
		}
		w.send(Arrived)
	case event.Has(fsnotify.Remove):
		w.send(Departed)
	}
}

func (w *FsWatcher) send(n Notification) {
	select {
	case w.out <- n:
	default:
		// a burst; the monitor re-enumerates anyway
		w.logger.Debug("usb notification dropped", "kind", n)
	}
}
