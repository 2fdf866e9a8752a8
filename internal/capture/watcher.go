// Package capture turns finished recordings into project segments. The
// inbox watcher observes a directory the capture pipeline writes
// completed files into; each new video file becomes the next segment of
// the open project.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/snapreel/snapreel-agent/internal/project"
)

// Handler receives the path of a finished segment media file.
type Handler func(path string)

type Watcher interface {
	Watch(ctx context.Context, dir string) error
	OnSegment(handler Handler)
}

// settleDelay gives the capture pipeline time to finish writing a file
// before it is treated as a complete segment.
const settleDelay = 500 * time.Millisecond

// InboxWatcher watches a directory with fsnotify and reports new video
// files once their writes have settled.
type InboxWatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	handler Handler
	pending map[string]*time.Timer
}

func NewInboxWatcher(logger *slog.Logger) *InboxWatcher {
	return &InboxWatcher{
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

func (w *InboxWatcher) OnSegment(handler Handler) {
	w.mu.Lock()
	w.handler = handler
	w.mu.Unlock()
}

// Watch blocks until ctx is cancelled or the watcher fails.
func (w *InboxWatcher) Watch(ctx context.Context, dir string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return err
	}

	if w.logger != nil {
		w.logger.Info("watching capture inbox", "dir", dir)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !project.IsVideoFile(event.Name) {
				continue
			}
			w.scheduleSettle(event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if w.logger != nil {
				w.logger.Warn("inbox watcher error", "error", err)
			}
		}
	}
}

// scheduleSettle debounces per path: each write resets the timer, so
// the handler fires once after the last write.
func (w *InboxWatcher) scheduleSettle(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		handler := w.handler
		w.mu.Unlock()

		if handler != nil {
			handler(path)
		}
	})
}

// StubWatcher records calls without touching the filesystem.
type StubWatcher struct {
	logger *slog.Logger

	mu      sync.Mutex
	handler Handler
	watched []string
}

func NewStubWatcher(logger *slog.Logger) *StubWatcher {
	return &StubWatcher{logger: logger}
}

func (w *StubWatcher) Watch(ctx context.Context, dir string) error {
	w.mu.Lock()
	w.watched = append(w.watched, dir)
	w.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (w *StubWatcher) OnSegment(handler Handler) {
	w.mu.Lock()
	w.handler = handler
	w.mu.Unlock()
}

// Emit simulates a settled file arriving in the inbox.
func (w *StubWatcher) Emit(path string) {
	w.mu.Lock()
	handler := w.handler
	w.mu.Unlock()
	if handler != nil {
		handler(path)
	}
}
