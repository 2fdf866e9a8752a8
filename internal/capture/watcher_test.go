package capture

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestInboxWatcher_ReportsSettledVideoFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewInboxWatcher(nil)

	var mu sync.Mutex
	var seen []string
	w.OnSegment(func(path string) {
		mu.Lock()
		seen = append(seen, path)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, dir) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	video := filepath.Join(dir, "segment.mp4")
	if err := os.WriteFile(video, []byte("data"), 0644); err != nil {
		t.Fatalf("write video: %v", err)
	}
	// Non-video files are ignored entirely.
	if err := os.WriteFile(filepath.Join(dir, "note.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write note: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("reported files = %v, want exactly [%s]", seen, video)
	}
	if seen[0] != video {
		t.Errorf("reported = %s, want %s", seen[0], video)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestInboxWatcher_DebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	w := NewInboxWatcher(nil)

	var mu sync.Mutex
	count := 0
	w.OnSegment(func(path string) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// Drive the debouncer directly; fsnotify delivery order is not the
	// point here.
	for i := 0; i < 5; i++ {
		w.scheduleSettle(filepath.Join(dir, "clip.mp4"))
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(settleDelay + 200*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("handler fired %d times, want 1", count)
	}
}

func TestInboxWatcher_MissingDir(t *testing.T) {
	w := NewInboxWatcher(nil)
	err := w.Watch(context.Background(), "/nonexistent/inbox")
	if err == nil {
		t.Error("Watch() accepted a missing directory")
	}
}

func TestStubWatcher_Emit(t *testing.T) {
	w := NewStubWatcher(nil)

	var got string
	w.OnSegment(func(path string) { got = path })
	w.Emit("/inbox/clip.mp4")

	if got != "/inbox/clip.mp4" {
		t.Errorf("handler got %q, want /inbox/clip.mp4", got)
	}
}
