package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/snapreel/snapreel-agent/internal/timeline"
)

// Backend is the playback collaborator. In composed mode it accepts a
// full CompositionPlan and is seekable in global time; in fallback mode
// it accepts one segment reference at a time.
type Backend interface {
	LoadComposition(ctx context.Context, plan *timeline.CompositionPlan) error
	LoadSegment(ctx context.Context, mediaPath string) error
	Play()
	Pause()
	SeekTo(positionMs int64) error
	PositionMs() int64
}

// ClockBackend models playback position with wall-clock time: position
// advances while playing and freezes while paused. It renders nothing
// itself; frames are delivered to clients by the media HTTP server.
type ClockBackend struct {
	logger *slog.Logger

	mu         sync.Mutex
	positionMs int64
	playing    bool
	startedAt  time.Time
	totalMs    int64
}

func NewClockBackend(logger *slog.Logger) *ClockBackend {
	return &ClockBackend{logger: logger}
}

func (b *ClockBackend) LoadComposition(ctx context.Context, plan *timeline.CompositionPlan) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positionMs = 0
	b.playing = false
	b.totalMs = 0
	for _, e := range plan.Entries {
		b.totalMs += e.DurationMs
	}
	if b.logger != nil {
		b.logger.Debug("composition loaded", "entries", len(plan.Entries), "total_ms", b.totalMs)
	}
	return nil
}

func (b *ClockBackend) LoadSegment(ctx context.Context, mediaPath string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positionMs = 0
	b.playing = false
	b.totalMs = 0
	if b.logger != nil {
		b.logger.Debug("segment loaded", "path", mediaPath)
	}
	return nil
}

func (b *ClockBackend) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.playing {
		return
	}
	b.playing = true
	b.startedAt = time.Now()
}

func (b *ClockBackend) Pause() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.playing {
		return
	}
	b.positionMs = b.positionLocked()
	b.playing = false
}

func (b *ClockBackend) SeekTo(positionMs int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if positionMs < 0 {
		positionMs = 0
	}
	b.positionMs = positionMs
	b.startedAt = time.Now()
	return nil
}

func (b *ClockBackend) PositionMs() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positionLocked()
}

func (b *ClockBackend) positionLocked() int64 {
	pos := b.positionMs
	if b.playing {
		pos += time.Since(b.startedAt).Milliseconds()
	}
	if b.totalMs > 0 && pos > b.totalMs {
		pos = b.totalMs
	}
	return pos
}
