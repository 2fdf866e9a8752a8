// Package playback owns the playback session: composed-vs-fallback mode,
// asynchronous timeline builds, current segment tracking, and serving of
// segment media over HTTP.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/snapreel/snapreel-agent/internal/metrics"
	"github.com/snapreel/snapreel-agent/internal/project"
	"github.com/snapreel/snapreel-agent/internal/timeline"
)

// State is the coordinator's playback mode.
type State int

const (
	StateUninitialized State = iota
	StateBuilding
	StateComposed
	StateSequentialFallback
	StateBuildFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBuilding:
		return "building"
	case StateComposed:
		return "composed"
	case StateSequentialFallback:
		return "sequential_fallback"
	case StateBuildFailed:
		return "build_failed"
	default:
		return "unknown"
	}
}

// BuildProgress is a generation-tagged progress event. Events from
// superseded builds are filtered out before they reach subscribers.
type BuildProgress struct {
	Generation uint64 `json:"generation"`
	Processed  int    `json:"processed"`
	Total      int    `json:"total"`
}

// Snapshot is a consistent view of the session for status reporting.
type Snapshot struct {
	State           State
	ProjectID       string
	CurrentIndex    int
	SegmentCount    int
	TotalMs         int64
	SkippedSegments int
	Generation      uint64
	LastError       string
	Geometry        timeline.Geometry
}

// Coordinator funnels every playback-affecting transition through its
// methods. The timeline and plan it holds are owned exclusively by it
// for the lifetime of one session and are discarded on any structural
// change to the project.
type Coordinator struct {
	builder *timeline.Builder
	service project.ProjectService
	backend Backend
	metrics *metrics.Metrics
	logger  *slog.Logger

	pollInterval time.Duration

	mu           sync.Mutex
	state        State
	proj         *project.Project
	tl           *timeline.Timeline
	plan         *timeline.CompositionPlan
	currentIndex int
	generation   uint64
	cancelBuild  context.CancelFunc
	lastError    string

	progressCh chan BuildProgress
	closed     bool
}

type Option func(*Coordinator)

// WithPollInterval overrides the position sampling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMetrics attaches a metrics registry. Nil-safe by default.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(builder *timeline.Builder, service project.ProjectService, backend Backend, logger *slog.Logger, opts ...Option) *Coordinator {
	if backend == nil {
		backend = NewClockBackend(logger)
	}
	c := &Coordinator{
		builder:      builder,
		service:      service,
		backend:      backend,
		logger:       logger,
		pollInterval: 100 * time.Millisecond,
		state:        StateUninitialized,
		progressCh:   make(chan BuildProgress, 64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run samples the backend position and keeps CurrentIndex mapped while
// composed playback is active. It blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			c.samplePosition()
		}
	}
}

func (c *Coordinator) samplePosition() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateComposed || c.tl == nil {
		return
	}
	if idx, ok := c.tl.IndexAt(c.backend.PositionMs()); ok {
		c.currentIndex = idx
	}
}

// Progress exposes generation-tagged build progress events.
func (c *Coordinator) Progress() <-chan BuildProgress {
	return c.progressCh
}

// SetProject opens a project for playback and triggers a composed
// build. A project with no segments is rejected and the coordinator
// state is left untouched.
func (c *Coordinator) SetProject(ctx context.Context, p *project.Project) error {
	if p == nil || len(p.Segments) == 0 {
		return fmt.Errorf("project has no segments: %w", project.ErrInvalidOperation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.proj = p
	c.currentIndex = 0
	c.startBuildLocked(ctx)
	return nil
}

// Refresh rebuilds the timeline against the coordinator's current
// project, re-reading it from the store first. Used after out-of-band
// additions such as captured segments arriving in the inbox.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proj == nil {
		return fmt.Errorf("no project open: %w", project.ErrInvalidOperation)
	}
	p, err := c.service.GetProject(ctx, c.proj.ID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project %s: %w", c.proj.ID, project.ErrNotFound)
	}
	c.proj = p
	c.clampIndexLocked()
	c.startBuildLocked(ctx)
	return nil
}

// AddSegment persists a freshly captured segment at order max+1 and
// rebuilds. The stale timeline is dropped before the mutation so no
// mapping against the old segment count can happen mid-change.
func (c *Coordinator) AddSegment(ctx context.Context, mediaPath string, facing project.Facing, capturedAt time.Time) (*project.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proj == nil {
		return nil, fmt.Errorf("no project open: %w", project.ErrInvalidOperation)
	}

	c.dropToFallbackLocked()

	p, err := c.service.AddSegment(ctx, c.proj.ID, mediaPath, facing, capturedAt)
	if err != nil {
		return nil, err
	}
	c.proj = p
	c.startBuildLocked(ctx)
	return p, nil
}

// DeleteSegment removes a segment from the open project. Deleting the
// last remaining segment is rejected with ErrInvalidOperation and
// nothing changes. Otherwise the coordinator first drops to sequential
// fallback so the stale timeline can never be consulted mid-mutation,
// then renumbers, persists, clamps the current index, and rebuilds.
func (c *Coordinator) DeleteSegment(ctx context.Context, segmentID string) (*project.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proj == nil {
		return nil, fmt.Errorf("no project open: %w", project.ErrInvalidOperation)
	}

	// Validate the contract before touching playback state: a rejected
	// delete must leave the session exactly as it was.
	if _, err := c.proj.SegmentByID(segmentID); err != nil {
		return nil, err
	}
	if len(c.proj.Segments) == 1 {
		return nil, fmt.Errorf("cannot delete the last remaining segment: %w", project.ErrInvalidOperation)
	}

	c.dropToFallbackLocked()

	p, err := c.service.DeleteSegment(ctx, c.proj.ID, segmentID)
	if err != nil {
		return nil, err
	}
	c.proj = p
	c.clampIndexLocked()
	c.startBuildLocked(ctx)
	return p, nil
}

// SeekTo seeks composed playback to a global timeline position.
// In sequential fallback global positions are meaningless; the call is
// rejected and callers should use SeekInSegment instead.
func (c *Coordinator) SeekTo(positionMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateComposed:
		idx, ok := c.tl.IndexAt(positionMs)
		if !ok {
			return fmt.Errorf("position %dms: %w", positionMs, timeline.ErrOutOfBounds)
		}
		if err := c.backend.SeekTo(positionMs); err != nil {
			return err
		}
		c.currentIndex = idx
		return nil
	case StateSequentialFallback:
		return fmt.Errorf("global seek requires composed playback: %w", project.ErrInvalidOperation)
	default:
		return fmt.Errorf("no playable timeline in state %s: %w", c.state, project.ErrInvalidOperation)
	}
}

// SeekInSegment selects a segment by index and seeks within it. This is
// the fallback-mode seek surface.
func (c *Coordinator) SeekInSegment(ctx context.Context, index int, offsetMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proj == nil {
		return fmt.Errorf("no project open: %w", project.ErrInvalidOperation)
	}
	sorted := c.proj.SortedSegments()
	if index < 0 || index >= len(sorted) {
		return fmt.Errorf("segment index %d: %w", index, timeline.ErrOutOfBounds)
	}
	if err := c.backend.LoadSegment(ctx, sorted[index].MediaPath); err != nil {
		return err
	}
	c.currentIndex = index
	return c.backend.SeekTo(offsetMs)
}

// NextSegment advances the current segment, clamped at the end.
// At the boundary it is a no-op: no error, no wrap-around.
func (c *Coordinator) NextSegment(ctx context.Context) int {
	return c.step(ctx, 1)
}

// PreviousSegment moves back one segment, clamped at the start.
func (c *Coordinator) PreviousSegment(ctx context.Context) int {
	return c.step(ctx, -1)
}

func (c *Coordinator) step(ctx context.Context, delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.proj == nil {
		return 0
	}
	n := len(c.proj.Segments)
	next := c.currentIndex + delta
	if next < 0 {
		next = 0
	}
	if next > n-1 {
		next = n - 1
	}
	if next == c.currentIndex {
		return c.currentIndex
	}
	c.currentIndex = next

	if c.state == StateSequentialFallback {
		sorted := c.proj.SortedSegments()
		if err := c.backend.LoadSegment(ctx, sorted[next].MediaPath); err != nil && c.logger != nil {
			c.logger.Warn("failed to load fallback segment", "index", next, "error", err)
		}
	} else if c.state == StateComposed && c.tl != nil {
		if r, err := c.tl.RangeOf(next); err == nil {
			if err := c.backend.SeekTo(r.StartMs); err != nil && c.logger != nil {
				c.logger.Warn("failed to seek to segment start", "index", next, "error", err)
			}
		}
	}
	return c.currentIndex
}

// Play starts or resumes the backend.
func (c *Coordinator) Play() {
	c.backend.Play()
}

// Pause pauses the backend.
func (c *Coordinator) Pause() {
	c.backend.Pause()
}

// CurrentIndex returns the segment index playback is currently on.
func (c *Coordinator) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentIndex
}

// Timeline returns the current composed timeline, or nil outside
// composed mode. The returned value is a snapshot; it is not updated
// after structural changes.
func (c *Coordinator) Timeline() *timeline.Timeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tl
}

// Plan returns the current composition plan, or nil outside composed mode.
func (c *Coordinator) Plan() *timeline.CompositionPlan {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.plan
}

// Project returns the currently open project, or nil.
func (c *Coordinator) Project() *project.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proj
}

// Snapshot returns a consistent status view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:        c.state,
		CurrentIndex: c.currentIndex,
		Generation:   c.generation,
		LastError:    c.lastError,
	}
	if c.proj != nil {
		snap.ProjectID = c.proj.ID
		snap.SegmentCount = len(c.proj.Segments)
	}
	if c.tl != nil {
		snap.TotalMs = c.tl.TotalMs
	}
	if c.plan != nil {
		snap.SkippedSegments = len(c.plan.Skipped)
		snap.Geometry = c.plan.Geometry
	}
	return snap
}

// Close cancels any in-flight build.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelBuild != nil {
		c.cancelBuild()
		c.cancelBuild = nil
	}
	if !c.closed {
		c.closed = true
		close(c.progressCh)
	}
}

// dropToFallbackLocked discards the timeline before a structural change
// so stale mappings cannot be consulted. Callers hold c.mu.
func (c *Coordinator) dropToFallbackLocked() {
	if c.cancelBuild != nil {
		c.cancelBuild()
		c.cancelBuild = nil
	}
	c.tl = nil
	c.plan = nil
	if c.state == StateComposed || c.state == StateBuilding {
		c.state = StateSequentialFallback
		if c.metrics != nil {
			c.metrics.SetFallbackActive(true)
		}
	}
}

func (c *Coordinator) clampIndexLocked() {
	if c.proj == nil || len(c.proj.Segments) == 0 {
		c.currentIndex = 0
		return
	}
	if c.currentIndex > len(c.proj.Segments)-1 {
		c.currentIndex = len(c.proj.Segments) - 1
	}
	if c.currentIndex < 0 {
		c.currentIndex = 0
	}
}

// startBuildLocked supersedes any in-flight build and launches a new
// one under the next generation. A superseded build's completion and
// progress are discarded: only the build whose generation still matches
// at completion time may set coordinator state. Callers hold c.mu.
func (c *Coordinator) startBuildLocked(ctx context.Context) {
	if c.cancelBuild != nil {
		c.cancelBuild()
	}

	c.generation++
	gen := c.generation
	segments := c.proj.SortedSegments()

	if len(segments) == 0 {
		// Builds are only triggered from mutations that keep >= 1
		// segment, so this is a terminal misconfiguration.
		c.state = StateBuildFailed
		c.lastError = timeline.ErrCompositionFailed.Error()
		return
	}

	// The build outlives the triggering request; only Close or a newer
	// build cancels it.
	buildCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancelBuild = cancel
	c.state = StateBuilding
	c.tl = nil
	c.plan = nil

	if c.metrics != nil {
		c.metrics.IncBuildsStarted()
	}
	if c.logger != nil {
		c.logger.Info("composed build started", "project_id", c.proj.ID, "build_gen", gen, "segments", len(segments))
	}

	rawProgress := make(chan timeline.Progress, len(segments)+1)
	go c.forwardProgress(gen, rawProgress)

	go func() {
		defer close(rawProgress)
		tl, plan, err := c.builder.Build(buildCtx, segments, rawProgress)
		c.finishBuild(buildCtx, gen, tl, plan, err)
	}()
}

// forwardProgress republishes builder progress tagged with its build
// generation, suppressing events from superseded builds.
func (c *Coordinator) forwardProgress(gen uint64, in <-chan timeline.Progress) {
	for p := range in {
		c.mu.Lock()
		if gen == c.generation && !c.closed {
			select {
			case c.progressCh <- BuildProgress{Generation: gen, Processed: p.Processed, Total: p.Total}:
			default:
				// Slow subscribers never stall a build.
			}
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) finishBuild(ctx context.Context, gen uint64, tl *timeline.Timeline, plan *timeline.CompositionPlan, err error) {
	c.mu.Lock()
	if gen != c.generation {
		// Superseded: a newer transition owns the state now.
		c.mu.Unlock()
		return
	}

	if err != nil {
		c.cancelBuild = nil
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.mu.Unlock()
			return
		}
		c.state = StateSequentialFallback
		c.currentIndex = 0
		c.lastError = err.Error()
		c.mu.Unlock()

		if c.metrics != nil {
			c.metrics.IncBuildsFailed()
			c.metrics.SetFallbackActive(true)
		}
		if c.logger != nil {
			c.logger.Warn("composed build failed, playing segments individually", "build_gen", gen, "error", err)
		}
		return
	}

	c.tl = tl
	c.plan = plan
	c.state = StateComposed
	c.cancelBuild = nil
	c.lastError = ""
	c.clampIndexLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.IncBuildsSucceeded()
		c.metrics.AddSegmentsSkipped(len(plan.Skipped))
		c.metrics.SetFallbackActive(false)
	}

	// Hand the plan to the backend outside the lock; a failed hand-off
	// degrades to fallback just like a failed build.
	if err := c.backend.LoadComposition(ctx, plan); err != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.state = StateSequentialFallback
			c.lastError = err.Error()
			c.tl = nil
			c.plan = nil
		}
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.SetFallbackActive(true)
		}
		if c.logger != nil {
			c.logger.Warn("backend rejected composition, playing segments individually", "build_gen", gen, "error", err)
		}
		return
	}

	if c.logger != nil {
		c.logger.Info("composed playback ready",
			"build_gen", gen,
			"total_ms", tl.TotalMs,
			"segments", len(plan.Entries),
			"skipped", len(plan.Skipped),
		)
	}
}
