// Package timeline turns an ordered segment list into a single virtual
// timeline: per-segment time ranges over a composed duration, a
// position-to-segment mapper, and the validated composition plan handed
// to playback and export backends.
package timeline

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrCompositionFailed means no segment in the batch was playable.
	// Callers degrade to sequential fallback playback.
	ErrCompositionFailed = errors.New("composition failed: no playable segments")

	// ErrOutOfBounds marks an index or position outside the valid range.
	ErrOutOfBounds = errors.New("out of bounds")
)

// SegmentTimeRange locates one segment on the composed timeline.
// Index is the 0-based position within the sorted-by-order sequence.
// Ranges are half-open: a segment owns [StartMs, StartMs+DurationMs).
type SegmentTimeRange struct {
	Index      int   `json:"index"`
	StartMs    int64 `json:"start_ms"`
	DurationMs int64 `json:"duration_ms"`
}

func (r SegmentTimeRange) EndMs() int64 {
	return r.StartMs + r.DurationMs
}

// Timeline is the computed mapping from global composed position to
// segment boundaries. It is a snapshot: the instant the underlying
// segment list changes it is stale and must not be used for mapping.
type Timeline struct {
	TotalMs int64              `json:"total_ms"`
	Ranges  []SegmentTimeRange `json:"ranges"`
}

// IndexAt maps a global position to the segment index owning it.
// Boundary positions belong to the later segment; a position equal to
// TotalMs (or otherwise outside the timeline) resolves to no segment.
// Ranges are sorted and non-overlapping, so binary search applies.
func (t *Timeline) IndexAt(positionMs int64) (int, bool) {
	if positionMs < 0 || positionMs >= t.TotalMs {
		return 0, false
	}
	i := sort.Search(len(t.Ranges), func(i int) bool {
		return t.Ranges[i].EndMs() > positionMs
	})
	if i >= len(t.Ranges) {
		return 0, false
	}
	return t.Ranges[i].Index, true
}

// RangeOf returns the time range of the given segment index.
func (t *Timeline) RangeOf(index int) (SegmentTimeRange, error) {
	if index < 0 || index >= len(t.Ranges) {
		return SegmentTimeRange{}, fmt.Errorf("segment index %d: %w", index, ErrOutOfBounds)
	}
	return t.Ranges[index], nil
}

// Validate checks the range invariants: ascending contiguous indices,
// no overlap, durations summing to TotalMs.
func (t *Timeline) Validate() error {
	var offset int64
	for i, r := range t.Ranges {
		if r.Index != i {
			return fmt.Errorf("range %d has index %d", i, r.Index)
		}
		if r.StartMs != offset {
			return fmt.Errorf("range %d starts at %d, want %d", i, r.StartMs, offset)
		}
		if r.DurationMs <= 0 {
			return fmt.Errorf("range %d has non-positive duration %d", i, r.DurationMs)
		}
		offset += r.DurationMs
	}
	if offset != t.TotalMs {
		return fmt.Errorf("ranges sum to %d, total is %d", offset, t.TotalMs)
	}
	return nil
}

// Geometry is the shared geometry-correction descriptor applied to the
// whole composition, derived from the first valid segment. When Known
// is false the dimensions are a configured default and downstream
// consumers must treat the geometry as advisory, not probed fact.
type Geometry struct {
	Width       int  `json:"width"`
	Height      int  `json:"height"`
	RotationDeg int  `json:"rotation_deg"`
	Known       bool `json:"known"`
}

// PlanEntry is one validated media reference in playback order.
type PlanEntry struct {
	SegmentID  string `json:"segment_id"`
	MediaPath  string `json:"media_path"`
	DurationMs int64  `json:"duration_ms"`
}

// CompositionPlan is the ordered, validated artifact handed to the
// playback and export backends. Segments that failed probing are listed
// in Skipped for diagnostics; they never block playback.
type CompositionPlan struct {
	Entries  []PlanEntry `json:"entries"`
	Geometry Geometry    `json:"geometry"`
	Skipped  []string    `json:"skipped,omitempty"`
}
