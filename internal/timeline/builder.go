package timeline

import (
	"context"
	"log/slog"
	"sort"

	"github.com/snapreel/snapreel-agent/internal/probe"
	"github.com/snapreel/snapreel-agent/internal/project"
)

// Progress reports build advancement after each segment, whether the
// segment was accepted or skipped.
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Builder probes an ordered segment list and produces a Timeline plus a
// CompositionPlan. Probing is strictly sequential: combined with the
// prober's own gate, a build never holds more than one metadata handle,
// no matter how many segments the project has.
type Builder struct {
	prober   probe.Prober
	defaultW int
	defaultH int
	logger   *slog.Logger
}

func NewBuilder(prober probe.Prober, logger *slog.Logger) *Builder {
	return &Builder{
		prober:   prober,
		defaultW: 1080,
		defaultH: 1920,
		logger:   logger,
	}
}

// WithDefaultGeometry sets the advisory dimensions reported when no
// segment yields probed geometry.
func (b *Builder) WithDefaultGeometry(width, height int) *Builder {
	if width > 0 && height > 0 {
		b.defaultW = width
		b.defaultH = height
	}
	return b
}

// Build walks the segments in ascending order, probing each one.
// Per-segment probe failures are logged and skipped; the segment simply
// does not appear in the plan or the timeline. Only an entirely empty
// plan fails the build, with ErrCompositionFailed.
//
// progress, when non-nil, receives (processed, total) after every
// segment in increasing order. The channel is not closed by Build; the
// caller owns it.
func (b *Builder) Build(ctx context.Context, segments []project.Segment, progress chan<- Progress) (*Timeline, *CompositionPlan, error) {
	// Defensive: callers should hand over a sorted list already.
	ordered := make([]project.Segment, len(segments))
	copy(ordered, segments)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Order < ordered[j].Order })

	tl := &Timeline{}
	plan := &CompositionPlan{}
	total := len(ordered)
	var runningTotal int64

	for i, seg := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		md, err := b.prober.Probe(ctx, seg.MediaPath)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			if b.logger != nil {
				b.logger.Warn("skipping unplayable segment",
					"segment_id", seg.ID,
					"order", seg.Order,
					"error", err,
				)
			}
			plan.Skipped = append(plan.Skipped, seg.ID)
			b.emit(ctx, progress, Progress{Processed: i + 1, Total: total})
			continue
		}

		if !plan.Geometry.Known {
			plan.Geometry = geometryFrom(md)
		}

		tl.Ranges = append(tl.Ranges, SegmentTimeRange{
			Index:      len(tl.Ranges),
			StartMs:    runningTotal,
			DurationMs: md.DurationMs,
		})
		plan.Entries = append(plan.Entries, PlanEntry{
			SegmentID:  seg.ID,
			MediaPath:  seg.MediaPath,
			DurationMs: md.DurationMs,
		})
		runningTotal += md.DurationMs

		b.emit(ctx, progress, Progress{Processed: i + 1, Total: total})
	}

	if len(plan.Entries) == 0 {
		return nil, nil, ErrCompositionFailed
	}

	if !plan.Geometry.Known {
		plan.Geometry = Geometry{Width: b.defaultW, Height: b.defaultH}
	}

	tl.TotalMs = runningTotal
	if b.logger != nil {
		b.logger.Info("timeline built",
			"segments", len(plan.Entries),
			"skipped", len(plan.Skipped),
			"total_ms", tl.TotalMs,
		)
	}
	return tl, plan, nil
}

func (b *Builder) emit(ctx context.Context, progress chan<- Progress, p Progress) {
	if progress == nil {
		return
	}
	select {
	case progress <- p:
	case <-ctx.Done():
	}
}

// geometryFrom records the first valid segment's geometry. A 90 or 270
// degree rotation swaps width and height: the decoder presents frames
// pre-rotated.
func geometryFrom(md probe.Metadata) Geometry {
	g := Geometry{
		Width:       md.Width,
		Height:      md.Height,
		RotationDeg: md.RotationDeg,
		Known:       true,
	}
	if md.RotationDeg == 90 || md.RotationDeg == 270 {
		g.Width, g.Height = g.Height, g.Width
	}
	return g
}
