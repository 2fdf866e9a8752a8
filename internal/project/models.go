// Package project defines reel projects and their ordered segments,
// plus the pure transformations the playback engine relies on.
package project

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidOperation marks caller contract violations, e.g. deleting
	// the sole remaining segment of a project. State is left unchanged.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNotFound marks lookups for entities that do not exist.
	ErrNotFound = errors.New("not found")
)

type Facing string

const (
	FacingBack  Facing = "back"
	FacingFront Facing = "front"
)

// Segment is one captured media unit. Order is 1-based; within a project
// the order values of all segments form a contiguous 1..N sequence and
// ascending order defines playback sequence.
type Segment struct {
	ID         string    `json:"id"`
	MediaPath  string    `json:"media_path"`
	Facing     Facing    `json:"facing"`
	CapturedAt time.Time `json:"captured_at"`
	Order      int       `json:"order"`
}

// Project is an ordered collection of segments. It is immutable by
// replacement: every mutation returns a new Project value with
// LastModified refreshed. Callers never reorder Segments in place.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
	Segments     []Segment `json:"segments"`
}

const (
	JobTypeExport = "export"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job is a persisted background task. Export is the only job type today.
type Job struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Status     string    `json:"status"`
	ProjectID  string    `json:"project_id,omitempty"`
	OutputPath string    `json:"output_path,omitempty"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewID() string {
	return uuid.NewString()
}

// NewProject creates an empty named project.
func NewProject(name string) Project {
	now := time.Now().UTC()
	return Project{
		ID:           NewID(),
		Name:         name,
		CreatedAt:    now,
		LastModified: now,
	}
}

// SortedSegments returns a copy of the segments sorted by ascending order.
func (p Project) SortedSegments() []Segment {
	out := make([]Segment, len(p.Segments))
	copy(out, p.Segments)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// MaxOrder returns the highest order value, or 0 for an empty project.
func (p Project) MaxOrder() int {
	max := 0
	for _, s := range p.Segments {
		if s.Order > max {
			max = s.Order
		}
	}
	return max
}

// SegmentByID returns the segment with the given id.
func (p Project) SegmentByID(id string) (Segment, error) {
	for _, s := range p.Segments {
		if s.ID == id {
			return s, nil
		}
	}
	return Segment{}, fmt.Errorf("segment %s: %w", id, ErrNotFound)
}

// WithName returns a renamed copy of the project.
func (p Project) WithName(name string) Project {
	next := p.clone()
	next.Name = name
	next.LastModified = time.Now().UTC()
	return next
}

// WithSegmentAdded returns a copy of the project with the segment
// appended at order MaxOrder+1.
func (p Project) WithSegmentAdded(s Segment) Project {
	next := p.clone()
	s.Order = p.MaxOrder() + 1
	next.Segments = append(next.Segments, s)
	next.LastModified = time.Now().UTC()
	return next
}

// WithSegmentRemoved returns a copy of the project with the segment
// removed and the remaining segments renumbered to a contiguous 1..N-1
// sequence preserving their relative order. Removing the sole remaining
// segment is a contract violation and returns ErrInvalidOperation with
// the project unchanged.
func (p Project) WithSegmentRemoved(segmentID string) (Project, Segment, error) {
	removed, err := p.SegmentByID(segmentID)
	if err != nil {
		return p, Segment{}, err
	}
	if len(p.Segments) == 1 {
		return p, Segment{}, fmt.Errorf("cannot delete the last remaining segment: %w", ErrInvalidOperation)
	}

	next := p.clone()
	kept := make([]Segment, 0, len(next.Segments)-1)
	for _, s := range next.Segments {
		if s.ID != segmentID {
			kept = append(kept, s)
		}
	}
	next.Segments = Renumber(kept)
	next.LastModified = time.Now().UTC()
	return next, removed, nil
}

// Renumber sorts segments by order and rewrites order values to a
// contiguous 1..N sequence. The input slice is not modified.
func Renumber(segments []Segment) []Segment {
	out := make([]Segment, len(segments))
	copy(out, segments)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	for i := range out {
		out[i].Order = i + 1
	}
	return out
}

// ValidateOrdering checks the contiguous 1..N order invariant.
func (p Project) ValidateOrdering() error {
	sorted := p.SortedSegments()
	for i, s := range sorted {
		if s.Order != i+1 {
			return fmt.Errorf("segment %s has order %d, want %d", s.ID, s.Order, i+1)
		}
	}
	return nil
}

func (p Project) clone() Project {
	next := p
	next.Segments = make([]Segment, len(p.Segments))
	copy(next.Segments, p.Segments)
	return next
}

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".mkv": true,
}

// IsVideoFile reports whether the filename carries a supported video extension.
func IsVideoFile(filename string) bool {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			ext := make([]byte, len(filename)-i)
			for j, c := range filename[i:] {
				if c >= 'A' && c <= 'Z' {
					ext[j] = byte(c + 32)
				} else {
					ext[j] = byte(c)
				}
			}
			return videoExtensions[string(ext)]
		}
	}
	return false
}
