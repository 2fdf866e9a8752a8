package project

import (
	"errors"
	"testing"
	"time"
)

func testProject(orders ...int) Project {
	p := NewProject("Test Reel")
	for _, o := range orders {
		p.Segments = append(p.Segments, Segment{
			ID:         NewID(),
			MediaPath:  "/media/seg.mp4",
			Facing:     FacingBack,
			CapturedAt: time.Now().UTC(),
			Order:      o,
		})
	}
	return p
}

func TestWithSegmentAdded_AppendsAtMaxPlusOne(t *testing.T) {
	p := testProject(1, 2, 3)

	next := p.WithSegmentAdded(Segment{ID: "new", MediaPath: "/media/new.mp4"})

	if len(next.Segments) != 4 {
		t.Fatalf("segment count = %d, want 4", len(next.Segments))
	}
	added := next.Segments[len(next.Segments)-1]
	if added.Order != 4 {
		t.Errorf("added segment order = %d, want 4", added.Order)
	}
	if len(p.Segments) != 3 {
		t.Errorf("original project mutated: %d segments, want 3", len(p.Segments))
	}
}

func TestWithSegmentAdded_EmptyProject(t *testing.T) {
	p := testProject()

	next := p.WithSegmentAdded(Segment{ID: "first"})
	if next.Segments[0].Order != 1 {
		t.Errorf("first segment order = %d, want 1", next.Segments[0].Order)
	}
}

func TestWithSegmentRemoved_Renumbers(t *testing.T) {
	p := testProject(1, 2, 3, 4)
	victim := p.Segments[1] // order 2

	next, removed, err := p.WithSegmentRemoved(victim.ID)
	if err != nil {
		t.Fatalf("WithSegmentRemoved() error = %v", err)
	}
	if removed.ID != victim.ID {
		t.Errorf("removed.ID = %s, want %s", removed.ID, victim.ID)
	}
	if len(next.Segments) != 3 {
		t.Fatalf("segment count = %d, want 3", len(next.Segments))
	}
	if err := next.ValidateOrdering(); err != nil {
		t.Errorf("ordering invariant violated after removal: %v", err)
	}

	// Relative order of survivors is preserved.
	sorted := next.SortedSegments()
	if sorted[0].ID != p.Segments[0].ID || sorted[1].ID != p.Segments[2].ID || sorted[2].ID != p.Segments[3].ID {
		t.Error("survivor order changed after removal")
	}
}

func TestWithSegmentRemoved_LastSegmentRejected(t *testing.T) {
	p := testProject(1)

	next, _, err := p.WithSegmentRemoved(p.Segments[0].ID)
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("error = %v, want ErrInvalidOperation", err)
	}
	if len(next.Segments) != 1 {
		t.Errorf("project changed on rejected delete: %d segments, want 1", len(next.Segments))
	}
}

func TestWithSegmentRemoved_UnknownSegment(t *testing.T) {
	p := testProject(1, 2)

	_, _, err := p.WithSegmentRemoved("does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestWithSegmentRemoved_DoesNotMutateOriginal(t *testing.T) {
	p := testProject(1, 2, 3)
	before := make([]Segment, len(p.Segments))
	copy(before, p.Segments)

	if _, _, err := p.WithSegmentRemoved(p.Segments[0].ID); err != nil {
		t.Fatalf("WithSegmentRemoved() error = %v", err)
	}

	for i, s := range p.Segments {
		if s != before[i] {
			t.Fatalf("original segments mutated at %d: %+v != %+v", i, s, before[i])
		}
	}
}

func TestRenumber_ContiguousFromSparse(t *testing.T) {
	segs := []Segment{
		{ID: "c", Order: 9},
		{ID: "a", Order: 2},
		{ID: "b", Order: 5},
	}

	out := Renumber(segs)

	want := []struct {
		id    string
		order int
	}{{"a", 1}, {"b", 2}, {"c", 3}}
	for i, w := range want {
		if out[i].ID != w.id || out[i].Order != w.order {
			t.Errorf("out[%d] = {%s %d}, want {%s %d}", i, out[i].ID, out[i].Order, w.id, w.order)
		}
	}

	if segs[0].Order != 9 {
		t.Error("Renumber mutated its input")
	}
}

func TestValidateOrdering(t *testing.T) {
	if err := testProject(1, 2, 3).ValidateOrdering(); err != nil {
		t.Errorf("contiguous project invalid: %v", err)
	}
	if err := testProject(1, 3).ValidateOrdering(); err == nil {
		t.Error("gapped ordering accepted")
	}
	if err := testProject().ValidateOrdering(); err != nil {
		t.Errorf("empty project invalid: %v", err)
	}
}

func TestSortedSegments_DoesNotMutate(t *testing.T) {
	p := testProject(3, 1, 2)

	sorted := p.SortedSegments()
	for i, s := range sorted {
		if s.Order != i+1 {
			t.Errorf("sorted[%d].Order = %d, want %d", i, s.Order, i+1)
		}
	}
	if p.Segments[0].Order != 3 {
		t.Error("SortedSegments mutated the project")
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"clip.mp4", true},
		{"clip.MOV", true},
		{"clip.mkv", true},
		{"clip.txt", false},
		{"clip", false},
		{".mp4", true},
		{"archive.mp4.part", false},
	}

	for _, tt := range tests {
		if got := IsVideoFile(tt.filename); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}
