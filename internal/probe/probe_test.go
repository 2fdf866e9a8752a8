package probe

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseMetadata(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1080, "height": 1920}
		],
		"format": {"duration": "1.042000"}
	}`)

	md, err := parseMetadata(data)
	if err != nil {
		t.Fatalf("parseMetadata() error = %v", err)
	}
	if md.DurationMs != 1042 {
		t.Errorf("DurationMs = %d, want 1042", md.DurationMs)
	}
	if md.Width != 1080 || md.Height != 1920 {
		t.Errorf("dimensions = %dx%d, want 1080x1920", md.Width, md.Height)
	}
	if md.RotationDeg != 0 {
		t.Errorf("RotationDeg = %d, want 0", md.RotationDeg)
	}
}

func TestParseMetadata_NoVideoStream(t *testing.T) {
	data := []byte(`{"streams": [{"codec_type": "audio"}], "format": {"duration": "1.0"}}`)

	_, err := parseMetadata(data)
	if !errors.Is(err, ErrProbe) {
		t.Errorf("error = %v, want ErrProbe", err)
	}
}

func TestParseMetadata_InvalidDuration(t *testing.T) {
	tests := []string{`""`, `"0"`, `"-1.5"`, `"abc"`}
	for _, dur := range tests {
		data := []byte(`{
			"streams": [{"codec_type": "video", "width": 100, "height": 100}],
			"format": {"duration": ` + dur + `}
		}`)
		if _, err := parseMetadata(data); !errors.Is(err, ErrProbe) {
			t.Errorf("duration %s: error = %v, want ErrProbe", dur, err)
		}
	}
}

func TestParseMetadata_InvalidDimensions(t *testing.T) {
	data := []byte(`{
		"streams": [{"codec_type": "video", "width": 0, "height": 1920}],
		"format": {"duration": "1.0"}
	}`)
	if _, err := parseMetadata(data); !errors.Is(err, ErrProbe) {
		t.Errorf("error = %v, want ErrProbe", err)
	}
}

func TestParseMetadata_Garbage(t *testing.T) {
	if _, err := parseMetadata([]byte("not json")); !errors.Is(err, ErrProbe) {
		t.Errorf("error = %v, want ErrProbe", err)
	}
}

func TestParseMetadata_RotationFromSideData(t *testing.T) {
	data := []byte(`{
		"streams": [{
			"codec_type": "video", "width": 1920, "height": 1080,
			"tags": {"rotate": "180"},
			"side_data_list": [{"rotation": -90}]
		}],
		"format": {"duration": "1.0"}
	}`)

	md, err := parseMetadata(data)
	if err != nil {
		t.Fatalf("parseMetadata() error = %v", err)
	}
	// Side data wins over the legacy tag; -90 normalizes to 270.
	if md.RotationDeg != 270 {
		t.Errorf("RotationDeg = %d, want 270", md.RotationDeg)
	}
}

func TestParseMetadata_RotationFromLegacyTag(t *testing.T) {
	data := []byte(`{
		"streams": [{
			"codec_type": "video", "width": 1920, "height": 1080,
			"tags": {"rotate": "90"}
		}],
		"format": {"duration": "1.0"}
	}`)

	md, err := parseMetadata(data)
	if err != nil {
		t.Fatalf("parseMetadata() error = %v", err)
	}
	if md.RotationDeg != 90 {
		t.Errorf("RotationDeg = %d, want 90", md.RotationDeg)
	}
}

func TestRotationNormalization(t *testing.T) {
	tests := []struct {
		rotation int
		want     int
	}{
		{0, 0},
		{90, 90},
		{-90, 270},
		{-180, 180},
		{360, 0},
		{450, 90},
		{-270, 90},
	}

	for _, tt := range tests {
		s := &ffprobeStream{SideDataList: []ffprobeSideData{{Rotation: tt.rotation}}}
		if got := rotationOf(s); got != tt.want {
			t.Errorf("rotationOf(%d) = %d, want %d", tt.rotation, got, tt.want)
		}
	}
}

func TestFFProbe_MissingFile(t *testing.T) {
	p := NewFFProbe("ffprobe", nil)

	_, err := p.Probe(context.Background(), "/nonexistent/clip.mp4")
	if !errors.Is(err, ErrProbe) {
		t.Errorf("error = %v, want ErrProbe", err)
	}
}

func TestFFProbe_CancelledWhileWaiting(t *testing.T) {
	p := NewFFProbe("ffprobe", nil)

	// Occupy the single probe handle so the next caller has to wait.
	p.gate <- struct{}{}
	defer func() { <-p.gate }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Probe(ctx, "/some/clip.mp4")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
}

func TestStubProber_Defaults(t *testing.T) {
	s := NewStubProber(nil)

	if _, err := s.Probe(context.Background(), "/unknown.mp4"); !errors.Is(err, ErrProbe) {
		t.Errorf("error = %v, want ErrProbe for unseeded path", err)
	}

	s.SetResult("/known.mp4", Metadata{DurationMs: 1000, Width: 10, Height: 10})
	md, err := s.Probe(context.Background(), "/known.mp4")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if md.DurationMs != 1000 {
		t.Errorf("DurationMs = %d, want 1000", md.DurationMs)
	}
	if calls := s.Calls(); len(calls) != 2 {
		t.Errorf("calls = %d, want 2", len(calls))
	}
}
