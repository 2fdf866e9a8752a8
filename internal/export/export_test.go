package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/snapreel/snapreel-agent/internal/timeline"
)

func TestWriteConcatFile(t *testing.T) {
	plan := &timeline.CompositionPlan{
		Entries: []timeline.PlanEntry{
			{SegmentID: "a", MediaPath: "/media/first.mp4", DurationMs: 1000},
			{SegmentID: "b", MediaPath: "/media/second.mp4", DurationMs: 900},
		},
	}

	var ticks []int
	path, err := writeConcatFile(plan, func(processed, total int) {
		ticks = append(ticks, processed)
	}, 3)
	if err != nil {
		t.Fatalf("writeConcatFile() error = %v", err)
	}
	defer os.Remove(path)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read concat file: %v", err)
	}
	content := string(data)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != 2 {
		t.Fatalf("concat lines = %d, want 2", len(lines))
	}
	if lines[0] != "file '/media/first.mp4'" {
		t.Errorf("lines[0] = %q", lines[0])
	}
	if lines[1] != "file '/media/second.mp4'" {
		t.Errorf("lines[1] = %q", lines[1])
	}

	if len(ticks) != 2 || ticks[0] != 1 || ticks[1] != 2 {
		t.Errorf("progress ticks = %v, want [1 2]", ticks)
	}
}

func TestWriteConcatFile_EscapesQuotes(t *testing.T) {
	plan := &timeline.CompositionPlan{
		Entries: []timeline.PlanEntry{
			{SegmentID: "a", MediaPath: "/media/it's a clip.mp4", DurationMs: 1000},
		},
	}

	path, err := writeConcatFile(plan, nil, 2)
	if err != nil {
		t.Fatalf("writeConcatFile() error = %v", err)
	}
	defer os.Remove(path)

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `it'\''s a clip.mp4`) {
		t.Errorf("quote not escaped: %q", string(data))
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Reel", "My Reel"},
		{"reel/with\\slashes", "reel_with_slashes"},
		{"  padded  ", "padded"},
		{"tabs\tand\nnewlines", "tabsandnewlines"},
		{"unicode ünïcode", "unicode ünïcode"},
		{"dots.and-dashes_ok", "dots.and-dashes_ok"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in, 0); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	if got := SanitizeName(long, 120); len(got) != 120 {
		t.Errorf("len = %d, want 120", len(got))
	}
}

func TestValidateOutputDir(t *testing.T) {
	tmpDir := t.TempDir()

	if err := ValidateOutputDir(tmpDir); err != nil {
		t.Errorf("valid dir rejected: %v", err)
	}
	if err := ValidateOutputDir(""); err == nil {
		t.Error("empty dir accepted")
	}
	if err := ValidateOutputDir(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("nonexistent dir accepted")
	}
	if err := ValidateOutputDir(tmpDir + "/../escape"); err == nil {
		t.Error("traversal accepted")
	}

	file := filepath.Join(tmpDir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := ValidateOutputDir(file); err == nil {
		t.Error("plain file accepted as directory")
	}
}

func TestExport_EmptyPlan(t *testing.T) {
	e := NewFFmpegExporter("ffmpeg", nil)

	ctx := context.Background()
	if err := e.Export(ctx, &timeline.CompositionPlan{}, "/out/x.mp4", nil); err == nil {
		t.Error("empty plan accepted")
	}
	if err := e.Export(ctx, nil, "/out/x.mp4", nil); err == nil {
		t.Error("nil plan accepted")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("truncate short = %q", got)
	}
	// The tail survives: that is where ffmpeg prints its error.
	if got := truncate("0123456789", 4); got != "6789" {
		t.Errorf("truncate long = %q, want 6789", got)
	}
}
