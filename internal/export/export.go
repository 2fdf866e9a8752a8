// Package export writes a composition plan out as a single media file
// using ffmpeg's concat demuxer, and runs exports as persisted jobs.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/snapreel/snapreel-agent/internal/timeline"
)

// ProgressFunc receives (processed, total) counts. The final tick fires
// after ffmpeg finishes, so callers can reserve the last step of a
// progress bar for the concat run itself.
type ProgressFunc func(processed, total int)

// Exporter is the export-backend contract: it accepts the same
// CompositionPlan artifact the playback backend consumes.
type Exporter interface {
	Export(ctx context.Context, plan *timeline.CompositionPlan, outputPath string, onProgress ProgressFunc) error
}

// FFmpegExporter concatenates plan entries without re-encoding.
// Segments are captured with matching codec parameters, so stream copy
// is sufficient and fast.
type FFmpegExporter struct {
	bin    string
	logger *slog.Logger
}

func NewFFmpegExporter(bin string, logger *slog.Logger) *FFmpegExporter {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &FFmpegExporter{bin: bin, logger: logger}
}

func (e *FFmpegExporter) Export(ctx context.Context, plan *timeline.CompositionPlan, outputPath string, onProgress ProgressFunc) error {
	if plan == nil || len(plan.Entries) == 0 {
		return fmt.Errorf("composition plan is empty")
	}

	// One progress step per entry, plus one for the concat run.
	total := len(plan.Entries) + 1

	concatPath, err := writeConcatFile(plan, onProgress, total)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatPath)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatPath,
		"-c", "copy",
		"-y",
		outputPath,
	}
	cmd := exec.CommandContext(ctx, e.bin, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w (output: %s)", err, truncate(string(output), 512))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}

	if onProgress != nil {
		onProgress(total, total)
	}
	if e.logger != nil {
		e.logger.Info("export completed", "output", outputPath, "segments", len(plan.Entries))
	}
	return nil
}

// writeConcatFile lists plan entries in playback order for the ffmpeg
// concat demuxer, one `file '...'` line per segment.
func writeConcatFile(plan *timeline.CompositionPlan, onProgress ProgressFunc, total int) (string, error) {
	tmpFile, err := os.CreateTemp("", "snapreel-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for i, entry := range plan.Entries {
		absPath, err := filepath.Abs(entry.MediaPath)
		if err != nil {
			os.Remove(tmpFile.Name())
			return "", fmt.Errorf("failed to resolve %s: %w", entry.MediaPath, err)
		}

		// Single quotes in paths must be escaped for the demuxer.
		escapedPath := strings.ReplaceAll(absPath, "'", "'\\''")

		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", escapedPath); err != nil {
			os.Remove(tmpFile.Name())
			return "", err
		}

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	return tmpFile.Name(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[len(s)-maxLen:]
}
