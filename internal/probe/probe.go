// Package probe reads duration and frame geometry from segment media
// files using the ffprobe command-line tool.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
)

// ErrProbe marks per-segment metadata failures. Builds recover from
// these by skipping the segment; they are never batch-fatal.
var ErrProbe = errors.New("probe failed")

// Metadata is the probed media metadata the timeline builder consumes.
// RotationDeg is normalized to 0, 90, 180 or 270.
type Metadata struct {
	DurationMs  int64
	Width       int
	Height      int
	RotationDeg int
}

type Prober interface {
	Probe(ctx context.Context, mediaPath string) (Metadata, error)
}

// FFProbe shells out to ffprobe. The gate limits the process to one
// outstanding probe handle at a time: decoder handles are a hard-capped
// OS resource, and holding one per segment across a large build is how
// the handle budget gets exhausted. Acquisition is scoped to a single
// Probe call and released on every exit path.
type FFProbe struct {
	bin    string
	gate   chan struct{}
	logger *slog.Logger
}

func NewFFProbe(bin string, logger *slog.Logger) *FFProbe {
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbe{
		bin:    bin,
		gate:   make(chan struct{}, 1),
		logger: logger,
	}
}

func (f *FFProbe) Probe(ctx context.Context, mediaPath string) (Metadata, error) {
	select {
	case f.gate <- struct{}{}:
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	}
	defer func() { <-f.gate }()

	if _, err := os.Stat(mediaPath); err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrProbe, err)
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		mediaPath,
	}
	cmd := exec.CommandContext(ctx, f.bin, args...)
	output, err := cmd.Output()
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: ffprobe: %v", ErrProbe, err)
	}

	md, err := parseMetadata(output)
	if err != nil {
		return Metadata{}, err
	}
	if f.logger != nil {
		f.logger.Debug("probed segment",
			"path", mediaPath,
			"duration_ms", md.DurationMs,
			"width", md.Width,
			"height", md.Height,
			"rotation", md.RotationDeg,
		)
	}
	return md, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width,omitempty"`
	Height       int               `json:"height,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	SideDataList []ffprobeSideData `json:"side_data_list,omitempty"`
}

type ffprobeSideData struct {
	Rotation int `json:"rotation,omitempty"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

func parseMetadata(data []byte) (Metadata, error) {
	var out ffprobeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("%w: parse ffprobe output: %v", ErrProbe, err)
	}

	var video *ffprobeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			video = &out.Streams[i]
			break
		}
	}
	if video == nil {
		return Metadata{}, fmt.Errorf("%w: no video stream", ErrProbe)
	}

	durationSec, err := strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil || durationSec <= 0 {
		return Metadata{}, fmt.Errorf("%w: invalid duration %q", ErrProbe, out.Format.Duration)
	}
	if video.Width <= 0 || video.Height <= 0 {
		return Metadata{}, fmt.Errorf("%w: invalid dimensions %dx%d", ErrProbe, video.Width, video.Height)
	}

	return Metadata{
		DurationMs:  int64(durationSec * 1000),
		Width:       video.Width,
		Height:      video.Height,
		RotationDeg: rotationOf(video),
	}, nil
}

// rotationOf prefers display-matrix side data (modern ffprobe) over the
// legacy rotate tag. Negative values are common; normalize to [0, 360).
func rotationOf(s *ffprobeStream) int {
	rot := 0
	found := false
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			rot = sd.Rotation
			found = true
			break
		}
	}
	if !found {
		if tag, ok := s.Tags["rotate"]; ok {
			if n, err := strconv.Atoi(tag); err == nil {
				rot = n
			}
		}
	}
	return ((rot % 360) + 360) % 360
}
