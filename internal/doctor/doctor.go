// Package doctor probes the availability of the external media tools
// (ffmpeg, ffprobe) the agent depends on, with a cached result so the
// status endpoint does not hit the filesystem on every request.
package doctor

import (
	"log/slog"
	"os/exec"
	"sync"
	"time"
)

const defaultCacheTTL = 5 * time.Minute

// Capabilities reports which external tools are resolvable. Without
// ffprobe, composed builds always degrade to sequential fallback;
// without ffmpeg, export jobs fail.
type Capabilities struct {
	HasFFprobe  bool      `json:"has_ffprobe"`
	HasFFmpeg   bool      `json:"has_ffmpeg"`
	FFprobePath string    `json:"ffprobe_path,omitempty"`
	FFmpegPath  string    `json:"ffmpeg_path,omitempty"`
	ProbedAt    time.Time `json:"probed_at"`
}

// Doctor caches tool availability probes with a TTL.
type Doctor struct {
	ffmpegBin  string
	ffprobeBin string
	ttl        time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

func New(ffmpegBin, ffprobeBin string, logger *slog.Logger) *Doctor {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &Doctor{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		ttl:        defaultCacheTTL,
		logger:     logger,
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *Doctor) Get() *Capabilities {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps
	}
	d.mu.RUnlock()

	return d.Refresh()
}

// Refresh forces a new probe regardless of cache freshness.
func (d *Doctor) Refresh() *Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps := &Capabilities{ProbedAt: time.Now()}
	if path, err := exec.LookPath(d.ffmpegBin); err == nil {
		caps.HasFFmpeg = true
		caps.FFmpegPath = path
	}
	if path, err := exec.LookPath(d.ffprobeBin); err == nil {
		caps.HasFFprobe = true
		caps.FFprobePath = path
	}

	if d.logger != nil && (!caps.HasFFmpeg || !caps.HasFFprobe) {
		d.logger.Warn("media tools missing",
			"has_ffmpeg", caps.HasFFmpeg,
			"has_ffprobe", caps.HasFFprobe,
		)
	}

	d.cached = caps
	return caps
}

// Invalidate clears the cached capabilities.
func (d *Doctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
