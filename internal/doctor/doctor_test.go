package doctor

import (
	"testing"
)

func TestDoctor_MissingTools(t *testing.T) {
	d := New("definitely-not-ffmpeg-xyz", "definitely-not-ffprobe-xyz", nil)

	caps := d.Get()
	if caps.HasFFmpeg {
		t.Error("HasFFmpeg = true for nonexistent binary")
	}
	if caps.HasFFprobe {
		t.Error("HasFFprobe = true for nonexistent binary")
	}
	if caps.ProbedAt.IsZero() {
		t.Error("ProbedAt not set")
	}
}

func TestDoctor_CachesResult(t *testing.T) {
	d := New("definitely-not-ffmpeg-xyz", "definitely-not-ffprobe-xyz", nil)

	first := d.Get()
	second := d.Get()
	if first != second {
		t.Error("Get() re-probed inside the TTL window")
	}

	d.Invalidate()
	third := d.Get()
	if third == first {
		t.Error("Get() returned stale capabilities after Invalidate()")
	}
}

func TestDoctor_RefreshBypassesCache(t *testing.T) {
	d := New("definitely-not-ffmpeg-xyz", "definitely-not-ffprobe-xyz", nil)

	first := d.Get()
	second := d.Refresh()
	if first == second {
		t.Error("Refresh() returned the cached value")
	}
}

func TestDoctor_EmptyBinsUseDefaults(t *testing.T) {
	d := New("", "", nil)
	if d.ffmpegBin != "ffmpeg" || d.ffprobeBin != "ffprobe" {
		t.Errorf("bins = %s/%s, want ffmpeg/ffprobe", d.ffmpegBin, d.ffprobeBin)
	}
}
