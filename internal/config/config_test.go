package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if cfg.Port() != DefaultPort {
		t.Errorf("Port() = %d, want %d", cfg.Port(), DefaultPort)
	}
	if cfg.LogLevel() != DefaultLogLevel {
		t.Errorf("LogLevel() = %s, want %s", cfg.LogLevel(), DefaultLogLevel)
	}
	if cfg.FFmpegBin() != "ffmpeg" || cfg.FFprobeBin() != "ffprobe" {
		t.Errorf("tool bins = %s/%s, want ffmpeg/ffprobe", cfg.FFmpegBin(), cfg.FFprobeBin())
	}
	if cfg.PositionPollInterval() != DefaultPollInterval {
		t.Errorf("PositionPollInterval() = %v, want %v", cfg.PositionPollInterval(), DefaultPollInterval)
	}
	if cfg.InboxDir() != "" {
		t.Errorf("InboxDir() = %s, want empty (watcher disabled)", cfg.InboxDir())
	}
	w, h := cfg.DefaultGeometry()
	if w != DefaultGeometryWidth || h != DefaultGeometryHeight {
		t.Errorf("DefaultGeometry() = %dx%d, want %dx%d", w, h, DefaultGeometryWidth, DefaultGeometryHeight)
	}
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "9999")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvDataDir, "/tmp/snapreel-test")
	t.Setenv(EnvInboxDir, "/tmp/inbox")
	t.Setenv(EnvFFmpegBin, "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv(EnvPollInterval, "250")
	t.Setenv(EnvDefaultW, "720")
	t.Setenv(EnvDefaultH, "1280")

	cfg, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if cfg.Port() != 9999 {
		t.Errorf("Port() = %d, want 9999", cfg.Port())
	}
	if cfg.LogLevel() != "debug" {
		t.Errorf("LogLevel() = %s, want debug", cfg.LogLevel())
	}
	if cfg.DataDir() != "/tmp/snapreel-test" {
		t.Errorf("DataDir() = %s", cfg.DataDir())
	}
	if cfg.DBPath() != filepath.Join("/tmp/snapreel-test", DBFilename) {
		t.Errorf("DBPath() = %s", cfg.DBPath())
	}
	if cfg.MediaDir() != filepath.Join("/tmp/snapreel-test", "media") {
		t.Errorf("MediaDir() = %s", cfg.MediaDir())
	}
	if cfg.InboxDir() != "/tmp/inbox" {
		t.Errorf("InboxDir() = %s, want /tmp/inbox", cfg.InboxDir())
	}
	if cfg.FFmpegBin() != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpegBin() = %s", cfg.FFmpegBin())
	}
	if cfg.PositionPollInterval() != 250*time.Millisecond {
		t.Errorf("PositionPollInterval() = %v, want 250ms", cfg.PositionPollInterval())
	}
	w, h := cfg.DefaultGeometry()
	if w != 720 || h != 1280 {
		t.Errorf("DefaultGeometry() = %dx%d, want 720x1280", w, h)
	}
}

func TestNew_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port not a number", EnvPort, "abc"},
		{"port out of range", EnvPort, "70000"},
		{"port zero", EnvPort, "0"},
		{"poll interval negative", EnvPollInterval, "-5"},
		{"width zero", EnvDefaultW, "0"},
		{"height garbage", EnvDefaultH, "tall"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := New(); err == nil {
				t.Errorf("New() accepted %s=%s", tt.key, tt.value)
			}
		})
	}
}
