// Package config provides configuration management for the SnapReel Agent.
// Configuration is loaded from environment variables with sensible defaults;
// a .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort         = 8675
	DefaultLogLevel     = "info"
	DefaultDataDir      = ".snapreel"
	DefaultPollInterval = 100 * time.Millisecond

	// Default geometry used when composed playback has no probed geometry
	// to report. Portrait, matching the capture orientation of phone reels.
	DefaultGeometryWidth  = 1080
	DefaultGeometryHeight = 1920

	// Environment variable names
	EnvPort         = "SNAPREEL_PORT"
	EnvLogLevel     = "SNAPREEL_LOG_LEVEL"
	EnvDataDir      = "SNAPREEL_DATA_DIR"
	EnvInboxDir     = "SNAPREEL_INBOX_DIR"
	EnvFFmpegBin    = "SNAPREEL_FFMPEG_BIN"
	EnvFFprobeBin   = "SNAPREEL_FFPROBE_BIN"
	EnvPollInterval = "SNAPREEL_POLL_INTERVAL_MS"
	EnvDefaultW     = "SNAPREEL_DEFAULT_WIDTH"
	EnvDefaultH     = "SNAPREEL_DEFAULT_HEIGHT"

	// Database filename
	DBFilename = "snapreel.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MediaDir() string
	InboxDir() string
	FFmpegBin() string
	FFprobeBin() string
	PositionPollInterval() time.Duration
	DefaultGeometry() (width, height int)
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port         int
	logLevel     string
	dataDir      string
	inboxDir     string
	ffmpegBin    string
	ffprobeBin   string
	pollInterval time.Duration
	defaultW     int
	defaultH     int
}

// New creates a new EnvConfig with defaults and environment variable overrides.
// A .env file in the working directory is loaded first if it exists.
func New() (*EnvConfig, error) {
	// Missing .env is not an error; system env and defaults still apply.
	_ = godotenv.Load()

	cfg := &EnvConfig{
		port:         DefaultPort,
		logLevel:     DefaultLogLevel,
		dataDir:      defaultDataDir(),
		ffmpegBin:    "ffmpeg",
		ffprobeBin:   "ffprobe",
		pollInterval: DefaultPollInterval,
		defaultW:     DefaultGeometryWidth,
		defaultH:     DefaultGeometryHeight,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if id := os.Getenv(EnvInboxDir); id != "" {
		cfg.inboxDir = id
	}

	if b := os.Getenv(EnvFFmpegBin); b != "" {
		cfg.ffmpegBin = b
	}
	if b := os.Getenv(EnvFFprobeBin); b != "" {
		cfg.ffprobeBin = b
	}

	if pi := os.Getenv(EnvPollInterval); pi != "" {
		ms, err := strconv.Atoi(pi)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer of milliseconds", EnvPollInterval)
		}
		cfg.pollInterval = time.Duration(ms) * time.Millisecond
	}

	if w := os.Getenv(EnvDefaultW); w != "" {
		n, err := strconv.Atoi(w)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvDefaultW)
		}
		cfg.defaultW = n
	}
	if h := os.Getenv(EnvDefaultH); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvDefaultH)
		}
		cfg.defaultH = n
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MediaDir returns the directory where segment media files live
func (c *EnvConfig) MediaDir() string {
	return filepath.Join(c.dataDir, "media")
}

// InboxDir returns the watched capture inbox directory.
// Empty means the inbox watcher is disabled.
func (c *EnvConfig) InboxDir() string {
	return c.inboxDir
}

// FFmpegBin returns the ffmpeg executable name or path
func (c *EnvConfig) FFmpegBin() string {
	return c.ffmpegBin
}

// FFprobeBin returns the ffprobe executable name or path
func (c *EnvConfig) FFprobeBin() string {
	return c.ffprobeBin
}

// PositionPollInterval returns the playback position sampling cadence
func (c *EnvConfig) PositionPollInterval() time.Duration {
	return c.pollInterval
}

// DefaultGeometry returns the frame geometry assumed when no segment
// could be probed for one.
func (c *EnvConfig) DefaultGeometry() (int, int) {
	return c.defaultW, c.defaultH
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
