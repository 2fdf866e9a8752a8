package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/snapreel/snapreel-agent/internal/api"
	"github.com/snapreel/snapreel-agent/internal/capture"
	"github.com/snapreel/snapreel-agent/internal/config"
	"github.com/snapreel/snapreel-agent/internal/db"
	"github.com/snapreel/snapreel-agent/internal/doctor"
	"github.com/snapreel/snapreel-agent/internal/export"
	"github.com/snapreel/snapreel-agent/internal/logging"
	"github.com/snapreel/snapreel-agent/internal/metrics"
	"github.com/snapreel/snapreel-agent/internal/playback"
	"github.com/snapreel/snapreel-agent/internal/probe"
	"github.com/snapreel/snapreel-agent/internal/project"
	"github.com/snapreel/snapreel-agent/internal/timeline"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.MediaDir(), 0755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting snapreel agent", "version", config.Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := project.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}
	logger.Info("api ready", "url", fmt.Sprintf("http://127.0.0.1:%d", cfg.Port()), "auth_token", authToken)

	m := metrics.New()

	svc := project.NewService(repo, nil, logger)

	prober := probe.NewFFProbe(cfg.FFprobeBin(), logger)
	w, h := cfg.DefaultGeometry()
	builder := timeline.NewBuilder(prober, logger).WithDefaultGeometry(w, h)

	backend := playback.NewClockBackend(logger)
	coordinator := playback.NewCoordinator(builder, svc, backend, logger,
		playback.WithPollInterval(cfg.PositionPollInterval()),
		playback.WithMetrics(m),
	)

	dr := doctor.New(cfg.FFmpegBin(), cfg.FFprobeBin(), logger)
	caps := dr.Get()
	logger.Info("media tools detected", "ffmpeg", caps.HasFFmpeg, "ffprobe", caps.HasFFprobe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coordinator.Run(ctx)

	exporter := export.NewFFmpegExporter(cfg.FFmpegBin(), logger)
	runner := export.NewRunner(repo, builder, exporter, m, logger)
	go runner.Start(ctx)

	if cfg.InboxDir() != "" {
		if err := os.MkdirAll(cfg.InboxDir(), 0755); err != nil {
			return fmt.Errorf("failed to create inbox dir: %w", err)
		}
		watcher := capture.NewInboxWatcher(logger)
		watcher.OnSegment(func(path string) {
			open := coordinator.Project()
			if open == nil {
				logger.Info("captured segment ignored, no project open", "path", logging.SanitizePath(path))
				return
			}
			if _, err := coordinator.AddSegment(ctx, path, project.FacingBack, time.Now().UTC()); err != nil {
				logger.Error("failed to add captured segment", "path", logging.SanitizePath(path), "error", err)
			}
		})
		go func() {
			if err := watcher.Watch(ctx, cfg.InboxDir()); err != nil {
				logger.Error("inbox watcher stopped", "error", err)
			}
		}()
		logger.Info("watching capture inbox", "dir", cfg.InboxDir())
	}

	mediaServer := playback.NewMediaServer(logger)

	apiServer := api.NewServer(api.ServerConfig{
		Port:           cfg.Port(),
		ProjectService: svc,
		Repository:     repo,
		Coordinator:    coordinator,
		MediaServer:    mediaServer,
		Doctor:         dr,
		Metrics:        m,
		Logger:         logger,
		StartTime:      startTime,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func ensureAuthToken(repo project.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
