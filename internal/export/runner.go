package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/snapreel/snapreel-agent/internal/metrics"
	"github.com/snapreel/snapreel-agent/internal/project"
	"github.com/snapreel/snapreel-agent/internal/timeline"
)

// Runner polls for pending export jobs and processes them one at a
// time. Each job builds a fresh composition plan against the current
// project state, then concatenates it to the job's output path.
type Runner struct {
	repo         project.Repository
	builder      *timeline.Builder
	exporter     Exporter
	metrics      *metrics.Metrics
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(repo project.Repository, builder *timeline.Builder, exporter Exporter, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{
		repo:         repo,
		builder:      builder,
		exporter:     exporter,
		metrics:      m,
		logger:       logger,
		pollInterval: 2 * time.Second,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	if r.logger != nil {
		r.logger.Info("export runner started")
	}

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if r.logger != nil {
				r.logger.Info("export runner stopping")
			}
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
}

func (r *Runner) Resume() {
	r.paused.Store(false)
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) processNextJob(ctx context.Context) {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("failed to list pending jobs", "error", err)
		}
		return
	}

	if len(jobs) == 0 {
		return
	}

	job := jobs[0]
	if job.Type != project.JobTypeExport {
		r.repo.UpdateJobStatus(ctx, job.ID, project.JobStatusFailed, "unknown job type")
		return
	}

	if r.logger != nil {
		r.logger.Info("processing export job", "job_id", job.ID, "project_id", job.ProjectID)
	}
	if r.metrics != nil {
		r.metrics.IncExportJobs()
	}

	if err := r.runExport(ctx, job); err != nil {
		if r.metrics != nil {
			r.metrics.IncExportFailures()
		}
		r.repo.UpdateJobStatus(ctx, job.ID, project.JobStatusFailed, err.Error())
		if r.logger != nil {
			r.logger.Error("export job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	r.repo.UpdateJobStatus(ctx, job.ID, project.JobStatusCompleted, "")
	if r.logger != nil {
		r.logger.Info("export job completed", "job_id", job.ID, "output", job.OutputPath)
	}
}

func (r *Runner) runExport(ctx context.Context, job *project.Job) error {
	r.repo.UpdateJobStatus(ctx, job.ID, project.JobStatusRunning, "")

	p, err := r.repo.GetProject(ctx, job.ProjectID)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project %s: %w", job.ProjectID, project.ErrNotFound)
	}

	// Probing the segments is the first half of the bar; the concat run
	// is the second.
	progressCh := make(chan timeline.Progress, len(p.Segments)+1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for prog := range progressCh {
			if prog.Total > 0 {
				r.repo.UpdateJobProgress(ctx, job.ID, prog.Processed*50/prog.Total)
			}
		}
	}()

	_, plan, err := r.builder.Build(ctx, p.SortedSegments(), progressCh)
	close(progressCh)
	<-done
	if err != nil {
		return err
	}

	return r.exporter.Export(ctx, plan, job.OutputPath, func(processed, total int) {
		if total > 0 {
			r.repo.UpdateJobProgress(ctx, job.ID, 50+processed*50/total)
		}
	})
}
