package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/snapreel/snapreel-agent/internal/config"
	"github.com/snapreel/snapreel-agent/internal/export"
	"github.com/snapreel/snapreel-agent/internal/playback"
	"github.com/snapreel/snapreel-agent/internal/project"
	"github.com/snapreel/snapreel-agent/internal/timeline"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler(func() {
			snap := cfg.Coordinator.Snapshot()
			cfg.Metrics.SetOpenSegments(snap.SegmentCount)
			cfg.Metrics.SetFallbackActive(snap.State == playback.StateSequentialFallback)
		}))
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Get("/projects", listProjectsHandler(cfg))
		r.Post("/projects", createProjectHandler(cfg))
		r.Get("/projects/{id}", getProjectHandler(cfg))
		r.Delete("/projects/{id}", deleteProjectHandler(cfg))
		r.Post("/projects/{id}/rename", renameProjectHandler(cfg))
		r.Post("/projects/{id}/open", openProjectHandler(cfg))
		r.Post("/projects/{id}/segments", addSegmentHandler(cfg))
		r.Delete("/projects/{id}/segments/{segmentID}", deleteSegmentHandler(cfg))

		r.Get("/playback", playbackStateHandler(cfg))
		r.Post("/playback/play", playHandler(cfg))
		r.Post("/playback/pause", pauseHandler(cfg))
		r.Post("/playback/seek", seekHandler(cfg))
		r.Post("/playback/seek-segment", seekSegmentHandler(cfg))
		r.Post("/playback/next", nextSegmentHandler(cfg))
		r.Post("/playback/previous", previousSegmentHandler(cfg))
		r.Get("/playback/media", mediaHandler(cfg))

		r.Post("/export", exportHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
	})

	return r
}

// writeDomainError maps engine error sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, project.ErrInvalidOperation):
		WriteError(w, http.StatusConflict, err.Error(), "INVALID_OPERATION")
	case errors.Is(err, project.ErrNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, timeline.ErrOutOfBounds):
		WriteError(w, http.StatusBadRequest, err.Error(), "OUT_OF_BOUNDS")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: config.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		snap := cfg.Coordinator.Snapshot()

		projects, _ := cfg.ProjectService.ListProjects(ctx)

		resp := StatusResponse{
			State:           snap.State.String(),
			ProjectID:       snap.ProjectID,
			CurrentIndex:    snap.CurrentIndex,
			SegmentCount:    snap.SegmentCount,
			TotalMs:         snap.TotalMs,
			SkippedSegments: snap.SkippedSegments,
			LastError:       snap.LastError,
			ProjectsCount:   len(projects),
		}
		if snap.State == playback.StateComposed {
			resp.Geometry = GeometryToResponse(snap.Geometry)
		}

		if cfg.Doctor != nil {
			caps := cfg.Doctor.Get()
			resp.Tools = &ToolsResponse{
				HasFFmpeg:   caps.HasFFmpeg,
				HasFFprobe:  caps.HasFFprobe,
				LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
			}
		}

		jobs, _ := cfg.Repository.ListJobs(ctx, 10)
		for _, j := range jobs {
			if j.Status == project.JobStatusRunning {
				jr := JobToResponse(j)
				resp.ActiveJob = &jr
				break
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listProjectsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects, err := cfg.ProjectService.ListProjects(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list projects", "INTERNAL_ERROR")
			return
		}

		resp := ProjectsResponse{Projects: make([]ProjectResponse, len(projects))}
		for i, p := range projects {
			resp.Projects[i] = ProjectToResponse(p)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func createProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		p, err := cfg.ProjectService.CreateProject(r.Context(), req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, ProjectToResponse(p))
	}
}

func getProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := cfg.ProjectService.GetProject(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func deleteProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := cfg.ProjectService.DeleteProject(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func renameProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req RenameProjectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.Name == "" {
			WriteError(w, http.StatusBadRequest, "name is required", "BAD_REQUEST")
			return
		}

		p, err := cfg.ProjectService.RenameProject(r.Context(), id, req.Name)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func openProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := cfg.ProjectService.GetProject(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if p == nil {
			WriteError(w, http.StatusNotFound, "project not found", "NOT_FOUND")
			return
		}

		if err := cfg.Coordinator.SetProject(r.Context(), p); err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, ProjectToResponse(p))
	}
}

func addSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req AddSegmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.MediaPath == "" {
			WriteError(w, http.StatusBadRequest, "media_path is required", "BAD_REQUEST")
			return
		}

		facing := project.Facing(req.Facing)
		now := time.Now().UTC()

		var p *project.Project
		var err error
		if open := cfg.Coordinator.Project(); open != nil && open.ID == id {
			p, err = cfg.Coordinator.AddSegment(r.Context(), req.MediaPath, facing, now)
		} else {
			p, err = cfg.ProjectService.AddSegment(r.Context(), id, req.MediaPath, facing, now)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusCreated, ProjectToResponse(p))
	}
}

func deleteSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		segmentID := chi.URLParam(r, "segmentID")

		var p *project.Project
		var err error
		if open := cfg.Coordinator.Project(); open != nil && open.ID == id {
			p, err = cfg.Coordinator.DeleteSegment(r.Context(), segmentID)
		} else {
			p, err = cfg.ProjectService.DeleteSegment(r.Context(), id, segmentID)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, ProjectToResponse(p))
	}
}

func playbackStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Coordinator.Snapshot()
		WriteJSON(w, http.StatusOK, SnapshotToPlayback(snap, cfg.Coordinator.Timeline()))
	}
}

func playHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Coordinator.Play()
		w.WriteHeader(http.StatusNoContent)
	}
}

func pauseHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Coordinator.Pause()
		w.WriteHeader(http.StatusNoContent)
	}
}

func seekHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := cfg.Coordinator.SeekTo(req.PositionMs); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func seekSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SeekSegmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := cfg.Coordinator.SeekInSegment(r.Context(), req.Index, req.OffsetMs); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func nextSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx := cfg.Coordinator.NextSegment(r.Context())
		WriteJSON(w, http.StatusOK, map[string]int{"current_index": idx})
	}
}

func previousSegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx := cfg.Coordinator.PreviousSegment(r.Context())
		WriteJSON(w, http.StatusOK, map[string]int{"current_index": idx})
	}
}

func mediaHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		segmentID := r.URL.Query().Get("segment_id")
		if segmentID == "" {
			WriteError(w, http.StatusBadRequest, "segment_id is required", "BAD_REQUEST")
			return
		}

		open := cfg.Coordinator.Project()
		if open == nil {
			WriteError(w, http.StatusConflict, "no project open", "INVALID_OPERATION")
			return
		}
		seg, err := open.SegmentByID(segmentID)
		if err != nil {
			WriteError(w, http.StatusNotFound, "segment not found", "NOT_FOUND")
			return
		}

		if err := cfg.MediaServer.ServeFile(w, r, seg.MediaPath); err != nil {
			cfg.Logger.Error("media serve error", "error", err, "segment_id", segmentID)
		}
	}
}

func exportHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExportRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if req.ProjectID == "" {
			WriteError(w, http.StatusBadRequest, "project_id is required", "BAD_REQUEST")
			return
		}
		if err := export.ValidateOutputDir(req.OutputDir); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		name := export.SanitizeName(req.Name, 120)
		if name == "" {
			name = "snapreel_export"
		}
		outputPath := filepath.Join(req.OutputDir, name+".mp4")

		job, err := cfg.ProjectService.RequestExport(r.Context(), req.ProjectID, outputPath)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, ExportResponse{JobID: job.ID, OutputPath: outputPath})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Repository.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := cfg.Repository.GetJob(r.Context(), id)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if job == nil {
			WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}
