package api

import (
	"time"

	"github.com/snapreel/snapreel-agent/internal/playback"
	"github.com/snapreel/snapreel-agent/internal/project"
	"github.com/snapreel/snapreel-agent/internal/timeline"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State           string            `json:"state"`
	ProjectID       string            `json:"project_id,omitempty"`
	CurrentIndex    int               `json:"current_index"`
	SegmentCount    int               `json:"segment_count"`
	TotalMs         int64             `json:"total_ms"`
	SkippedSegments int               `json:"skipped_segments"`
	LastError       string            `json:"last_error,omitempty"`
	Geometry        *GeometryResponse `json:"geometry,omitempty"`
	Tools           *ToolsResponse    `json:"tools,omitempty"`
	ProjectsCount   int               `json:"projects_count"`
	ActiveJob       *JobResponse      `json:"active_job,omitempty"`
}

type GeometryResponse struct {
	Width       int  `json:"width"`
	Height      int  `json:"height"`
	RotationDeg int  `json:"rotation_deg"`
	Known       bool `json:"known"`
}

type ToolsResponse struct {
	HasFFmpeg   bool   `json:"has_ffmpeg"`
	HasFFprobe  bool   `json:"has_ffprobe"`
	LastProbeAt string `json:"last_probe_at,omitempty"`
}

type CreateProjectRequest struct {
	Name string `json:"name"`
}

type RenameProjectRequest struct {
	Name string `json:"name"`
}

type ProjectResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	CreatedAt    string            `json:"created_at"`
	LastModified string            `json:"last_modified"`
	Segments     []SegmentResponse `json:"segments"`
}

type ProjectsResponse struct {
	Projects []ProjectResponse `json:"projects"`
}

type SegmentResponse struct {
	ID         string `json:"id"`
	MediaPath  string `json:"media_path"`
	Facing     string `json:"facing"`
	CapturedAt string `json:"captured_at"`
	Order      int    `json:"order"`
}

type AddSegmentRequest struct {
	MediaPath string `json:"media_path"`
	Facing    string `json:"facing,omitempty"`
}

type SeekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

type SeekSegmentRequest struct {
	Index    int   `json:"index"`
	OffsetMs int64 `json:"offset_ms"`
}

type PlaybackResponse struct {
	State           string              `json:"state"`
	CurrentIndex    int                 `json:"current_index"`
	SegmentCount    int                 `json:"segment_count"`
	TotalMs         int64               `json:"total_ms"`
	SkippedSegments int                 `json:"skipped_segments"`
	Ranges          []TimeRangeResponse `json:"ranges,omitempty"`
}

type TimeRangeResponse struct {
	Index      int   `json:"index"`
	StartMs    int64 `json:"start_ms"`
	DurationMs int64 `json:"duration_ms"`
}

type ExportRequest struct {
	ProjectID string `json:"project_id"`
	OutputDir string `json:"output_dir"`
	Name      string `json:"name,omitempty"`
}

type ExportResponse struct {
	JobID      string `json:"job_id"`
	OutputPath string `json:"output_path"`
}

type JobResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	ProjectID  string `json:"project_id,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Progress   int    `json:"progress"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ProjectToResponse(p *project.Project) ProjectResponse {
	resp := ProjectResponse{
		ID:           p.ID,
		Name:         p.Name,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		LastModified: p.LastModified.Format(time.RFC3339),
		Segments:     make([]SegmentResponse, 0, len(p.Segments)),
	}
	for _, s := range p.SortedSegments() {
		resp.Segments = append(resp.Segments, SegmentResponse{
			ID:         s.ID,
			MediaPath:  s.MediaPath,
			Facing:     string(s.Facing),
			CapturedAt: s.CapturedAt.Format(time.RFC3339),
			Order:      s.Order,
		})
	}
	return resp
}

func JobToResponse(j *project.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Type:       j.Type,
		Status:     j.Status,
		ProjectID:  j.ProjectID,
		OutputPath: j.OutputPath,
		Progress:   j.Progress,
		Error:      j.Error,
		CreatedAt:  j.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  j.UpdatedAt.Format(time.RFC3339),
	}
}

func GeometryToResponse(g timeline.Geometry) *GeometryResponse {
	return &GeometryResponse{
		Width:       g.Width,
		Height:      g.Height,
		RotationDeg: g.RotationDeg,
		Known:       g.Known,
	}
}

func SnapshotToPlayback(snap playback.Snapshot, tl *timeline.Timeline) PlaybackResponse {
	resp := PlaybackResponse{
		State:           snap.State.String(),
		CurrentIndex:    snap.CurrentIndex,
		SegmentCount:    snap.SegmentCount,
		TotalMs:         snap.TotalMs,
		SkippedSegments: snap.SkippedSegments,
	}
	if tl != nil {
		resp.Ranges = make([]TimeRangeResponse, 0, len(tl.Ranges))
		for _, r := range tl.Ranges {
			resp.Ranges = append(resp.Ranges, TimeRangeResponse{
				Index:      r.Index,
				StartMs:    r.StartMs,
				DurationMs: r.DurationMs,
			})
		}
	}
	return resp
}
