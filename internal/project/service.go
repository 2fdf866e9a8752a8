package project

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// MediaStore removes segment media payloads. The default implementation
// deletes files from local disk; tests substitute a recorder.
type MediaStore interface {
	DeleteMediaFile(path string) error
}

type DiskMediaStore struct{}

func (DiskMediaStore) DeleteMediaFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ProjectService is the mutation surface for projects. Structural
// mutations persist before playback rebuilds are triggered.
type ProjectService interface {
	CreateProject(ctx context.Context, name string) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
	RenameProject(ctx context.Context, id, name string) (*Project, error)
	DeleteProject(ctx context.Context, id string) error
	AddSegment(ctx context.Context, projectID, mediaPath string, facing Facing, capturedAt time.Time) (*Project, error)
	DeleteSegment(ctx context.Context, projectID, segmentID string) (*Project, error)
	RequestExport(ctx context.Context, projectID, outputPath string) (*Job, error)
}

type Service struct {
	repo   Repository
	media  MediaStore
	logger *slog.Logger
}

func NewService(repo Repository, media MediaStore, logger *slog.Logger) *Service {
	if media == nil {
		media = DiskMediaStore{}
	}
	return &Service{repo: repo, media: media, logger: logger}
}

func (s *Service) CreateProject(ctx context.Context, name string) (*Project, error) {
	if name == "" {
		name = "Untitled Reel"
	}
	p := NewProject(name)
	if err := s.repo.CreateProject(ctx, &p); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("project created", "project_id", p.ID, "name", name)
	}
	return &p, nil
}

func (s *Service) GetProject(ctx context.Context, id string) (*Project, error) {
	return s.repo.GetProject(ctx, id)
}

func (s *Service) ListProjects(ctx context.Context) ([]*Project, error) {
	return s.repo.ListProjects(ctx)
}

func (s *Service) RenameProject(ctx context.Context, id, name string) (*Project, error) {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	next := p.WithName(name)
	if err := s.repo.SaveProject(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Service) DeleteProject(ctx context.Context, id string) error {
	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	for _, seg := range p.Segments {
		if err := s.media.DeleteMediaFile(seg.MediaPath); err != nil && s.logger != nil {
			s.logger.Warn("failed to delete media file", "path", seg.MediaPath, "error", err)
		}
	}
	return s.repo.DeleteProject(ctx, id)
}

// AddSegment appends a captured segment at order MaxOrder+1 and persists
// the new project value.
func (s *Service) AddSegment(ctx context.Context, projectID, mediaPath string, facing Facing, capturedAt time.Time) (*Project, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if facing != FacingFront {
		facing = FacingBack
	}
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	seg := Segment{
		ID:         NewID(),
		MediaPath:  mediaPath,
		Facing:     facing,
		CapturedAt: capturedAt,
	}
	next := p.WithSegmentAdded(seg)
	if err := s.repo.SaveProject(ctx, &next); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("segment added", "project_id", projectID, "segment_id", seg.ID, "order", next.MaxOrder())
	}
	return &next, nil
}

// DeleteSegment removes a segment, renumbers the remainder to 1..N-1,
// persists the new project value, then deletes the media payload.
// Deleting the last remaining segment fails with ErrInvalidOperation.
func (s *Service) DeleteSegment(ctx context.Context, projectID, segmentID string) (*Project, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}

	next, removed, err := p.WithSegmentRemoved(segmentID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveProject(ctx, &next); err != nil {
		return nil, err
	}

	// Media removal is best effort; the project row is already consistent.
	if err := s.media.DeleteMediaFile(removed.MediaPath); err != nil && s.logger != nil {
		s.logger.Warn("failed to delete media file", "path", removed.MediaPath, "error", err)
	}

	if s.logger != nil {
		s.logger.Info("segment deleted", "project_id", projectID, "segment_id", segmentID, "remaining", len(next.Segments))
	}
	return &next, nil
}

// RequestExport enqueues an export job for the runner to pick up.
func (s *Service) RequestExport(ctx context.Context, projectID, outputPath string) (*Job, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if len(p.Segments) == 0 {
		return nil, fmt.Errorf("project has no segments to export: %w", ErrInvalidOperation)
	}

	now := time.Now().UTC()
	job := &Job{
		ID:         NewID(),
		Type:       JobTypeExport,
		Status:     JobStatusPending,
		ProjectID:  projectID,
		OutputPath: outputPath,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("export job created", "job_id", job.ID, "project_id", projectID)
	}
	return job, nil
}
