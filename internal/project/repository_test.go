package project

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/snapreel/snapreel-agent/internal/db"
)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	return NewRepository(database.Conn())
}

func TestRepository_ProjectRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := NewProject("Round Trip")
	captured := time.Now().UTC().Truncate(time.Second)
	p.Segments = []Segment{
		{ID: NewID(), MediaPath: "/media/2.mp4", Facing: FacingFront, CapturedAt: captured, Order: 2},
		{ID: NewID(), MediaPath: "/media/1.mp4", Facing: FacingBack, CapturedAt: captured, Order: 1},
	}

	if err := repo.CreateProject(ctx, &p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	got, err := repo.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got == nil {
		t.Fatal("GetProject() returned nil")
	}
	if got.Name != "Round Trip" {
		t.Errorf("name = %s, want Round Trip", got.Name)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("segment count = %d, want 2", len(got.Segments))
	}

	sorted := got.SortedSegments()
	if sorted[0].MediaPath != "/media/1.mp4" || sorted[0].Order != 1 {
		t.Errorf("first segment = %+v, want /media/1.mp4 order 1", sorted[0])
	}
	if sorted[1].Facing != FacingFront {
		t.Errorf("second segment facing = %s, want front", sorted[1].Facing)
	}
	if !sorted[0].CapturedAt.Equal(captured) {
		t.Errorf("captured_at = %v, want %v", sorted[0].CapturedAt, captured)
	}
}

func TestRepository_GetProject_Missing(t *testing.T) {
	repo := setupTestRepo(t)

	got, err := repo.GetProject(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetProject() error = %v", err)
	}
	if got != nil {
		t.Error("GetProject() for missing id should return nil")
	}
}

func TestRepository_SaveProject_ReplacesSegments(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := NewProject("Replace")
	p.Segments = []Segment{
		{ID: "a", MediaPath: "/media/a.mp4", Facing: FacingBack, CapturedAt: time.Now().UTC(), Order: 1},
		{ID: "b", MediaPath: "/media/b.mp4", Facing: FacingBack, CapturedAt: time.Now().UTC(), Order: 2},
	}
	if err := repo.CreateProject(ctx, &p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	next, _, err := p.WithSegmentRemoved("a")
	if err != nil {
		t.Fatalf("WithSegmentRemoved() error = %v", err)
	}
	if err := repo.SaveProject(ctx, &next); err != nil {
		t.Fatalf("SaveProject() error = %v", err)
	}

	got, _ := repo.GetProject(ctx, p.ID)
	if len(got.Segments) != 1 {
		t.Fatalf("segment count = %d, want 1", len(got.Segments))
	}
	if got.Segments[0].ID != "b" || got.Segments[0].Order != 1 {
		t.Errorf("remaining segment = %+v, want b at order 1", got.Segments[0])
	}
}

func TestRepository_ListProjects(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, name := range []string{"One", "Two"} {
		p := NewProject(name)
		if err := repo.CreateProject(ctx, &p); err != nil {
			t.Fatalf("CreateProject(%s) error = %v", name, err)
		}
	}

	projects, err := repo.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("project count = %d, want 2", len(projects))
	}
}

func TestRepository_DeleteProject_CascadesSegments(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	p := NewProject("Doomed")
	p.Segments = []Segment{
		{ID: "a", MediaPath: "/media/a.mp4", Facing: FacingBack, CapturedAt: time.Now().UTC(), Order: 1},
	}
	if err := repo.CreateProject(ctx, &p); err != nil {
		t.Fatalf("CreateProject() error = %v", err)
	}

	if err := repo.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}

	got, _ := repo.GetProject(ctx, p.ID)
	if got != nil {
		t.Error("project still present after delete")
	}
}

func TestRepository_JobLifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	job := &Job{
		ID:         NewID(),
		Type:       JobTypeExport,
		Status:     JobStatusPending,
		ProjectID:  "proj",
		OutputPath: "/out/reel.mp4",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}

	pending, err := repo.ListPendingJobs(ctx)
	if err != nil {
		t.Fatalf("ListPendingJobs() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending count = %d, want 1", len(pending))
	}

	if err := repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, ""); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	if err := repo.UpdateJobProgress(ctx, job.ID, 42); err != nil {
		t.Fatalf("UpdateJobProgress() error = %v", err)
	}

	got, err := repo.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if got.Status != JobStatusRunning {
		t.Errorf("job.Status = %s, want running", got.Status)
	}
	if got.Progress != 42 {
		t.Errorf("job.Progress = %d, want 42", got.Progress)
	}

	if err := repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "ffmpeg exited 1"); err != nil {
		t.Fatalf("UpdateJobStatus() error = %v", err)
	}
	got, _ = repo.GetJob(ctx, job.ID)
	if got.Error != "ffmpeg exited 1" {
		t.Errorf("job.Error = %q, want ffmpeg exited 1", got.Error)
	}

	pending, _ = repo.ListPendingJobs(ctx)
	if len(pending) != 0 {
		t.Errorf("pending count = %d, want 0", len(pending))
	}
}

func TestRepository_Config(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	val, err := repo.GetConfig(ctx, "auth_token")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if val != "" {
		t.Errorf("unset config = %q, want empty", val)
	}

	if err := repo.SetConfig(ctx, "auth_token", "secret"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "rotated"); err != nil {
		t.Fatalf("SetConfig() upsert error = %v", err)
	}

	val, _ = repo.GetConfig(ctx, "auth_token")
	if val != "rotated" {
		t.Errorf("config = %q, want rotated", val)
	}
}
