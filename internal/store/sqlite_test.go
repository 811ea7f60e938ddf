package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/forgesyte/forgesyte/internal/model"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newJob(id string) model.Job {
	now := time.Now().UTC()
	return model.Job{
		ID:         id,
		PipelineID: "detect-v1",
		Status:     model.JobPending,
		InputRef:   "jobs/" + id + "/input.mp4",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.PipelineID != "detect-v1" || job.InputRef != "jobs/j1/input.mp4" {
		t.Errorf("unexpected fields: %+v", job)
	}
	if job.OutputRef != "" || job.ErrorDetail != "" {
		t.Errorf("fresh job must have no output_ref/error_detail: %+v", job)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetJob(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetJob unknown id = %v, want ErrNotFound", err)
	}
}

func TestDuplicateIDRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newJob("dup")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, newJob("dup")); err == nil {
		t.Error("duplicate id insert should fail")
	}
}

func TestLifecycleCompleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.MarkRunning(ctx, "j1"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkCompleted(ctx, "j1", "jobs/j1/result.json"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	job, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if job.OutputRef != "jobs/j1/result.json" {
		t.Errorf("output_ref = %q", job.OutputRef)
	}
	if job.ErrorDetail != "" {
		t.Errorf("completed job has error_detail %q", job.ErrorDetail)
	}
}

func TestLifecycleFailed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if err := s.MarkRunning(ctx, "j1"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkFailed(ctx, "j1", "decoder exploded"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	job, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.ErrorDetail != "decoder exploded" {
		t.Errorf("error_detail = %q", job.ErrorDetail)
	}
	if job.OutputRef != "" {
		t.Errorf("failed job has output_ref %q", job.OutputRef)
	}
}

func TestTransitionGuards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Terminal transitions require running.
	if err := s.MarkCompleted(ctx, "j1", "out"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("MarkCompleted on pending = %v, want ErrConflict", err)
	}
	if err := s.MarkFailed(ctx, "j1", "boom"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("MarkFailed on pending = %v, want ErrConflict", err)
	}

	if err := s.MarkRunning(ctx, "j1"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	// A second dequeue of the same id must not re-run it.
	if err := s.MarkRunning(ctx, "j1"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("second MarkRunning = %v, want ErrConflict", err)
	}

	// Unknown ids are reported distinctly.
	if err := s.MarkRunning(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("MarkRunning unknown id = %v, want ErrNotFound", err)
	}
}

func TestTerminalStateImmutable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.CreateJob(ctx, newJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.MarkRunning(ctx, "j1"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkCompleted(ctx, "j1", "jobs/j1/result.json"); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	if err := s.MarkFailed(ctx, "j1", "late failure"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("MarkFailed on completed = %v, want ErrConflict", err)
	}
	if err := s.MarkCompleted(ctx, "j1", "other"); !errors.Is(err, model.ErrConflict) {
		t.Errorf("second MarkCompleted = %v, want ErrConflict", err)
	}

	job, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobCompleted || job.OutputRef != "jobs/j1/result.json" || job.ErrorDetail != "" {
		t.Errorf("terminal state mutated: %+v", job)
	}
}

func TestListJobsAndMetrics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.CreateJob(ctx, newJob(id)); err != nil {
			t.Fatalf("CreateJob %s: %v", id, err)
		}
	}
	if err := s.MarkRunning(ctx, "a"); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := s.MarkFailed(ctx, "a", "x"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	all, err := s.ListJobs(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListJobs returned %d jobs, want 3", len(all))
	}

	pending := model.JobPending
	got, err := s.ListJobs(ctx, &pending, 10)
	if err != nil {
		t.Fatalf("ListJobs pending: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("pending list = %d jobs, want 2", len(got))
	}

	m, err := s.Metrics(ctx)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if m.TotalJobs != 3 || m.PendingJobs != 2 || m.FailedJobs != 1 || m.RunningJobs != 0 || m.CompletedJobs != 0 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}
