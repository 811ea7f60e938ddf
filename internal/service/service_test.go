package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forgesyte/forgesyte/internal/blob"
	"github.com/forgesyte/forgesyte/internal/model"
	"github.com/forgesyte/forgesyte/internal/queue"
	"github.com/forgesyte/forgesyte/internal/store"
)

type fixedCatalog map[string]bool

func (c fixedCatalog) Has(id string) bool { return c[id] }

func fakeMP4() []byte {
	return []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0, 0, 2, 0}
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fixture struct {
	blobs  blob.LocalFS
	jobs   *store.SQLite
	queue  *queue.Memory
	submit Submission
	query  Query
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	jobs, err := store.Open(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { jobs.Close() })

	blobs := blob.LocalFS{Root: dir}
	q := queue.NewMemory(16)
	return fixture{
		blobs: blobs,
		jobs:  jobs,
		queue: q,
		submit: Submission{
			Blobs:     blobs,
			Jobs:      jobs,
			Queue:     q,
			Pipelines: fixedCatalog{"detect-v1": true},
			Log:       quietLogger(),
		},
		query: Query{Blobs: blobs, Jobs: jobs},
	}
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.submit.Submit(ctx, "detect-v1", fakeMP4())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id == "" {
		t.Fatal("Submit returned empty id")
	}

	job, err := f.jobs.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if !f.blobs.Exists(job.InputRef) {
		t.Error("input blob missing")
	}

	popped, err := f.queue.Pop(ctx)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if popped != id {
		t.Errorf("queued id = %s, want %s", popped, id)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		pipeline string
		raw      []byte
	}{
		{"empty upload", "detect-v1", nil},
		{"not mp4", "detect-v1", []byte("not a video at all, sorry")},
		{"unknown pipeline", "ghost-v1", fakeMP4()},
		{"empty pipeline", "", fakeMP4()},
	}
	for _, c := range cases {
		if _, err := f.submit.Submit(ctx, c.pipeline, c.raw); !errors.Is(err, model.ErrInvalidInput) {
			t.Errorf("%s: Submit = %v, want ErrInvalidInput", c.name, err)
		}
	}

	// No job records may exist after rejected submissions.
	jobs, err := f.jobs.ListJobs(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("rejected submissions left %d job records", len(jobs))
	}
}

func TestSubmitEnqueueFailureLeavesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Fill the queue so the next push fails.
	full := queue.NewMemory(1)
	if err := full.Push(ctx, "blocker"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	f.submit.Queue = full

	_, err := f.submit.Submit(ctx, "detect-v1", fakeMP4())
	if !errors.Is(err, model.ErrQueueFull) {
		t.Fatalf("Submit = %v, want ErrQueueFull", err)
	}

	// The record stays pending; it is not rolled back.
	jobs, err := f.jobs.ListJobs(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != model.JobPending {
		t.Errorf("expected one pending orphan record, got %+v", jobs)
	}
}

func TestQueryStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.submit.Submit(ctx, "detect-v1", fakeMP4())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := f.query.GetStatus(ctx, id)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status != model.JobPending {
		t.Errorf("status = %s, want pending", status)
	}

	if _, err := f.query.GetStatus(ctx, "nonexistent"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetStatus unknown id = %v, want ErrNotFound", err)
	}
}

func TestQueryResultNotReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.submit.Submit(ctx, "detect-v1", fakeMP4())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Pending: not ready, not not-found.
	if _, err := f.query.GetResult(ctx, id); !errors.Is(err, model.ErrNotReady) {
		t.Errorf("GetResult on pending = %v, want ErrNotReady", err)
	}

	// Failed jobs are also just "not ready" here.
	if err := f.jobs.MarkRunning(ctx, id); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := f.jobs.MarkFailed(ctx, id, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if _, err := f.query.GetResult(ctx, id); !errors.Is(err, model.ErrNotReady) {
		t.Errorf("GetResult on failed = %v, want ErrNotReady", err)
	}

	if _, err := f.query.GetResult(ctx, "nonexistent"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetResult unknown id = %v, want ErrNotFound", err)
	}
}

func TestQueryResultCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.submit.Submit(ctx, "detect-v1", fakeMP4())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outputRef := filepath.Join("jobs", id, "result.json")
	payload := []byte(`{"pipeline_id":"detect-v1","frame_count":3}`)
	if _, err := f.blobs.Put(outputRef, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Put result: %v", err)
	}
	if err := f.jobs.MarkRunning(ctx, id); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := f.jobs.MarkCompleted(ctx, id, outputRef); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}

	data, err := f.query.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("result = %s", data)
	}

	job, err := f.query.GetJob(ctx, id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.UpdatedAt.Before(job.CreatedAt.Add(-time.Second)) {
		t.Errorf("updated_at went backwards: %+v", job)
	}
}
