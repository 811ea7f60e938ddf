package service

import (
	"context"
	"fmt"

	"github.com/forgesyte/forgesyte/internal/blob"
	"github.com/forgesyte/forgesyte/internal/model"
	"github.com/forgesyte/forgesyte/internal/store"
)

// Query serves the read-only status and result lookups.
type Query struct {
	Blobs blob.LocalFS
	Jobs  *store.SQLite
}

func (q Query) GetJob(ctx context.Context, id string) (model.Job, error) {
	return q.Jobs.GetJob(ctx, id)
}

func (q Query) GetStatus(ctx context.Context, id string) (model.JobStatus, error) {
	job, err := q.Jobs.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// GetResult returns the output blob of a completed job. Any non-completed
// status, failed included, yields ErrNotReady; callers learn about failure
// from GetStatus, not from here.
func (q Query) GetResult(ctx context.Context, id string) ([]byte, error) {
	job, err := q.Jobs.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobCompleted {
		return nil, fmt.Errorf("%w: job is %s", model.ErrNotReady, job.Status)
	}
	data, err := q.Blobs.ReadAll(job.OutputRef)
	if err != nil {
		return nil, fmt.Errorf("%w: read result: %v", model.ErrStorage, err)
	}
	return data, nil
}
