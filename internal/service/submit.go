// Package service holds the submission and query services that sit between
// the HTTP handlers and the stores. All collaborators are injected; nothing
// here reaches for globals.
package service

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forgesyte/forgesyte/internal/blob"
	"github.com/forgesyte/forgesyte/internal/model"
	"github.com/forgesyte/forgesyte/internal/queue"
	"github.com/forgesyte/forgesyte/internal/store"
	"github.com/forgesyte/forgesyte/internal/video"
)

// Catalog answers whether a pipeline id is known. Satisfied by
// *pipeline.Registry.
type Catalog interface {
	Has(pipelineID string) bool
}

type Submission struct {
	Blobs     blob.LocalFS
	Jobs      *store.SQLite
	Queue     queue.Queue
	Pipelines Catalog
	Log       *logrus.Logger
}

// Submit validates the upload, persists the input blob, creates the job
// record at pending and enqueues the job id. The id is returned only once
// all three succeed.
//
// If the enqueue fails after the record insert, the record is left pending
// and an error is returned; no reconciliation sweep exists yet, so such a
// job stays pending until resubmitted under a new id.
func (s Submission) Submit(ctx context.Context, pipelineID string, raw []byte) (string, error) {
	if pipelineID == "" || !s.Pipelines.Has(pipelineID) {
		return "", fmt.Errorf("%w: unknown pipeline %q", model.ErrInvalidInput, pipelineID)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: empty upload", model.ErrInvalidInput)
	}
	if !video.SniffMP4(raw) {
		return "", fmt.Errorf("%w: not an mp4 container", model.ErrInvalidInput)
	}

	id := uuid.NewString()
	inputRef := filepath.Join("jobs", id, "input.mp4")
	if _, err := s.Blobs.Put(inputRef, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("%w: store input: %v", model.ErrStorage, err)
	}

	now := time.Now().UTC()
	job := model.Job{
		ID:         id,
		PipelineID: pipelineID,
		Status:     model.JobPending,
		InputRef:   inputRef,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		// The blob is unreferenced now; removal is best effort.
		if derr := s.Blobs.Delete(inputRef); derr != nil {
			s.Log.WithError(derr).WithField("input_ref", inputRef).
				Warn("orphan input blob left behind")
		}
		return "", fmt.Errorf("%w: create job: %v", model.ErrPersistence, err)
	}

	if err := s.Queue.Push(ctx, id); err != nil {
		s.Log.WithError(err).WithField("job_id", id).
			Warn("enqueue failed; job record left pending")
		return "", fmt.Errorf("enqueue job %s: %w", id, err)
	}

	s.Log.WithFields(logrus.Fields{
		"job_id":   id,
		"pipeline": pipelineID,
		"bytes":    len(raw),
	}).Info("job submitted")
	return id, nil
}
