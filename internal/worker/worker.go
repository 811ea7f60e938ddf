// Package worker runs the single job-processing loop: pop an id, walk the
// job through running to a terminal state, repeat.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forgesyte/forgesyte/internal/blob"
	"github.com/forgesyte/forgesyte/internal/model"
	"github.com/forgesyte/forgesyte/internal/pipeline"
	"github.com/forgesyte/forgesyte/internal/queue"
	"github.com/forgesyte/forgesyte/internal/store"
)

// Executor runs a pipeline over a job's input video. Satisfied by
// *pipeline.Engine.
type Executor interface {
	Run(ctx context.Context, pipelineID string, video []byte) (*pipeline.Result, error)
}

// popBackoff spaces retries after a queue error that is not a shutdown.
const popBackoff = time.Second

type Worker struct {
	queue    queue.Queue
	jobs     *store.SQLite
	blobs    blob.LocalFS
	executor Executor
	log      *logrus.Logger
	onUpdate func()
}

// New builds a worker. onUpdate is invoked after every status transition and
// may be nil; it feeds the websocket live feed.
func New(q queue.Queue, jobs *store.SQLite, blobs blob.LocalFS, executor Executor, log *logrus.Logger, onUpdate func()) *Worker {
	return &Worker{
		queue:    q,
		jobs:     jobs,
		blobs:    blobs,
		executor: executor,
		log:      log,
		onUpdate: onUpdate,
	}
}

// Run blocks until ctx is cancelled. Jobs are processed strictly one at a
// time; a job failure never stops the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started")
	for {
		id, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.log.Info("worker shutting down")
				return nil
			}
			w.log.WithError(err).Error("dequeue failed")
			select {
			case <-time.After(popBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		w.process(ctx, id)
	}
}

func (w *Worker) process(ctx context.Context, id string) {
	log := w.log.WithField("job_id", id)

	if err := w.jobs.MarkRunning(ctx, id); err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			log.Warn("dequeued unknown job id, skipping")
		case errors.Is(err, model.ErrConflict):
			if job, gerr := w.jobs.GetJob(ctx, id); gerr == nil && job.Status.Terminal() {
				log.WithField("status", job.Status).Warn("job already finished, skipping")
			} else {
				log.Warn("job no longer pending, skipping")
			}
		default:
			log.WithError(err).Error("mark running failed, skipping")
		}
		return
	}
	log.Info("job running")
	w.notify()

	if err := w.execute(ctx, id, log); err != nil {
		if ferr := w.jobs.MarkFailed(ctx, id, err.Error()); ferr != nil {
			log.WithError(ferr).Error("mark failed failed")
		} else {
			log.WithError(err).Info("job failed")
		}
	}
	w.notify()
}

// execute carries a running job to completed, or returns the error that
// becomes the job's error_detail.
func (w *Worker) execute(ctx context.Context, id string, log *logrus.Entry) error {
	job, err := w.jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}

	input, err := w.blobs.ReadAll(job.InputRef)
	if err != nil {
		return err
	}

	result, err := w.executor.Run(ctx, job.PipelineID, input)
	if err != nil {
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	outputRef := filepath.Join("jobs", id, "result.json")
	if _, err := w.blobs.Put(outputRef, bytes.NewReader(data)); err != nil {
		return err
	}

	if err := w.jobs.MarkCompleted(ctx, id, outputRef); err != nil {
		log.WithError(err).Error("mark completed failed")
		return nil
	}
	log.WithField("output_ref", outputRef).Info("job completed")
	return nil
}

func (w *Worker) notify() {
	if w.onUpdate != nil {
		w.onUpdate()
	}
}
