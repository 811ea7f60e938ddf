// Package queue carries job identifiers from submission to the worker.
//
// Entries are bare job ids; all job metadata lives in the job store. The
// default implementation is an in-process bounded channel; a NATS-backed
// implementation exists for deployments where submission and worker run in
// separate processes.
package queue

import "context"

type Queue interface {
	// Push enqueues a job id. It fails fast when the queue cannot accept
	// the id (full buffer, closed connection) rather than blocking the
	// submission path.
	Push(ctx context.Context, jobID string) error

	// Pop blocks until an id is available or ctx is done.
	Pop(ctx context.Context) (string, error)

	Close() error
}
