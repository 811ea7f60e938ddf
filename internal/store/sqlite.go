package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/forgesyte/forgesyte/internal/model"
)

type SQLite struct {
	db *sql.DB
}

func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer at a time keeps the guarded transitions simple under
	// modernc's default locking.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  pipeline_id TEXT NOT NULL,
  status TEXT NOT NULL,
  input_ref TEXT NOT NULL,
  output_ref TEXT,
  error_detail TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`); err != nil {
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) CreateJob(ctx context.Context, job model.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, pipeline_id, status, input_ref, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.PipelineID,
		string(job.Status),
		job.InputRef,
		job.CreatedAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLite) GetJob(ctx context.Context, id string) (model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pipeline_id, status, input_ref, output_ref, error_detail, created_at, updated_at
       FROM jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, model.ErrNotFound
		}
		return model.Job{}, err
	}
	return job, nil
}

func (s *SQLite) ListJobs(ctx context.Context, status *model.JobStatus, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 25
	}

	query := `SELECT id, pipeline_id, status, input_ref, output_ref, error_detail, created_at, updated_at
       FROM jobs`
	args := []any{}
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// MarkRunning transitions a pending job to running. Returns ErrNotFound if
// the id is unknown and ErrConflict if the job is not pending, so a raced or
// replayed dequeue is detected rather than overwriting a later state.
func (s *SQLite) MarkRunning(ctx context.Context, id string) error {
	return s.transition(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		id,
		string(model.JobRunning), time.Now().UnixMilli(), id, string(model.JobPending),
	)
}

// MarkCompleted transitions a running job to completed and records the
// result blob key. output_ref is only ever written here.
func (s *SQLite) MarkCompleted(ctx context.Context, id, outputRef string) error {
	return s.transition(ctx,
		`UPDATE jobs SET status = ?, output_ref = ?, updated_at = ? WHERE id = ? AND status = ?`,
		id,
		string(model.JobCompleted), outputRef, time.Now().UnixMilli(), id, string(model.JobRunning),
	)
}

// MarkFailed transitions a running job to failed and records the cause.
// error_detail is only ever written here.
func (s *SQLite) MarkFailed(ctx context.Context, id, detail string) error {
	return s.transition(ctx,
		`UPDATE jobs SET status = ?, error_detail = ?, updated_at = ? WHERE id = ? AND status = ?`,
		id,
		string(model.JobFailed), detail, time.Now().UnixMilli(), id, string(model.JobRunning),
	)
}

func (s *SQLite) transition(ctx context.Context, query, id string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM jobs WHERE id = ?)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrConflict
}

func (s *SQLite) Metrics(ctx context.Context) (model.Metrics, error) {
	var m model.Metrics
	row := s.db.QueryRowContext(ctx, `
SELECT COUNT(*),
       COALESCE(SUM(status = 'pending'), 0),
       COALESCE(SUM(status = 'running'), 0),
       COALESCE(SUM(status = 'completed'), 0),
       COALESCE(SUM(status = 'failed'), 0)
  FROM jobs`)
	if err := row.Scan(&m.TotalJobs, &m.PendingJobs, &m.RunningJobs, &m.CompletedJobs, &m.FailedJobs); err != nil {
		return model.Metrics{}, err
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (model.Job, error) {
	var (
		id, pipelineID, statusStr, inputRef string
		outputRef, errorDetail              sql.NullString
		createdMs, updatedMs                int64
	)
	if err := row.Scan(&id, &pipelineID, &statusStr, &inputRef, &outputRef, &errorDetail, &createdMs, &updatedMs); err != nil {
		return model.Job{}, err
	}
	job := model.Job{
		ID:         id,
		PipelineID: pipelineID,
		Status:     model.JobStatus(statusStr),
		InputRef:   inputRef,
		CreatedAt:  time.UnixMilli(createdMs),
		UpdatedAt:  time.UnixMilli(updatedMs),
	}
	if outputRef.Valid {
		job.OutputRef = outputRef.String
	}
	if errorDetail.Valid {
		job.ErrorDetail = errorDetail.String
	}
	return job, nil
}
