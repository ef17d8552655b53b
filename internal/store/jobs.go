package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go-workbook-pipeline/internal/model"

	"github.com/google/uuid"
)

// JobError is an error recorded against a job
type JobError struct {
	JobID     string    `json:"jobId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateJob stores a new job in the created state
func (s *DB) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	job.State = model.JobCreated
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO jobs (id, workbook_id, space_id, operation, status, info, progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.WorkbookID, job.SpaceID, job.Operation, string(job.State), job.Info, job.Progress, now, now)
	if err != nil {
		return model.Job{}, err
	}
	return job, nil
}

const jobColumns = `id, workbook_id, space_id, operation, status, info, progress, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (model.Job, error) {
	var (
		job   model.Job
		state string
		info  sql.NullString
	)
	if err := row.Scan(&job.ID, &job.WorkbookID, &job.SpaceID, &job.Operation, &state, &info,
		&job.Progress, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return model.Job{}, err
	}
	job.State = model.JobState(state)
	job.Info = info.String
	return job, nil
}

// GetJob fetches a job by id
func (s *DB) GetJob(ctx context.Context, id string) (model.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Job{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return job, err
}

// ListJobs returns jobs newest first, optionally filtered by workbook
func (s *DB) ListJobs(ctx context.Context, workbookID string) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []interface{}
	if workbookID != "" {
		query += ` WHERE workbook_id = ?`
		args = append(args, workbookID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Acknowledge moves a created job to acknowledged
func (s *DB) Acknowledge(ctx context.Context, jobID, info string, progress int) error {
	return s.transition(ctx, jobID, model.JobAcknowledged, info, progress)
}

// Complete moves an acknowledged job to completed
func (s *DB) Complete(ctx context.Context, jobID, info string) error {
	return s.transition(ctx, jobID, model.JobCompleted, info, 100)
}

// Fail moves a job to failed and records the reason
func (s *DB) Fail(ctx context.Context, jobID, info string) error {
	if err := s.transition(ctx, jobID, model.JobFailed, info, 100); err != nil {
		return err
	}
	return s.SaveJobError(ctx, jobID, errors.New(info))
}

// transition reads and updates the job in one transaction so concurrent
// reporters cannot both leave a terminal state.
func (s *DB) transition(ctx context.Context, jobID string, to model.JobState, info string, progress int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var state string
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		job := model.Job{ID: jobID, State: model.JobState(state)}
		if err := job.Transition(to); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE jobs SET status = ?, info = ?, progress = ?, updated_at = ? WHERE id = ?`,
			string(job.State), info, progress, job.UpdatedAt, jobID)
		return err
	})
}

// SaveJobError records an error for a job
func (s *DB) SaveJobError(ctx context.Context, jobID string, err error) error {
	if err == nil {
		return nil
	}
	now := time.Now().UTC()
	_, e := s.db.ExecContext(ctx, `INSERT INTO job_errors (job_id, error_message, created_at) VALUES (?, ?, ?)`,
		jobID, err.Error(), now)
	return e
}

// ListJobErrors returns the errors recorded for a job, oldest first
func (s *DB) ListJobErrors(ctx context.Context, jobID string) ([]JobError, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT error_message, created_at FROM job_errors WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []JobError{}
	for rows.Next() {
		je := JobError{JobID: jobID}
		if err := rows.Scan(&je.Message, &je.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, rows.Err()
}
