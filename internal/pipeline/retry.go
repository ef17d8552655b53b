package pipeline

import (
	"context"
	"fmt"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"
)

// JobLookup reads and opens jobs.
type JobLookup interface {
	JobCreator
	GetJob(ctx context.Context, id string) (model.Job, error)
}

// RetryJob re-runs the submission of a job that failed or never finished.
// The old job keeps its state; the attempt runs under a new job, so terminal
// jobs are never reopened. Jobs whose data already reached the endpoint are
// refused.
//
// jobs must be the store the driver reports to.
func RetryJob(ctx context.Context, jobs JobLookup, driver *Driver, jobID string) (model.Job, Outcome, error) {
	old, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		return model.Job{}, Outcome{}, err
	}
	if old.State == model.JobCompleted {
		return model.Job{}, Outcome{}, fmt.Errorf("%w: %s", ErrJobCompleted, jobID)
	}
	if old.State == model.JobFailed && old.Info == infoDelivered {
		return model.Job{}, Outcome{}, fmt.Errorf("%w: %s", ErrCompletionNotRecorded, jobID)
	}

	logger.Info("retrying job", "job_id", jobID, "state", string(old.State), "workbook_id", old.WorkbookID)

	job, err := jobs.CreateJob(ctx, model.Job{
		WorkbookID: old.WorkbookID,
		SpaceID:    old.SpaceID,
		Operation:  model.OperationSubmit,
	})
	if err != nil {
		return model.Job{}, Outcome{}, fmt.Errorf("failed to create retry job: %w", err)
	}

	out := driver.Submit(ctx, SubmitRequest{
		JobID:      job.ID,
		WorkbookID: job.WorkbookID,
		SpaceID:    job.SpaceID,
	})
	return job, out, nil
}
