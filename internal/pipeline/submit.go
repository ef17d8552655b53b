package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"
)

const (
	DefaultSubmitTimeout = 30 * time.Second

	infoSending   = "Sending data to endpoint."
	infoSynced    = "Data synced."
	infoFailed    = "The submit job did not run correctly."
	infoDuplicate = "Superseded by a submission already in flight for this workbook."
	infoDelivered = "Data was delivered but the job could not be completed."
	ackProgress   = 10
	reportTimeout = 10 * time.Second
)

// OutcomeStatus is the terminal result of one submission attempt
type OutcomeStatus string

const (
	OutcomeNotReady  OutcomeStatus = "not_ready"
	OutcomeCompleted OutcomeStatus = "completed"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeDuplicate OutcomeStatus = "duplicate"
)

// SubmitRequest identifies the job and workbook to submit. When Payload is
// set the readiness check is skipped and the payload is sent as is.
type SubmitRequest struct {
	JobID      string
	WorkbookID string
	SpaceID    string
	Payload    *model.SubmissionPayload
}

// Outcome describes what a submission did to its job
type Outcome struct {
	JobID     string              `json:"jobId"`
	Status    OutcomeStatus       `json:"status"`
	Readiness *Readiness          `json:"readiness,omitempty"`
	Response  *SubmissionResponse `json:"response,omitempty"`
	Delivered bool                `json:"delivered"`
	Err       error               `json:"-"`
	Error     string              `json:"error,omitempty"`
	Metrics   RunMetrics          `json:"metrics"`
}

// Driver runs one submission for a job: check, acknowledge, send once,
// then complete or fail the job.
type Driver struct {
	Checker       *Checker
	Spaces        SpaceMetadataStore
	Credentials   CredentialSource
	Endpoint      SubmissionEndpoint
	Jobs          JobReporter
	Guard         SubmissionGuard
	SubmitTimeout time.Duration
}

// Submit never panics and never returns an error: failures are reported on
// the job and in the Outcome.
func (d *Driver) Submit(ctx context.Context, req SubmitRequest) (out Outcome) {
	out = Outcome{JobID: req.JobID}
	tracker := NewTracker(req.JobID, req.WorkbookID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("submission panicked: %v", r)
			logger.Error("recovered from panic in submission", "job_id", req.JobID, "panic", fmt.Sprint(r))
			out = d.fail(ctx, req, out, err)
		}
		if out.Err != nil {
			out.Error = out.Err.Error()
		}
		out.Metrics = tracker.Finish(string(out.Status))
	}()

	if req.JobID == "" {
		out.Status = OutcomeFailed
		out.Err = ErrJobRequired
		return out
	}

	if d.Guard != nil {
		release, done := d.claim(ctx, req, out)
		if done != nil {
			return *done
		}
		defer release()
	}

	payload, readiness, err := d.resolvePayload(ctx, req, tracker)
	if err != nil {
		return d.fail(ctx, req, out, err)
	}
	out.Readiness = readiness
	if readiness != nil && !readiness.Ready() {
		logger.Info("skipping submission, workbook not ready",
			"job_id", req.JobID, "workbook_id", req.WorkbookID, "reason", readiness.Reason)
		out.Status = OutcomeNotReady
		return out
	}

	tracker.StartStage(StageAcknowledge)
	err = d.Jobs.Acknowledge(ctx, req.JobID, infoSending, ackProgress)
	tracker.EndStage(StageAcknowledge, 0, err)
	if err != nil {
		return d.fail(ctx, req, out, fmt.Errorf("failed to acknowledge job: %w", err))
	}

	if err := d.enrich(ctx, req.SpaceID, &payload); err != nil {
		return d.fail(ctx, req, out, err)
	}

	tracker.StartStage(StageSubmission)
	resp, err := d.send(ctx, payload)
	tracker.EndStage(StageSubmission, int64(payload.RecordCount()), err)
	out.Response = resp
	if err != nil {
		return d.fail(ctx, req, out, err)
	}
	out.Delivered = true
	if failed := resp.FailedRecords(); len(failed) > 0 {
		logger.Warn("endpoint accepted submission with failed records",
			"job_id", req.JobID, "failed_records", len(failed))
	}

	tracker.StartStage(StageReport)
	err = d.Jobs.Complete(ctx, req.JobID, infoSynced)
	tracker.EndStage(StageReport, 0, err)
	if err != nil {
		logger.Error("submission delivered but completion not recorded",
			"job_id", req.JobID,
			"workbook_id", req.WorkbookID,
			"records", payload.RecordCount(),
			"error", err.Error(),
		)
		out.Status = OutcomeFailed
		out.Err = fmt.Errorf("%w: %v", ErrCompletionNotRecorded, err)
		d.report(ctx, req.JobID, infoDelivered)
		return out
	}

	logger.Info("submission completed",
		"job_id", req.JobID,
		"workbook_id", req.WorkbookID,
		"records", payload.RecordCount(),
	)
	out.Status = OutcomeCompleted
	return out
}

// claim takes the job key, then the workbook key. A job already running
// elsewhere is left to its runner; a different job that loses the workbook
// is failed so it does not stay created.
func (d *Driver) claim(ctx context.Context, req SubmitRequest, out Outcome) (func(), *Outcome) {
	releaseJob, ok, err := d.Guard.Acquire(ctx, jobGuardKey(req.JobID))
	if err != nil {
		res := d.fail(ctx, req, out, fmt.Errorf("failed to acquire submission guard: %w", err))
		return nil, &res
	}
	if !ok {
		logger.Info("job is already running", "job_id", req.JobID, "workbook_id", req.WorkbookID)
		out.Status = OutcomeDuplicate
		out.Err = ErrSubmissionInFlight
		return nil, &out
	}

	releaseWorkbook, ok, err := d.Guard.Acquire(ctx, guardKey(req.WorkbookID))
	if err != nil {
		releaseJob()
		res := d.fail(ctx, req, out, fmt.Errorf("failed to acquire submission guard: %w", err))
		return nil, &res
	}
	if !ok {
		releaseJob()
		logger.Info("submission already in progress for workbook",
			"job_id", req.JobID, "workbook_id", req.WorkbookID)
		d.report(ctx, req.JobID, infoDuplicate)
		out.Status = OutcomeDuplicate
		out.Err = ErrSubmissionInFlight
		return nil, &out
	}

	return func() {
		releaseWorkbook()
		releaseJob()
	}, nil
}

func (d *Driver) resolvePayload(ctx context.Context, req SubmitRequest, tracker *Tracker) (model.SubmissionPayload, *Readiness, error) {
	if req.Payload != nil {
		return *req.Payload, nil, nil
	}
	if d.Checker == nil {
		return model.SubmissionPayload{}, nil, errors.New("no readiness checker configured")
	}

	tracker.StartStage(StageReadiness)
	res, err := d.Checker.Check(ctx, req.WorkbookID)
	tracker.EndStage(StageReadiness, int64(res.Stats.Records), err)
	if err != nil {
		return model.SubmissionPayload{}, nil, err
	}
	return res.Payload, &res, nil
}

func (d *Driver) enrich(ctx context.Context, spaceID string, payload *model.SubmissionPayload) error {
	if d.Spaces != nil && spaceID != "" {
		meta, err := d.Spaces.GetSpaceMetadata(ctx, spaceID)
		if err != nil {
			return fetchError("get space metadata", spaceID, err)
		}
		payload.Metadata = meta
	}
	if d.Credentials != nil {
		creds, err := d.Credentials.Credentials(ctx, spaceID)
		if err != nil {
			return fetchError("get credentials", spaceID, err)
		}
		payload.Credentials = creds
	}
	return nil
}

// send performs the single outbound call. There is no retry.
func (d *Driver) send(ctx context.Context, payload model.SubmissionPayload) (*SubmissionResponse, error) {
	if d.Endpoint == nil {
		return nil, errors.New("no submission endpoint configured")
	}

	timeout := d.SubmitTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := d.Endpoint.Submit(ctx, payload)
	if err != nil {
		if !isRejected(err) {
			err = transportError(err)
		}
		return &resp, err
	}
	if !resp.Accepted() {
		return &resp, &RejectedError{StatusCode: resp.StatusCode, Message: "response does not confirm success"}
	}
	return &resp, nil
}

// fail reports the job failed. Reporting uses a fresh context so a
// cancelled request still leaves the job terminal.
func (d *Driver) fail(ctx context.Context, req SubmitRequest, out Outcome, err error) Outcome {
	out.Status = OutcomeFailed
	out.Err = err

	logger.Error("submission failed",
		"job_id", req.JobID,
		"workbook_id", req.WorkbookID,
		"error", err.Error(),
	)

	d.report(ctx, req.JobID, fmt.Sprintf("%s %v", infoFailed, err))
	return out
}

// report marks the job failed on a detached context.
func (d *Driver) report(ctx context.Context, jobID, info string) {
	if d.Jobs == nil || jobID == "" {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	if err := d.Jobs.Fail(rctx, jobID, info); err != nil {
		logger.Error("failed to mark job failed", "job_id", jobID, "error", err.Error())
	}
}
