package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"
)

// RecordHook runs field-level validation when records are committed.
type RecordHook interface {
	OnCommit(ctx context.Context, evt model.Event) error
}

// Listener routes workflow events to the checker and the driver.
//
// Each path checks readiness exactly once: commits are checked here and the
// payload is handed to the driver, submit actions are checked by the driver.
type Listener struct {
	Checker *Checker
	Driver  *Driver
	Jobs    JobCreator
	Hook    RecordHook
}

// Handle processes one event. A nil Outcome means the event required no
// submission decision.
func (l *Listener) Handle(ctx context.Context, evt model.Event) (*Outcome, error) {
	logger.Info("event received",
		"event_id", evt.ID,
		"topic", evt.Topic,
		"job", evt.Job,
		"workbook_id", evt.Context.WorkbookID,
	)

	switch evt.Topic {
	case model.TopicCommitCreated:
		return l.onCommit(ctx, evt)
	case model.TopicJobReady:
		if evt.Job != model.OperationSubmit {
			logger.Debug("ignoring job", "job", evt.Job)
			return nil, nil
		}
		return l.onSubmitAction(ctx, evt)
	case model.TopicJobFailed:
		logger.Warn("job failed", "job_id", evt.Context.JobID, "job", evt.Job)
		return nil, nil
	default:
		logger.Debug("ignoring topic", "topic", evt.Topic)
		return nil, nil
	}
}

// onCommit validates the commit, then auto-submits the workbook once every
// record is processed.
func (l *Listener) onCommit(ctx context.Context, evt model.Event) (*Outcome, error) {
	if evt.Context.WorkbookID == "" {
		return nil, errors.New("commit event without workbook")
	}

	if l.Hook != nil {
		if err := l.Hook.OnCommit(ctx, evt); err != nil {
			// readiness decides whether the workbook can still be submitted
			logger.Error("record hook failed", "workbook_id", evt.Context.WorkbookID, "error", err.Error())
		}
	}

	res, err := l.Checker.Check(ctx, evt.Context.WorkbookID)
	if err != nil {
		return nil, err
	}
	if !res.Ready() {
		return &Outcome{Status: OutcomeNotReady, Readiness: &res}, nil
	}

	job, err := l.Jobs.CreateJob(ctx, model.Job{
		WorkbookID: evt.Context.WorkbookID,
		SpaceID:    evt.Context.SpaceID,
		Operation:  model.OperationAutoSubmit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create submit job: %w", err)
	}

	out := l.Driver.Submit(ctx, SubmitRequest{
		JobID:      job.ID,
		WorkbookID: evt.Context.WorkbookID,
		SpaceID:    evt.Context.SpaceID,
		Payload:    &res.Payload,
	})
	out.Readiness = &res
	return &out, nil
}

func (l *Listener) onSubmitAction(ctx context.Context, evt model.Event) (*Outcome, error) {
	if evt.Context.JobID == "" {
		return nil, ErrJobRequired
	}
	if evt.Context.WorkbookID == "" {
		return nil, errors.New("submit action without workbook")
	}

	out := l.Driver.Submit(ctx, SubmitRequest{
		JobID:      evt.Context.JobID,
		WorkbookID: evt.Context.WorkbookID,
		SpaceID:    evt.Context.SpaceID,
	})
	return &out, nil
}
