package pipeline

import (
	"context"
	"errors"
	"testing"

	"go-workbook-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHook struct {
	calls int
	err   error
	next  RecordHook
}

func (h *countingHook) OnCommit(ctx context.Context, evt model.Event) error {
	h.calls++
	if h.next != nil {
		if err := h.next.OnCommit(ctx, evt); err != nil {
			return err
		}
	}
	return h.err
}

func newTestListener(src *memSource, jobs *memJobs, ep *stubEndpoint, hook RecordHook) *Listener {
	d := newTestDriver(src, jobs, ep)
	return &Listener{Checker: d.Checker, Driver: d, Jobs: jobs, Hook: hook}
}

func commitEvent() model.Event {
	return model.Event{ID: "e1", Topic: model.TopicCommitCreated, Context: model.EventContext{WorkbookID: "wb1", SpaceID: "sp1"}}
}

func TestListenerCommitNotReady(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 10, func(i int) bool { return i < 5 })
	jobs := newMemJobs()
	ep := &stubEndpoint{resp: accepted()}
	hook := &countingHook{}

	out, err := newTestListener(src, jobs, ep, hook).Handle(context.Background(), commitEvent())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeNotReady, out.Status)
	assert.Equal(t, 1, hook.calls)
	assert.Equal(t, 0, ep.callCount())
	assert.Empty(t, jobs.jobs)
}

func TestListenerCommitAutoSubmitsAfterValidation(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 2500, func(int) bool { return false })
	jobs := newMemJobs()
	ep := &stubEndpoint{resp: accepted()}
	hook := &countingHook{next: &Validator{Sheets: src, Records: src, Updater: src, PageSize: 10}}

	out, err := newTestListener(src, jobs, ep, hook).Handle(context.Background(), commitEvent())
	require.NoError(t, err)
	require.NotNil(t, out)

	assert.Equal(t, OutcomeCompleted, out.Status)
	assert.Equal(t, 1, ep.callCount())
	assert.Equal(t, 2500, ep.payloads[0].RecordCount())

	job := jobs.job(out.JobID)
	assert.Equal(t, model.OperationAutoSubmit, job.Operation)
	assert.Equal(t, model.JobCompleted, job.State)

	// 250 pages for the validator, 250 for the single readiness scan
	assert.Equal(t, 500, src.fetchCount())
}

func TestListenerCommitWhileSubmissionInFlight(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs()
	ep := &stubEndpoint{resp: accepted()}
	l := newTestListener(src, jobs, ep, nil)
	guard := NewLocalGuard()
	l.Driver.Guard = guard

	release, ok, err := guard.Acquire(context.Background(), guardKey("wb1"))
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	out, err := l.Handle(context.Background(), commitEvent())
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, OutcomeDuplicate, out.Status)
	assert.Equal(t, 0, ep.callCount())

	require.Len(t, jobs.jobs, 1)
	job := jobs.job(out.JobID)
	assert.Equal(t, model.OperationAutoSubmit, job.Operation)
	assert.Equal(t, model.JobFailed, job.State)
}

func TestListenerHookErrorStillChecks(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs()
	ep := &stubEndpoint{resp: accepted()}

	out, err := newTestListener(src, jobs, ep, &countingHook{err: errors.New("rules broken")}).Handle(context.Background(), commitEvent())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Status)
}

func TestListenerCommitFetchError(t *testing.T) {
	src := newMemSource()
	src.listErr = errors.New("down")
	jobs := newMemJobs()

	out, err := newTestListener(src, jobs, &stubEndpoint{}, nil).Handle(context.Background(), commitEvent())
	assert.Nil(t, out)
	assert.ErrorIs(t, err, ErrFetch)
	assert.Empty(t, jobs.jobs)
}

func TestListenerSubmitAction(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{resp: accepted()}
	l := newTestListener(src, jobs, ep, nil)

	out, err := l.Handle(context.Background(), model.Event{
		Topic:   model.TopicJobReady,
		Job:     model.OperationSubmit,
		Context: model.EventContext{WorkbookID: "wb1", JobID: "job1"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, out.Status)
	assert.Equal(t, model.JobCompleted, jobs.state("job1"))

	_, err = l.Handle(context.Background(), model.Event{Topic: model.TopicJobReady, Job: model.OperationSubmit, Context: model.EventContext{WorkbookID: "wb1"}})
	assert.ErrorIs(t, err, ErrJobRequired)
}

func TestListenerIgnoresOtherEvents(t *testing.T) {
	src := newMemSource()
	ep := &stubEndpoint{}
	l := newTestListener(src, newMemJobs(), ep, nil)

	for _, evt := range []model.Event{
		{Topic: model.TopicJobReady, Job: "sheet:export"},
		{Topic: model.TopicJobFailed, Job: model.OperationSubmit},
		{Topic: "space:created"},
	} {
		out, err := l.Handle(context.Background(), evt)
		assert.NoError(t, err)
		assert.Nil(t, out)
	}
	assert.Equal(t, 0, ep.callCount())
	assert.Equal(t, 0, src.fetchCount())
}

func TestRetryJob(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	require.NoError(t, jobs.Fail(context.Background(), "job1", "boom"))
	ep := &stubEndpoint{resp: accepted()}
	d := newTestDriver(src, jobs, ep)

	job, out, err := RetryJob(context.Background(), jobs, d, "job1")
	require.NoError(t, err)
	assert.NotEqual(t, "job1", job.ID)
	assert.Equal(t, OutcomeCompleted, out.Status)
	assert.Equal(t, model.JobFailed, jobs.state("job1"))
	assert.Equal(t, model.JobCompleted, jobs.state(job.ID))

	_, _, err = RetryJob(context.Background(), jobs, d, job.ID)
	assert.ErrorIs(t, err, ErrJobCompleted)

	_, _, err = RetryJob(context.Background(), jobs, d, "missing")
	assert.Error(t, err)
}

func TestTrackerRecordsStages(t *testing.T) {
	tr := NewTracker("job1", "wb1")
	tr.StartStage(StageReadiness)
	tr.EndStage(StageReadiness, 10, nil)
	tr.StartStage(StageSubmission)
	tr.EndStage(StageSubmission, 10, transportError(errors.New("reset")))
	tr.EndStage("unknown", 0, nil)

	m := tr.Finish("failed")
	require.Len(t, m.Stages, 2)
	assert.Equal(t, "completed", m.Stages[0].Status)
	assert.Equal(t, "failed", m.Stages[1].Status)
	require.Len(t, m.Errors, 1)
	assert.Equal(t, "transport", m.Errors[0].ErrorType)
	assert.True(t, m.Errors[0].Retryable)
	assert.NotNil(t, m.EndTime)
}

func TestLocalGuard(t *testing.T) {
	g := NewLocalGuard()
	ctx := context.Background()

	release, ok, err := g.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = g.Acquire(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = g.Acquire(ctx, "other")
	assert.True(t, ok)

	release()
	release()
	_, ok, _ = g.Acquire(ctx, "k")
	assert.True(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = g.Acquire(cancelled, "z")
	assert.Error(t, err)
}
