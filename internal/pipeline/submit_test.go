package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"go-workbook-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDriver(src *memSource, jobs *memJobs, ep SubmissionEndpoint) *Driver {
	return &Driver{
		Checker:       newTestChecker(src, 10, 4),
		Spaces:        src,
		Credentials:   StaticCredentials{CustomerID: "cust-1"},
		Endpoint:      ep,
		Jobs:          jobs,
		SubmitTimeout: time.Second,
	}
}

func TestSubmitCompletesReadyWorkbook(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 25, allProcessed)
	src.metadata = map[string]interface{}{"folder": "acme"}
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{resp: accepted()}

	out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1", SpaceID: "sp1"})

	require.NoError(t, out.Err)
	assert.Equal(t, OutcomeCompleted, out.Status)
	assert.Equal(t, 1, ep.callCount())
	assert.Equal(t, model.JobCompleted, jobs.state("job1"))
	assert.Equal(t, []string{"acknowledged:Sending data to endpoint.", "completed:Data synced."}, jobs.events)
	assert.Equal(t, 100, jobs.job("job1").Progress)

	sent := ep.payloads[0]
	assert.Equal(t, 25, sent.RecordCount())
	assert.Equal(t, "acme", sent.Metadata["folder"])
	assert.Equal(t, "cust-1", sent.Credentials.CustomerID)

	require.NotNil(t, out.Readiness)
	assert.True(t, out.Readiness.Ready())
	assert.NotEmpty(t, out.Metrics.Stages)
}

func TestSubmitNotReadyLeavesJobUntouched(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 25, func(i int) bool { return i != 20 })
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{resp: accepted()}

	out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeNotReady, out.Status)
	assert.NoError(t, out.Err)
	assert.Equal(t, 0, ep.callCount())
	assert.Equal(t, model.JobCreated, jobs.state("job1"))
	assert.Empty(t, jobs.events)
}

func TestSubmitWithPrecomputedPayloadSkipsCheck(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 5, func(int) bool { return false })
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{resp: accepted()}

	payload := model.SubmissionPayload{Sheets: []model.SheetRecords{{SheetID: "A", Records: []model.Record{rec("x")}}}}
	out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1", Payload: &payload})

	assert.Equal(t, OutcomeCompleted, out.Status)
	assert.Nil(t, out.Readiness)
	assert.Equal(t, 0, src.fetchCount())
	assert.Equal(t, 1, ep.payloads[0].RecordCount())
}

func TestSubmitRejectedResponses(t *testing.T) {
	no := false
	tests := []struct {
		name string
		resp SubmissionResponse
		err  error
	}{
		{"missing success", SubmissionResponse{StatusCode: 200}, nil},
		{"explicit false", SubmissionResponse{StatusCode: 200, Success: &no}, nil},
		{"endpoint rejected", SubmissionResponse{StatusCode: 422}, &RejectedError{StatusCode: 422, Message: "bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newMemSource()
			src.addSheet("A", 3, allProcessed)
			jobs := newMemJobs("job1")
			ep := &stubEndpoint{resp: tt.resp, err: tt.err}

			out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

			assert.Equal(t, OutcomeFailed, out.Status)
			assert.ErrorIs(t, out.Err, ErrSubmissionRejected)
			assert.Equal(t, 1, ep.callCount())
			assert.Equal(t, model.JobFailed, jobs.state("job1"))
			assert.Contains(t, jobs.job("job1").Info, "The submit job did not run correctly.")
		})
	}
}

func TestSubmitTransportErrorFailsJobWithoutRetry(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{err: errors.New("connection refused")}

	out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrSubmissionTransport)
	assert.Equal(t, 1, ep.callCount())
	assert.Equal(t, model.JobFailed, jobs.state("job1"))
}

func TestSubmitTimeout(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{block: true}

	d := newTestDriver(src, jobs, ep)
	d.SubmitTimeout = 20 * time.Millisecond
	out := d.Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrSubmissionTransport)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.Equal(t, model.JobFailed, jobs.state("job1"))
}

func TestSubmitFetchErrorFailsJob(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 30, allProcessed)
	src.pageErr["A#3"] = errors.New("503")
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{resp: accepted()}

	out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrFetch)
	assert.Equal(t, 0, ep.callCount())
	assert.Equal(t, model.JobFailed, jobs.state("job1"))
}

func TestSubmitRecoversPanic(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{panicMsg: "nil map"}

	var out Outcome
	require.NotPanics(t, func() {
		out = newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})
	})
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Contains(t, out.Error, "nil map")
	assert.Equal(t, model.JobFailed, jobs.state("job1"))
}

func TestSubmitCompleteFailureAfterDelivery(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	jobs.doneErr = errors.New("platform down")
	ep := &stubEndpoint{resp: accepted()}
	d := newTestDriver(src, jobs, ep)

	out := d.Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.True(t, out.Delivered)
	assert.ErrorIs(t, out.Err, ErrCompletionNotRecorded)
	assert.Equal(t, 1, ep.callCount())

	job := jobs.job("job1")
	assert.Equal(t, model.JobFailed, job.State)
	assert.Equal(t, infoDelivered, job.Info)

	// a retry would send the same data twice
	_, _, err := RetryJob(context.Background(), jobs, d, "job1")
	assert.ErrorIs(t, err, ErrCompletionNotRecorded)
	assert.Equal(t, 1, ep.callCount())
}

func TestSubmitAcknowledgeFailureSkipsEndpoint(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	jobs.ackErr = errors.New("platform down")
	ep := &stubEndpoint{resp: accepted()}

	out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, 0, ep.callCount())
}

func TestSubmitRequiresJob(t *testing.T) {
	out := newTestDriver(newMemSource(), newMemJobs(), &stubEndpoint{}).Submit(context.Background(), SubmitRequest{WorkbookID: "wb1"})
	assert.Equal(t, OutcomeFailed, out.Status)
	assert.ErrorIs(t, out.Err, ErrJobRequired)
}

func TestSubmitGuardSuppressesDuplicate(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1", "job2")
	ep := &stubEndpoint{resp: accepted()}
	guard := NewLocalGuard()

	release, ok, err := guard.Acquire(context.Background(), guardKey("wb1"))
	require.NoError(t, err)
	require.True(t, ok)

	d := newTestDriver(src, jobs, ep)
	d.Guard = guard
	out := d.Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})
	assert.Equal(t, OutcomeDuplicate, out.Status)
	assert.ErrorIs(t, out.Err, ErrSubmissionInFlight)
	assert.Equal(t, 0, ep.callCount())

	// the superseded job is closed, not left created
	job := jobs.job("job1")
	assert.Equal(t, model.JobFailed, job.State)
	assert.Equal(t, infoDuplicate, job.Info)

	release()
	out = d.Submit(context.Background(), SubmitRequest{JobID: "job2", WorkbookID: "wb1"})
	assert.Equal(t, OutcomeCompleted, out.Status)

	// both keys are released after the run
	_, ok, err = guard.Acquire(context.Background(), guardKey("wb1"))
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = guard.Acquire(context.Background(), jobGuardKey("job2"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubmitSameJobRunningElsewhereIsLeftAlone(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 3, allProcessed)
	jobs := newMemJobs("job1")
	ep := &stubEndpoint{resp: accepted()}
	guard := NewLocalGuard()

	release, ok, err := guard.Acquire(context.Background(), jobGuardKey("job1"))
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	d := newTestDriver(src, jobs, ep)
	d.Guard = guard
	out := d.Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

	assert.Equal(t, OutcomeDuplicate, out.Status)
	assert.Equal(t, 0, ep.callCount())
	// the runner that holds job1 reports it
	assert.Equal(t, model.JobCreated, jobs.state("job1"))

	// the workbook key was never taken
	releaseWB, ok, err := guard.Acquire(context.Background(), guardKey("wb1"))
	require.NoError(t, err)
	assert.True(t, ok)
	releaseWB()
}

// Whatever the collaborators do, a job that got past readiness ends terminal
// and the endpoint is called at most once.
func TestSubmitAlwaysEndsTerminal(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	yes, no := true, false

	for i := 0; i < 100; i++ {
		src := newMemSource()
		src.addSheet("A", rng.Intn(40)+1, allProcessed)
		if rng.Intn(5) == 0 {
			src.pageErr["A#1"] = errors.New("fetch")
		}
		jobs := newMemJobs("job1")

		ep := &stubEndpoint{}
		switch rng.Intn(6) {
		case 0:
			ep.resp = SubmissionResponse{StatusCode: 200, Success: &yes}
		case 1:
			ep.resp = SubmissionResponse{StatusCode: 200, Success: &no}
		case 2:
			ep.resp = SubmissionResponse{StatusCode: 200}
		case 3:
			ep.err = errors.New("reset")
		case 4:
			ep.err = &RejectedError{StatusCode: 500, Message: "boom"}
		case 5:
			ep.panicMsg = "unexpected"
		}

		out := newTestDriver(src, jobs, ep).Submit(context.Background(), SubmitRequest{JobID: "job1", WorkbookID: "wb1"})

		assert.True(t, jobs.state("job1").Terminal(), "iteration %d: state %s", i, jobs.state("job1"))
		assert.LessOrEqual(t, ep.callCount(), 1)
		if out.Status == OutcomeCompleted {
			assert.Equal(t, model.JobCompleted, jobs.state("job1"))
		} else {
			assert.Equal(t, OutcomeFailed, out.Status)
			assert.Equal(t, model.JobFailed, jobs.state("job1"))
		}
	}
}
