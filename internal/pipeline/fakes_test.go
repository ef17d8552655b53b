package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go-workbook-pipeline/internal/model"
)

// memSource is an in-memory workbook used by the pipeline tests.
type memSource struct {
	mu       sync.Mutex
	sheets   []model.Sheet
	records  map[string][]model.Record
	pageErr  map[string]error // keyed by "sheetID#page"
	listErr  error
	fetched  []string
	metadata map[string]interface{}
}

func newMemSource() *memSource {
	return &memSource{
		records: make(map[string][]model.Record),
		pageErr: make(map[string]error),
	}
}

// addSheet appends a sheet with n records; processed decides each record's flag.
func (m *memSource) addSheet(id string, n int, processed func(i int) bool) {
	recs := make([]model.Record, n)
	for i := range recs {
		recs[i] = model.Record{
			ID:       fmt.Sprintf("%s-r%d", id, i),
			Fields:   model.GenericRecord{"n": i},
			Metadata: model.RecordMetadata{Processed: processed(i)},
		}
	}
	m.sheets = append(m.sheets, model.Sheet{ID: id, WorkbookID: "wb1", Name: "Sheet " + id, RecordCount: n})
	m.records[id] = recs
}

func (m *memSource) ListSheets(ctx context.Context, workbookID string) ([]model.Sheet, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Sheet, len(m.sheets))
	for i, s := range m.sheets {
		s.RecordCount = len(m.records[s.ID])
		out[i] = s
	}
	return out, nil
}

func (m *memSource) GetRecordPage(ctx context.Context, sheetID string, pageNumber, pageSize int) ([]model.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s#%d", sheetID, pageNumber)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, key)
	if err, ok := m.pageErr[key]; ok {
		return nil, err
	}
	recs := m.records[sheetID]
	start := (pageNumber - 1) * pageSize
	if start >= len(recs) {
		return []model.Record{}, nil
	}
	end := min(start+pageSize, len(recs))
	out := make([]model.Record, end-start)
	copy(out, recs[start:end])
	return out, nil
}

func (m *memSource) UpdateRecordMetadata(ctx context.Context, records []model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		for sid, recs := range m.records {
			for i := range recs {
				if recs[i].ID == r.ID {
					m.records[sid][i].Metadata = r.Metadata
				}
			}
		}
	}
	return nil
}

func (m *memSource) GetSpaceMetadata(ctx context.Context, spaceID string) (map[string]interface{}, error) {
	return m.metadata, nil
}

func (m *memSource) fetchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fetched)
}

// memJobs applies the job state machine in memory.
type memJobs struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	events  []string
	seq     int
	ackErr  error
	doneErr error
}

func newMemJobs(ids ...string) *memJobs {
	j := &memJobs{jobs: make(map[string]*model.Job)}
	for _, id := range ids {
		j.jobs[id] = &model.Job{ID: id, WorkbookID: "wb1", Operation: model.OperationSubmit, State: model.JobCreated}
	}
	return j
}

func (j *memJobs) move(id string, to model.JobState, info string, progress int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if err := job.Transition(to); err != nil {
		return err
	}
	job.Info = info
	job.Progress = progress
	j.events = append(j.events, string(to)+":"+info)
	return nil
}

func (j *memJobs) Acknowledge(ctx context.Context, jobID, info string, progress int) error {
	if j.ackErr != nil {
		return j.ackErr
	}
	return j.move(jobID, model.JobAcknowledged, info, progress)
}

func (j *memJobs) Complete(ctx context.Context, jobID, info string) error {
	if j.doneErr != nil {
		return j.doneErr
	}
	return j.move(jobID, model.JobCompleted, info, 100)
}

func (j *memJobs) Fail(ctx context.Context, jobID, info string) error {
	return j.move(jobID, model.JobFailed, info, 100)
}

func (j *memJobs) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	job.ID = fmt.Sprintf("job-%d", j.seq)
	job.State = model.JobCreated
	j.jobs[job.ID] = &job
	return job, nil
}

func (j *memJobs) GetJob(ctx context.Context, id string) (model.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return model.Job{}, errors.New("not found")
	}
	return *job, nil
}

func (j *memJobs) state(id string) model.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jobs[id].State
}

func (j *memJobs) job(id string) model.Job {
	j.mu.Lock()
	defer j.mu.Unlock()
	return *j.jobs[id]
}

// stubEndpoint counts calls and answers with a fixed response.
type stubEndpoint struct {
	mu       sync.Mutex
	calls    int
	payloads []model.SubmissionPayload
	resp     SubmissionResponse
	err      error
	block    bool
	panicMsg string
}

func accepted() SubmissionResponse {
	ok := true
	return SubmissionResponse{StatusCode: 200, Success: &ok}
}

func (s *stubEndpoint) Submit(ctx context.Context, payload model.SubmissionPayload) (SubmissionResponse, error) {
	s.mu.Lock()
	s.calls++
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()

	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.block {
		<-ctx.Done()
		return SubmissionResponse{}, ctx.Err()
	}
	return s.resp, s.err
}

func (s *stubEndpoint) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func allProcessed(int) bool { return true }
