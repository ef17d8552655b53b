package pipeline

import (
	"sync"
	"time"

	"go-workbook-pipeline/internal/pkg/logger"
)

// Stages of a submission run
const (
	StageReadiness   = "readiness"
	StageAcknowledge = "acknowledge"
	StageSubmission  = "submission"
	StageReport      = "report"
)

// StageMetrics tracks metrics for individual submission stages
type StageMetrics struct {
	Name             string        `json:"name"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	RecordsProcessed int64         `json:"records_processed"`
	Status           string        `json:"status"` // "running", "completed", "failed"
	Error            string        `json:"error,omitempty"`
}

// ErrorDetail represents a stage error with context
type ErrorDetail struct {
	Timestamp    time.Time `json:"timestamp"`
	Stage        string    `json:"stage"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	Retryable    bool      `json:"retryable"`
}

// RunMetrics summarizes one submission run
type RunMetrics struct {
	JobID      string         `json:"job_id"`
	WorkbookID string         `json:"workbook_id"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    *time.Time     `json:"end_time,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
	Status     string         `json:"status"`
	Stages     []StageMetrics `json:"stages"`
	Errors     []ErrorDetail  `json:"errors,omitempty"`
}

// Tracker records stage timings for one submission run. Safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	metrics RunMetrics
	index   map[string]int
}

// NewTracker creates a tracker for a job
func NewTracker(jobID, workbookID string) *Tracker {
	return &Tracker{
		metrics: RunMetrics{
			JobID:      jobID,
			WorkbookID: workbookID,
			StartTime:  time.Now(),
			Status:     "running",
		},
		index: make(map[string]int),
	}
}

// StartStage marks the start of a stage
func (t *Tracker) StartStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.index[stage] = len(t.metrics.Stages)
	t.metrics.Stages = append(t.metrics.Stages, StageMetrics{
		Name:      stage,
		StartTime: time.Now(),
		Status:    "running",
	})
	logger.Debug("stage started", "job_id", t.metrics.JobID, "stage", stage)
}

// EndStage marks the end of a stage. A non-nil err fails the stage.
func (t *Tracker) EndStage(stage string, records int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	i, ok := t.index[stage]
	if !ok {
		return
	}
	now := time.Now()
	s := &t.metrics.Stages[i]
	s.EndTime = &now
	s.Duration = now.Sub(s.StartTime)
	s.RecordsProcessed = records
	s.Status = "completed"
	if err != nil {
		s.Status = "failed"
		s.Error = err.Error()
		t.metrics.Errors = append(t.metrics.Errors, ErrorDetail{
			Timestamp:    now,
			Stage:        stage,
			ErrorType:    errorType(err),
			ErrorMessage: err.Error(),
			Retryable:    retryable(err),
		})
	}
	logger.Debug("stage finished",
		"job_id", t.metrics.JobID,
		"stage", stage,
		"status", s.Status,
		"duration_ms", s.Duration.Milliseconds(),
	)
}

// Finish closes the run with a final status
func (t *Tracker) Finish(status string) RunMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.metrics.EndTime = &now
	t.metrics.Duration = now.Sub(t.metrics.StartTime)
	t.metrics.Status = status
	return t.snapshot()
}

// Metrics returns a copy of the current metrics
func (t *Tracker) Metrics() RunMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snapshot()
}

func (t *Tracker) snapshot() RunMetrics {
	m := t.metrics
	m.Stages = append([]StageMetrics(nil), t.metrics.Stages...)
	m.Errors = append([]ErrorDetail(nil), t.metrics.Errors...)
	return m
}

func errorType(err error) string {
	switch {
	case isFetch(err):
		return "fetch"
	case isRejected(err):
		return "rejected"
	case isTransport(err):
		return "transport"
	default:
		return "internal"
	}
}

// retryable marks failures a later retry could plausibly fix. Rejections are not.
func retryable(err error) bool {
	return isFetch(err) || isTransport(err)
}
