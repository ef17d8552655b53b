package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go-workbook-pipeline/internal/app"
	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/internal/pkg/httputil"
	"go-workbook-pipeline/internal/platform"
	"go-workbook-pipeline/internal/store"
	"go-workbook-pipeline/pkg/utils"
)

// JobStore is where jobs live: the local store, or the platform when the
// pipeline reports there. It must be the driver's job reporter.
type JobStore interface {
	pipeline.JobLookup
	ListJobs(ctx context.Context, workbookID string) ([]model.Job, error)
}

// jobErrorLister is implemented by stores that keep an error history
type jobErrorLister interface {
	ListJobErrors(ctx context.Context, jobID string) ([]store.JobError, error)
}

// WorkbookStore resolves the space of a workbook
type WorkbookStore interface {
	GetWorkbook(ctx context.Context, id string) (model.Workbook, error)
}

// Handler serves the pipeline API.
type Handler struct {
	Checker   *pipeline.Checker
	Driver    *pipeline.Driver
	Listener  *pipeline.Listener
	Validator *pipeline.Validator
	Importer  *pipeline.Importer
	Jobs      pipeline.JobCreator
	JobStore  JobStore
	Workbooks WorkbookStore
	Exports   *utils.OutputManager
	Ping      func(ctx context.Context) error

	// CheckTimeout bounds a readiness request unless ?timeout= overrides it
	CheckTimeout time.Duration
}

// New builds a Handler from a wired App
func New(a *app.App) *Handler {
	return &Handler{
		Checker:      a.Checker,
		Driver:       a.Driver,
		Listener:     a.Listener,
		Validator:    a.Validator,
		Importer:     a.Importer,
		Jobs:         a.Source,
		JobStore:     a.Source,
		Workbooks:    a.Store,
		Exports:      a.Exports,
		Ping:         a.Store.Ping,
		CheckTimeout: 2 * time.Minute,
	}
}

// Health reports whether the database answers
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{} "Service healthy"
// @Failure 503 {object} httputil.ErrorResponse "Database unavailable"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		if err := h.Ping(r.Context()); err != nil {
			httputil.Error(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	httputil.OK(w, map[string]interface{}{"status": "ok", "time": time.Now().UTC()})
}

// writeOutcome maps a submission outcome to a status code.
func writeOutcome(w http.ResponseWriter, out pipeline.Outcome) {
	switch out.Status {
	case pipeline.OutcomeCompleted:
		httputil.OK(w, out)
	case pipeline.OutcomeNotReady, pipeline.OutcomeDuplicate:
		httputil.JSON(w, http.StatusConflict, out)
	default:
		if errors.Is(out.Err, pipeline.ErrJobRequired) {
			httputil.JSON(w, http.StatusBadRequest, out)
			return
		}
		httputil.JSON(w, http.StatusBadGateway, out)
	}
}

// writePipelineError maps collaborator errors to status codes
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), isPlatformNotFound(err):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, pipeline.ErrJobRequired):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, pipeline.ErrJobCompleted), errors.Is(err, pipeline.ErrCompletionNotRecorded):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, pipeline.ErrFetch):
		httputil.ErrorCode(w, http.StatusBadGateway, "fetch_failed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httputil.Error(w, http.StatusGatewayTimeout, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}

func isPlatformNotFound(err error) bool {
	var apiErr *platform.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
