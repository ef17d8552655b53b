package handler

import (
	"net/http"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/internal/pkg/httputil"
	"go-workbook-pipeline/internal/store"
	"go-workbook-pipeline/pkg/router"
)

// JobDetail is a job with the errors recorded against it
type JobDetail struct {
	Job    model.Job        `json:"job"`
	Errors []store.JobError `json:"errors"`
}

// RetryResponse names the new job a retry ran under
type RetryResponse struct {
	RetryOf string           `json:"retryOf"`
	Job     model.Job        `json:"job"`
	Outcome pipeline.Outcome `json:"outcome"`
}

// ListJobs retrieves jobs, newest first
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Param workbookId query string false "Only jobs of this workbook"
// @Success 200 {array} model.Job "Jobs"
// @Failure 500 {object} httputil.ErrorResponse "Internal server error"
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.JobStore.ListJobs(r.Context(), r.URL.Query().Get("workbookId"))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, jobs)
}

// GetJob retrieves a job and its errors
// @Summary Get job
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobDetail "Job details"
// @Failure 404 {object} httputil.ErrorResponse "Job not found"
// @Router /jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := router.Param(r, 0)
	if jobID == "" {
		httputil.BadRequest(w, "job id is required")
		return
	}

	job, err := h.JobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	detail := JobDetail{Job: job, Errors: []store.JobError{}}
	if lister, ok := h.JobStore.(jobErrorLister); ok {
		detail.Errors, err = lister.ListJobErrors(r.Context(), jobID)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
	}
	httputil.OK(w, detail)
}

// RetryJob re-runs a failed or unfinished submission under a new job
// @Summary Retry job
// @Description Completed jobs, and jobs whose data was delivered, cannot be retried. The original job keeps its state.
// @Tags jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} RetryResponse "Retry ran"
// @Failure 404 {object} httputil.ErrorResponse "Job not found"
// @Failure 409 {object} httputil.ErrorResponse "Job already completed or delivered"
// @Router /jobs/{id}/retry [post]
func (h *Handler) RetryJob(w http.ResponseWriter, r *http.Request) {
	jobID := router.Param(r, 0)

	job, out, err := pipeline.RetryJob(r.Context(), h.JobStore, h.Driver, jobID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	resp := RetryResponse{RetryOf: jobID, Job: job, Outcome: out}
	switch out.Status {
	case pipeline.OutcomeCompleted:
		httputil.OK(w, resp)
	case pipeline.OutcomeNotReady, pipeline.OutcomeDuplicate:
		httputil.JSON(w, http.StatusConflict, resp)
	default:
		httputil.JSON(w, http.StatusBadGateway, resp)
	}
}
