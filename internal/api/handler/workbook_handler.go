package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/internal/pkg/httputil"
	"go-workbook-pipeline/internal/pkg/logger"
	"go-workbook-pipeline/internal/store"
	"go-workbook-pipeline/pkg/router"
	"go-workbook-pipeline/pkg/utils"
)

const maxUploadBytes = 64 << 20

// ImportBody is the JSON form of an import; the file is fetched from Location.
type ImportBody struct {
	Location  string                 `json:"location"`
	FileName  string                 `json:"fileName,omitempty"`
	SpaceName string                 `json:"spaceName,omitempty"`
	Username  string                 `json:"username,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SubmitBody optionally names the space of the workbook
type SubmitBody struct {
	SpaceID string `json:"spaceId,omitempty"`
}

// ReadinessResponse is a readiness verdict with the payload shape
type ReadinessResponse struct {
	pipeline.Readiness
	Summary *pipeline.PayloadSummary `json:"summary,omitempty"`
}

// CreateImport imports an uploaded or remote file as a new workbook
// @Summary Import a file
// @Description Upload a CSV, JSON or XLSX file (multipart field "file") or post a JSON body with a location (file://, http(s)://, s3://). Every sheet starts unprocessed.
// @Tags imports
// @Accept multipart/form-data
// @Accept json
// @Produce json
// @Param file formData file false "File to import"
// @Param space formData string false "Space name"
// @Param username formData string false "Uploading user"
// @Param metadata formData string false "Space metadata as JSON"
// @Param body body ImportBody false "Remote import"
// @Success 201 {object} pipeline.ImportResult "Workbook created"
// @Failure 400 {object} httputil.ErrorResponse "Invalid request"
// @Failure 500 {object} httputil.ErrorResponse "Internal server error"
// @Router /imports [post]
func (h *Handler) CreateImport(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ImportRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body ImportBody
		if !httputil.Decode(w, r, &body) {
			return
		}
		if body.Location == "" {
			httputil.BadRequest(w, "location is required")
			return
		}
		req = pipeline.ImportRequest{
			FileName:  body.FileName,
			Location:  body.Location,
			Username:  body.Username,
			SpaceName: body.SpaceName,
			Metadata:  body.Metadata,
		}
	} else {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			httputil.BadRequest(w, "invalid multipart form: "+err.Error())
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httputil.BadRequest(w, "file is required")
			return
		}
		defer file.Close()

		req = pipeline.ImportRequest{
			FileName:  header.Filename,
			Data:      file,
			Username:  r.FormValue("username"),
			SpaceName: r.FormValue("space"),
		}
		if raw := r.FormValue("metadata"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
				httputil.BadRequest(w, "metadata must be a JSON object")
				return
			}
		}
	}

	res, err := h.Importer.Import(r.Context(), req)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnsupportedFormat) {
			httputil.BadRequest(w, err.Error())
			return
		}
		writePipelineError(w, err)
		return
	}
	httputil.Created(w, res)
}

// ValidateWorkbook runs the record hook over every sheet of a workbook
// @Summary Validate a workbook
// @Description Apply the configured validation rules to every record and mark it processed.
// @Tags workbooks
// @Produce json
// @Param id path string true "Workbook ID"
// @Success 200 {object} pipeline.ValidationSummary "Validation summary"
// @Failure 502 {object} httputil.ErrorResponse "Record source failed"
// @Router /workbooks/{id}/validate [post]
func (h *Handler) ValidateWorkbook(w http.ResponseWriter, r *http.Request) {
	workbookID := router.Param(r, 0)
	summary, err := h.Validator.ValidateWorkbook(r.Context(), workbookID)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	httputil.OK(w, summary)
}

// GetReadiness checks whether every record of a workbook is processed
// @Summary Check workbook readiness
// @Description Scan all sheets page by page. The verdict is a snapshot.
// @Tags workbooks
// @Produce json
// @Param id path string true "Workbook ID"
// @Param timeout query string false "Scan timeout, e.g. 30s"
// @Success 200 {object} ReadinessResponse "Readiness verdict"
// @Failure 502 {object} httputil.ErrorResponse "Record source failed"
// @Router /workbooks/{id}/readiness [get]
func (h *Handler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	workbookID := router.Param(r, 0)
	ctx, cancel := context.WithTimeout(r.Context(), utils.ParseDuration(r.URL.Query().Get("timeout"), h.CheckTimeout))
	defer cancel()

	res, err := h.Checker.Check(ctx, workbookID)
	if err != nil {
		writePipelineError(w, err)
		return
	}

	resp := ReadinessResponse{Readiness: res}
	if res.Ready() {
		summary := pipeline.Summarize(res.Payload)
		resp.Summary = &summary
	}
	httputil.OK(w, resp)
}

// SubmitWorkbook opens a submit job and runs it
// @Summary Submit a workbook
// @Description Create a workbook:submitAction job, check readiness and send the aggregated records once.
// @Tags workbooks
// @Accept json
// @Produce json
// @Param id path string true "Workbook ID"
// @Param body body SubmitBody false "Space of the workbook"
// @Success 200 {object} pipeline.Outcome "Submission completed"
// @Failure 409 {object} pipeline.Outcome "Not ready or already submitting"
// @Failure 502 {object} pipeline.Outcome "Submission failed"
// @Router /workbooks/{id}/submit [post]
func (h *Handler) SubmitWorkbook(w http.ResponseWriter, r *http.Request) {
	workbookID := router.Param(r, 0)

	var body SubmitBody
	if r.ContentLength > 0 && !httputil.Decode(w, r, &body) {
		return
	}
	if body.SpaceID == "" && h.Workbooks != nil {
		wb, err := h.Workbooks.GetWorkbook(r.Context(), workbookID)
		switch {
		case err == nil:
			body.SpaceID = wb.SpaceID
		case !errors.Is(err, store.ErrNotFound):
			writePipelineError(w, err)
			return
		}
	}

	job, err := h.Jobs.CreateJob(r.Context(), model.Job{
		WorkbookID: workbookID,
		SpaceID:    body.SpaceID,
		Operation:  model.OperationSubmit,
	})
	if err != nil {
		writePipelineError(w, fmt.Errorf("failed to create job: %w", err))
		return
	}

	out := h.Driver.Submit(r.Context(), pipeline.SubmitRequest{
		JobID:      job.ID,
		WorkbookID: workbookID,
		SpaceID:    body.SpaceID,
	})
	writeOutcome(w, out)
}

// HandleEvent routes a workflow event to the listener
// @Summary Deliver an event
// @Description Accepts commit:created, job:ready and job:failed events. Other topics are ignored.
// @Tags events
// @Accept json
// @Produce json
// @Param event body model.Event true "Event"
// @Success 200 {object} pipeline.Outcome "Submission decision"
// @Success 202 {object} map[string]interface{} "Event ignored"
// @Failure 400 {object} httputil.ErrorResponse "Invalid event"
// @Router /events [post]
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var evt model.Event
	if !httputil.Decode(w, r, &evt) {
		return
	}
	if evt.Topic == "" {
		httputil.BadRequest(w, "topic is required")
		return
	}

	out, err := h.Listener.Handle(r.Context(), evt)
	if err != nil {
		logger.Warn("event handling failed", "event_id", evt.ID, "topic", evt.Topic, "error", err.Error())
		writePipelineError(w, err)
		return
	}
	if out == nil {
		httputil.Accepted(w, map[string]interface{}{"status": "ignored", "topic": evt.Topic})
		return
	}
	writeOutcome(w, *out)
}

// ExportFile is one file of an export
type ExportFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// ExportListing lists the files of an export
type ExportListing struct {
	ExportID string       `json:"export_id"`
	Files    []ExportFile `json:"files"`
	Count    int          `json:"count"`
}

// ListExportFiles lists the files written for one export with their sizes
// @Summary List export files
// @Tags exports
// @Produce json
// @Param id path string true "Export ID"
// @Success 200 {object} ExportListing "Export files"
// @Failure 404 {object} httputil.ErrorResponse "Export not found"
// @Router /exports/{id} [get]
func (h *Handler) ListExportFiles(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		httputil.NotFound(w, "file exports are disabled")
		return
	}
	exportID := router.Param(r, 0)
	files, err := h.Exports.ListFiles(exportID)
	if err != nil {
		httputil.NotFound(w, "export not found")
		return
	}

	entries := make([]ExportFile, 0, len(files))
	for _, f := range files {
		path, err := h.Exports.ResolveFile(exportID, f)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		size, err := h.Exports.GetFileSize(path)
		if err != nil {
			httputil.InternalError(w, err)
			return
		}
		entries = append(entries, ExportFile{
			Name: f,
			Type: h.Exports.GetFileType(f),
			Size: size,
			URL:  h.Exports.GetDownloadURL(exportID, f),
		})
	}
	httputil.OK(w, ExportListing{ExportID: exportID, Files: entries, Count: len(entries)})
}

// DownloadExport serves one export file
// @Summary Download export file
// @Tags exports
// @Produce application/octet-stream
// @Param id path string true "Export ID"
// @Param filename path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 404 {object} httputil.ErrorResponse "File not found"
// @Router /exports/{id}/{filename} [get]
func (h *Handler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	if h.Exports == nil {
		httputil.NotFound(w, "file exports are disabled")
		return
	}
	exportID, fileName := router.Param(r, 0), router.Param(r, 1)

	path, err := h.Exports.ResolveFile(exportID, fileName)
	if err != nil {
		if errors.Is(err, utils.ErrInvalidName) {
			httputil.BadRequest(w, err.Error())
			return
		}
		if os.IsNotExist(err) {
			httputil.NotFound(w, "file not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Type", h.Exports.ContentType(fileName))
	http.ServeFile(w, r, path)
}
