package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-workbook-pipeline/internal/api/handler"
	"go-workbook-pipeline/internal/app"
	"go-workbook-pipeline/internal/config"
	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/pkg/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app    *app.App
	router *router.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "api.db")},
		Pipeline: config.PipelineConfig{PageSize: 2, Concurrency: 2, SubmitTimeout: 5 * time.Second, AllowEmpty: true, Workers: 2},
		Endpoint: config.EndpointConfig{Mode: "file", OutputDir: filepath.Join(dir, "out"), Format: "json"},
		Logging:  config.LoggingConfig{Level: "error", Redact: true},
	}
	a, err := app.Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	r := router.New()
	RegisterRoutes(r, handler.New(a))
	return &testServer{app: a, router: r}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, name, content string) pipeline.ImportResult {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("space", "acme"))
	require.NoError(t, mw.WriteField("metadata", `{"folder":"acme/in"}`))
	require.NoError(t, mw.Close())

	rec := s.do(t, http.MethodPost, "/api/v1/imports", buf.Bytes(), mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res pipeline.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func TestWorkbookLifecycle(t *testing.T) {
	s := newTestServer(t)
	res := s.upload(t, "benefits.csv", "employee_id,amount\n1,10\n2,20\n3,30\n")
	assert.Equal(t, 3, res.Records)
	wb := res.Workbook.ID

	rec := s.do(t, http.MethodGet, "/api/v1/workbooks/"+wb+"/readiness", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var readiness handler.ReadinessResponse
	decode(t, rec, &readiness)
	assert.Equal(t, pipeline.StatusNotReady, readiness.Status)
	assert.Nil(t, readiness.Summary)

	// not ready: the job stays created
	rec = s.do(t, http.MethodPost, "/api/v1/workbooks/"+wb+"/submit", nil, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	var early pipeline.Outcome
	decode(t, rec, &early)
	assert.Equal(t, pipeline.OutcomeNotReady, early.Status)

	rec = s.do(t, http.MethodPost, "/api/v1/workbooks/"+wb+"/validate", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summary pipeline.ValidationSummary
	decode(t, rec, &summary)
	assert.Equal(t, 3, summary.Records)

	rec = s.do(t, http.MethodGet, "/api/v1/workbooks/"+wb+"/readiness?timeout=10s", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &readiness)
	assert.True(t, readiness.Ready())
	require.NotNil(t, readiness.Summary)
	assert.Equal(t, 3, readiness.Summary.Records)

	rec = s.do(t, http.MethodPost, "/api/v1/workbooks/"+wb+"/submit", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var done pipeline.Outcome
	decode(t, rec, &done)
	assert.Equal(t, pipeline.OutcomeCompleted, done.Status)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs/"+done.JobID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail handler.JobDetail
	decode(t, rec, &detail)
	assert.Equal(t, model.JobCompleted, detail.Job.State)
	assert.Equal(t, "Data synced.", detail.Job.Info)
	assert.Equal(t, res.Space.ID, detail.Job.SpaceID)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs?workbookId="+wb, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []model.Job
	decode(t, rec, &jobs)
	assert.Len(t, jobs, 2)

	// completed jobs are never reopened
	rec = s.do(t, http.MethodPost, "/api/v1/jobs/"+done.JobID+"/retry", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	// the stuck job is retried under a new job
	rec = s.do(t, http.MethodPost, "/api/v1/jobs/"+early.JobID+"/retry", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var retry handler.RetryResponse
	decode(t, rec, &retry)
	assert.Equal(t, early.JobID, retry.RetryOf)
	assert.NotEqual(t, early.JobID, retry.Job.ID)
	assert.Equal(t, pipeline.OutcomeCompleted, retry.Outcome.Status)

	stuck, err := s.app.Store.GetJob(context.Background(), early.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCreated, stuck.State)
}

func TestExportDownload(t *testing.T) {
	s := newTestServer(t)
	res := s.upload(t, "people.json", `[{"name":"Ada"},{"name":"Linus"}]`)

	rec := s.do(t, http.MethodPost, "/api/v1/events",
		[]byte(`{"id":"e1","topic":"commit:created","context":{"workbookId":"`+res.Workbook.ID+`","spaceId":"`+res.Space.ID+`"}}`),
		"application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries, err := os.ReadDir(s.app.Config.Endpoint.OutputDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	exportID := entries[0].Name()

	rec = s.do(t, http.MethodGet, "/api/v1/exports/"+exportID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listing handler.ExportListing
	decode(t, rec, &listing)
	require.Equal(t, 1, listing.Count)
	assert.Equal(t, "submission.json", listing.Files[0].Name)
	assert.Equal(t, "json", listing.Files[0].Type)
	assert.Equal(t, "/api/v1/exports/"+exportID+"/submission.json", listing.Files[0].URL)
	info, err := os.Stat(filepath.Join(s.app.Config.Endpoint.OutputDir, exportID, "submission.json"))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), listing.Files[0].Size)

	rec = s.do(t, http.MethodGet, "/api/v1/exports/"+exportID+"/submission.json", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"folder": "acme/in"`)

	rec = s.do(t, http.MethodGet, "/api/v1/exports/"+exportID+"/missing.csv", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventsAndErrors(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/events", []byte(`{"topic":"space:created"}`), "application/json")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/events",
		[]byte(`{"topic":"job:ready","job":"workbook:submitAction","context":{"workbookId":"wb1"}}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/events", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/jobs/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/imports", []byte(`{"fileName":"x.csv"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("hello"))
	require.NoError(t, mw.Close())
	rec = s.do(t, http.MethodPost, "/api/v1/imports", buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"ok"`))
}

func TestRemoteImport(t *testing.T) {
	s := newTestServer(t)
	path := filepath.Join(t.TempDir(), "remote.csv")
	require.NoError(t, os.WriteFile(path, []byte("a\n1\n"), 0o644))

	rec := s.do(t, http.MethodPost, "/api/v1/imports",
		[]byte(`{"location":"file://`+filepath.ToSlash(path)+`","spaceName":"remote"}`), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res pipeline.ImportResult
	decode(t, rec, &res)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, "remote", res.Space.Name)
	assert.Equal(t, "remote", res.Workbook.Name)
}

func TestServerCORS(t *testing.T) {
	s := newTestServer(t)
	s.app.Config.Server.CORSOrigins = []string{"https://app.example"}
	srv := NewServer(s.app)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Workbook Pipeline API")
}
