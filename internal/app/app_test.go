package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-workbook-pipeline/internal/config"
	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pipeline"
	"go-workbook-pipeline/internal/pkg/distlock"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(dir, "pipeline.db")},
		Pipeline: config.PipelineConfig{
			PageSize:      2,
			Concurrency:   2,
			SubmitTimeout: 5 * time.Second,
			AllowEmpty:    true,
			Workers:       2,
		},
		Endpoint: config.EndpointConfig{Mode: "file", OutputDir: filepath.Join(dir, "out"), Format: "json"},
		Logging:  config.LoggingConfig{Level: "error", Redact: true},
	}
}

func importCSV(t *testing.T, a *App) pipeline.ImportResult {
	t.Helper()
	res, err := a.Importer.Import(context.Background(), pipeline.ImportRequest{
		FileName: "benefits.csv",
		Data:     strings.NewReader("employee_id,amount\n1,10\n2,20\n3,30\n"),
		Metadata: map[string]interface{}{"folder": "acme"},
	})
	require.NoError(t, err)
	return res
}

func TestBuildFileModeEndToEnd(t *testing.T) {
	a, err := Build(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &pipeline.LocalGuard{}, a.Driver.Guard)
	require.NotNil(t, a.Exports)

	res := importCSV(t, a)
	ctx := context.Background()

	before, err := a.Checker.Check(ctx, res.Workbook.ID)
	require.NoError(t, err)
	assert.False(t, before.Ready())

	out, err := a.Listener.Handle(ctx, model.Event{
		ID:      "evt1",
		Topic:   model.TopicCommitCreated,
		Context: model.EventContext{WorkbookID: res.Workbook.ID, SpaceID: res.Space.ID},
	})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, pipeline.OutcomeCompleted, out.Status)

	job, err := a.Store.GetJob(ctx, out.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.State)
	assert.Equal(t, model.OperationAutoSubmit, job.Operation)

	matches, err := filepath.Glob(filepath.Join(a.Config.Endpoint.OutputDir, "*", "submission.json"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestBuildHTTPModeWithRedisGuard(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Endpoint = config.EndpointConfig{Mode: "http", URL: srv.URL}
	cfg.Redis = config.RedisConfig{Addr: mr.Addr(), LockTTL: time.Minute}

	a, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &distlock.Guard{}, a.Driver.Guard)
	assert.Nil(t, a.Exports)

	res := importCSV(t, a)
	ctx := context.Background()
	_, err = a.Validator.ValidateWorkbook(ctx, res.Workbook.ID)
	require.NoError(t, err)

	job, err := a.Store.CreateJob(ctx, model.Job{WorkbookID: res.Workbook.ID, SpaceID: res.Space.ID, Operation: model.OperationSubmit})
	require.NoError(t, err)

	out := a.Driver.Submit(ctx, pipeline.SubmitRequest{JobID: job.ID, WorkbookID: res.Workbook.ID, SpaceID: res.Space.ID})
	assert.Equal(t, pipeline.OutcomeCompleted, out.Status)
	assert.Equal(t, 1, hits)
	assert.False(t, mr.Exists("lock:submit:"+res.Workbook.ID))
	assert.False(t, mr.Exists("lock:job:"+job.ID))
}

func TestBuildRejectsBadRules(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.RulesFile = filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(cfg.Pipeline.RulesFile, []byte("sheet: [broken"), 0o644))

	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
