// Package platform is a REST client for a hosted import platform. It lets the
// pipeline read sheets and records and report jobs against a remote workspace
// instead of the local store.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-workbook-pipeline/internal/model"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIError is a non-2xx answer from the platform
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client talks to the platform API with a bearer key.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    HTTPDoer
}

// NewClient creates a client with a default timeout
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: msg}
	}
	if out == nil {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("platform %s %s: failed to decode response: %w", method, path, err)
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("platform %s %s: response has no data", method, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("platform %s %s: failed to decode data: %w", method, path, err)
	}
	return nil
}

type sheetDTO struct {
	ID         string `json:"id"`
	WorkbookID string `json:"workbookId"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
}

// ListSheets lists the sheets of a workbook and fills in each total count.
func (c *Client) ListSheets(ctx context.Context, workbookID string) ([]model.Sheet, error) {
	var dtos []sheetDTO
	if err := c.do(ctx, http.MethodGet, "/sheets", url.Values{"workbookId": {workbookID}}, nil, &dtos); err != nil {
		return nil, err
	}

	sheets := make([]model.Sheet, 0, len(dtos))
	for _, d := range dtos {
		total, err := c.RecordCount(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, model.Sheet{
			ID:          d.ID,
			WorkbookID:  d.WorkbookID,
			Name:        d.Name,
			Slug:        d.Slug,
			RecordCount: total,
		})
	}
	return sheets, nil
}

// RecordCount returns the total number of records in a sheet
func (c *Client) RecordCount(ctx context.Context, sheetID string) (int, error) {
	var out struct {
		Counts struct {
			Total int `json:"total"`
		} `json:"counts"`
	}
	if err := c.do(ctx, http.MethodGet, "/sheets/"+url.PathEscape(sheetID)+"/counts", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Counts.Total, nil
}

type cellDTO struct {
	Value interface{} `json:"value"`
}

type recordDTO struct {
	ID       string             `json:"id"`
	Values   map[string]cellDTO `json:"values"`
	Valid    *bool              `json:"valid,omitempty"`
	Metadata struct {
		Processed bool     `json:"processed"`
		Messages  []string `json:"messages,omitempty"`
	} `json:"metadata"`
}

// GetRecordPage fetches one 1-based page of records
func (c *Client) GetRecordPage(ctx context.Context, sheetID string, pageNumber, pageSize int) ([]model.Record, error) {
	var out struct {
		Records []recordDTO `json:"records"`
	}
	q := url.Values{
		"pageNumber": {strconv.Itoa(pageNumber)},
		"pageSize":   {strconv.Itoa(pageSize)},
	}
	if err := c.do(ctx, http.MethodGet, "/sheets/"+url.PathEscape(sheetID)+"/records", q, nil, &out); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(out.Records))
	for _, d := range out.Records {
		fields := make(model.GenericRecord, len(d.Values))
		for k, v := range d.Values {
			fields[k] = v.Value
		}
		records = append(records, model.Record{
			ID:     d.ID,
			Fields: fields,
			Metadata: model.RecordMetadata{
				Processed: d.Metadata.Processed,
				Valid:     d.Valid,
				Messages:  d.Metadata.Messages,
			},
		})
	}
	return records, nil
}

// GetSpaceMetadata returns the metadata attached to a space
func (c *Client) GetSpaceMetadata(ctx context.Context, spaceID string) (map[string]interface{}, error) {
	var out struct {
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := c.do(ctx, http.MethodGet, "/spaces/"+url.PathEscape(spaceID), nil, nil, &out); err != nil {
		return nil, err
	}
	if out.Metadata == nil {
		out.Metadata = map[string]interface{}{}
	}
	return out.Metadata, nil
}

// Credentials reads the customer_id, api_key and api_secret secrets of a space.
func (c *Client) Credentials(ctx context.Context, spaceID string) (model.Credentials, error) {
	var secrets []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/secrets", url.Values{"spaceId": {spaceID}}, nil, &secrets); err != nil {
		return model.Credentials{}, err
	}

	var creds model.Credentials
	for _, s := range secrets {
		switch s.Name {
		case "customer_id":
			creds.CustomerID = s.Value
		case "api_key":
			creds.APIKey = s.Value
		case "api_secret":
			creds.APISecret = s.Value
		}
	}
	return creds, nil
}

type jobDTO struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	Info      string `json:"info"`
	Progress  int    `json:"progress"`
	Input     struct {
		SpaceID string `json:"spaceId"`
	} `json:"input"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// jobState maps the platform's job status onto the local state machine
func jobState(status string) model.JobState {
	switch status {
	case "executing":
		return model.JobAcknowledged
	case "complete", "completed":
		return model.JobCompleted
	case "failed", "canceled":
		return model.JobFailed
	default:
		return model.JobCreated
	}
}

func (d jobDTO) toJob() model.Job {
	return model.Job{
		ID:         d.ID,
		WorkbookID: d.Source,
		SpaceID:    d.Input.SpaceID,
		Operation:  d.Operation,
		State:      jobState(d.Status),
		Info:       d.Info,
		Progress:   d.Progress,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// CreateJob opens a workbook job on the platform
func (c *Client) CreateJob(ctx context.Context, job model.Job) (model.Job, error) {
	body := map[string]interface{}{
		"type":      "workbook",
		"operation": job.Operation,
		"source":    job.WorkbookID,
		"input":     map[string]string{"spaceId": job.SpaceID},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/jobs", nil, body, &out); err != nil {
		return model.Job{}, err
	}
	job.ID = out.ID
	job.State = model.JobCreated
	return job, nil
}

// GetJob reads one job
func (c *Client) GetJob(ctx context.Context, id string) (model.Job, error) {
	var out jobDTO
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return model.Job{}, err
	}
	return out.toJob(), nil
}

// ListJobs lists workbook jobs, optionally of one workbook
func (c *Client) ListJobs(ctx context.Context, workbookID string) ([]model.Job, error) {
	q := url.Values{}
	if workbookID != "" {
		q.Set("sourceId", workbookID)
	}
	var out []jobDTO
	if err := c.do(ctx, http.MethodGet, "/jobs", q, nil, &out); err != nil {
		return nil, err
	}
	jobs := make([]model.Job, 0, len(out))
	for _, d := range out {
		jobs = append(jobs, d.toJob())
	}
	return jobs, nil
}

// Acknowledge marks a job as picked up
func (c *Client) Acknowledge(ctx context.Context, jobID, info string, progress int) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/ack", nil,
		map[string]interface{}{"info": info, "progress": progress}, nil)
}

// Complete marks a job as done
func (c *Client) Complete(ctx context.Context, jobID, info string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/complete", nil,
		map[string]interface{}{"info": info}, nil)
}

// Fail marks a job as failed
func (c *Client) Fail(ctx context.Context, jobID, info string) error {
	return c.do(ctx, http.MethodPost, "/jobs/"+url.PathEscape(jobID)+"/fail", nil,
		map[string]interface{}{"info": info}, nil)
}
