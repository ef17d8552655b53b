package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-workbook-pipeline/internal/model"
)

// RecordResult is the endpoint's verdict on a single record.
// Not fed back into records yet; logged only.
type RecordResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// SubmissionResponse is the documented endpoint response:
//
//	{"success": true, "message": "...", "records": [{"id": "...", "success": true}]}
//
// A body without "success" is treated as a rejection.
type SubmissionResponse struct {
	StatusCode int            `json:"-"`
	Success    *bool          `json:"success"`
	Message    string         `json:"message,omitempty"`
	Records    []RecordResult `json:"records,omitempty"`
}

// Accepted reports an explicit success indicator on a 2xx (or non-HTTP) response.
func (r SubmissionResponse) Accepted() bool {
	if r.StatusCode != 0 && (r.StatusCode < 200 || r.StatusCode > 299) {
		return false
	}
	return r.Success != nil && *r.Success
}

// FailedRecords returns the per-record results marked unsuccessful.
func (r SubmissionResponse) FailedRecords() []RecordResult {
	var out []RecordResult
	for _, rec := range r.Records {
		if !rec.Success {
			out = append(out, rec)
		}
	}
	return out
}

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPEndpoint POSTs the payload as JSON. It performs exactly one request.
type HTTPEndpoint struct {
	URL     string
	Client  HTTPDoer
	Headers map[string]string
}

// NewHTTPEndpoint creates an endpoint for url; the client carries no retry.
func NewHTTPEndpoint(url string, timeout time.Duration) *HTTPEndpoint {
	return &HTTPEndpoint{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

const maxResponseBody = 1 << 20

// Submit sends the payload and classifies the answer. Transport failures
// wrap ErrSubmissionTransport; answers without an explicit success wrap
// ErrSubmissionRejected.
func (e *HTTPEndpoint) Submit(ctx context.Context, payload model.SubmissionPayload) (SubmissionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return SubmissionResponse{}, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(body))
	if err != nil {
		return SubmissionResponse{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range e.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return SubmissionResponse{}, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return SubmissionResponse{StatusCode: resp.StatusCode}, transportError(fmt.Errorf("failed to read response: %w", err))
	}

	return decodeResponse(resp.StatusCode, raw)
}

func decodeResponse(status int, raw []byte) (SubmissionResponse, error) {
	out := SubmissionResponse{StatusCode: status}

	if status < 200 || status > 299 {
		return out, &RejectedError{StatusCode: status, Message: snippet(raw)}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		out.StatusCode = status
		return out, &RejectedError{StatusCode: status, Message: "unrecognized response body: " + snippet(raw)}
	}
	out.StatusCode = status

	if out.Success == nil {
		return out, &RejectedError{StatusCode: status, Message: "response has no success indicator"}
	}
	if !*out.Success {
		msg := out.Message
		if msg == "" {
			msg = "endpoint reported failure"
		}
		return out, &RejectedError{StatusCode: status, Message: msg}
	}
	return out, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
