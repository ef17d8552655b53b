package pipeline

import (
	"context"

	"go-workbook-pipeline/internal/model"
)

// ------------------- Collaborators -------------------
//
// The pipeline never owns records, spaces or jobs. It reaches them through
// these narrow interfaces, implemented by the local sqlite store and by the
// hosted platform client.

// SheetDirectory lists the sheets of a workbook, each with its total record count.
type SheetDirectory interface {
	ListSheets(ctx context.Context, workbookID string) ([]model.Sheet, error)
}

// RecordStore returns one 1-based page of records of a sheet.
type RecordStore interface {
	GetRecordPage(ctx context.Context, sheetID string, pageNumber, pageSize int) ([]model.Record, error)
}

// SpaceMetadataStore returns the caller metadata attached to a space.
type SpaceMetadataStore interface {
	GetSpaceMetadata(ctx context.Context, spaceID string) (map[string]interface{}, error)
}

// JobReporter moves a job through acknowledged -> completed | failed.
type JobReporter interface {
	Acknowledge(ctx context.Context, jobID, info string, progress int) error
	Complete(ctx context.Context, jobID, info string) error
	Fail(ctx context.Context, jobID, info string) error
}

// JobCreator opens a new job for a workbook.
type JobCreator interface {
	CreateJob(ctx context.Context, job model.Job) (model.Job, error)
}

// CredentialSource resolves the identifiers forwarded with a submission.
type CredentialSource interface {
	Credentials(ctx context.Context, spaceID string) (model.Credentials, error)
}

// StaticCredentials is a CredentialSource returning fixed values. It stands
// in for a secrets store.
type StaticCredentials model.Credentials

// Credentials returns the fixed credentials regardless of space.
func (s StaticCredentials) Credentials(ctx context.Context, spaceID string) (model.Credentials, error) {
	return model.Credentials(s), nil
}

// SubmissionEndpoint receives the aggregated payload.
type SubmissionEndpoint interface {
	Submit(ctx context.Context, payload model.SubmissionPayload) (SubmissionResponse, error)
}
