package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"
)

// ------------------- Ingestion -------------------

const (
	insertBatchSize = 500
	secretCustomer  = "customer_id"
)

// WorkbookWriter persists the space, workbook, sheets and records of an import.
type WorkbookWriter interface {
	CreateSpace(ctx context.Context, space model.Space) (model.Space, error)
	CreateWorkbook(ctx context.Context, wb model.Workbook) (model.Workbook, error)
	CreateSheet(ctx context.Context, sheet model.Sheet) (model.Sheet, error)
	InsertRecords(ctx context.Context, sheetID string, records []model.Record) error
	UpsertSecret(ctx context.Context, spaceID, name, value string) error
}

// FileFetcher opens a remote file by location (file://, http(s)://, s3://).
type FileFetcher interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// ImportRequest describes one file import. Either Data or Location is set.
type ImportRequest struct {
	FileName  string
	Data      io.Reader
	Location  string
	Username  string
	SpaceName string
	Metadata  map[string]interface{}
}

// ImportResult is what an import created
type ImportResult struct {
	Space    model.Space    `json:"space"`
	Workbook model.Workbook `json:"workbook"`
	Records  int            `json:"records"`
}

// Importer turns an uploaded file into a space with one workbook. Every
// record starts unprocessed.
type Importer struct {
	Store   WorkbookWriter
	Fetcher FileFetcher
}

// Import parses the file and stores it.
func (im *Importer) Import(ctx context.Context, req ImportRequest) (ImportResult, error) {
	data := req.Data
	name := req.FileName
	if data == nil {
		if req.Location == "" {
			return ImportResult{}, errors.New("either file data or a location is required")
		}
		if im.Fetcher == nil {
			return ImportResult{}, errors.New("no fetcher configured for remote imports")
		}
		rc, err := im.Fetcher.Open(ctx, req.Location)
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to fetch %s: %w", req.Location, err)
		}
		defer rc.Close()
		data = rc
		if name == "" {
			name = path.Base(req.Location)
		}
	}

	logger.Info("starting import", "file", name, "location", req.Location)

	tables, err := ParseFile(name, data)
	if err != nil {
		return ImportResult{}, err
	}

	spaceName := req.SpaceName
	if spaceName == "" {
		spaceName = "Some Space"
	}
	space, err := im.Store.CreateSpace(ctx, model.Space{Name: spaceName, Metadata: req.Metadata})
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to create space: %w", err)
	}

	username := req.Username
	if username == "" {
		username = "unknown"
	}
	if err := im.Store.UpsertSecret(ctx, space.ID, secretCustomer, username); err != nil {
		return ImportResult{}, fmt.Errorf("failed to store customer secret: %w", err)
	}

	wb, err := im.Store.CreateWorkbook(ctx, model.Workbook{
		SpaceID: space.ID,
		Name:    strings.TrimSuffix(name, path.Ext(name)),
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to create workbook: %w", err)
	}

	total := 0
	for _, t := range tables {
		sheet, err := im.Store.CreateSheet(ctx, model.Sheet{
			WorkbookID: wb.ID,
			Name:       t.Name,
			Slug:       slugify(t.Name),
		})
		if err != nil {
			return ImportResult{}, fmt.Errorf("failed to create sheet %s: %w", t.Name, err)
		}

		for start := 0; start < len(t.Rows); start += insertBatchSize {
			if err := ctx.Err(); err != nil {
				return ImportResult{}, err
			}
			end := min(start+insertBatchSize, len(t.Rows))
			batch := make([]model.Record, 0, end-start)
			for _, row := range t.Rows[start:end] {
				batch = append(batch, model.Record{Fields: row})
			}
			if err := im.Store.InsertRecords(ctx, sheet.ID, batch); err != nil {
				return ImportResult{}, fmt.Errorf("failed to insert records into sheet %s: %w", t.Name, err)
			}
		}

		sheet.RecordCount = len(t.Rows)
		wb.Sheets = append(wb.Sheets, sheet)
		total += len(t.Rows)
		logger.Info("sheet imported", "workbook_id", wb.ID, "sheet", t.Name, "records", len(t.Rows))
	}

	logger.Info("import finished",
		"space_id", space.ID,
		"workbook_id", wb.ID,
		"sheets", len(wb.Sheets),
		"records", total,
	)
	return ImportResult{Space: space, Workbook: wb, Records: total}, nil
}
