package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"
	"go-workbook-pipeline/pkg/utils"

	"github.com/google/uuid"
)

// ExportResult represents the result of an export operation
type ExportResult struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"` // "json", "csv"
	Paths       []string  `json:"paths"`
	URLs        []string  `json:"urls"`
	RecordCount int       `json:"record_count"`
	ExportedAt  time.Time `json:"exported_at"`
}

// FileEndpoint is a SubmissionEndpoint that writes each payload under its own
// directory instead of calling a remote service. A write failure is a
// transport error; a completed write is an accepted submission.
type FileEndpoint struct {
	Output *utils.OutputManager
	Format string
}

// NewFileEndpoint creates a file endpoint rooted at dir
func NewFileEndpoint(dir, format string) *FileEndpoint {
	if format == "" {
		format = "json"
	}
	return &FileEndpoint{Output: utils.NewOutputManager(dir), Format: format}
}

// Submit writes the payload and reports success.
func (f *FileEndpoint) Submit(ctx context.Context, payload model.SubmissionPayload) (SubmissionResponse, error) {
	if err := ctx.Err(); err != nil {
		return SubmissionResponse{}, transportError(err)
	}

	result, err := f.Export(payload)
	if err != nil {
		return SubmissionResponse{}, transportError(err)
	}

	ok := true
	return SubmissionResponse{
		Success: &ok,
		Message: fmt.Sprintf("exported %d records as %s", result.RecordCount, result.ID),
	}, nil
}

// Export writes the payload and returns where it went
func (f *FileEndpoint) Export(payload model.SubmissionPayload) (ExportResult, error) {
	result := ExportResult{
		ID:          uuid.New().String(),
		Format:      f.Format,
		RecordCount: payload.RecordCount(),
		ExportedAt:  time.Now().UTC(),
	}

	var err error
	switch f.Format {
	case "csv":
		result.Paths, err = f.exportToCSV(result.ID, payload)
	case "json":
		var path string
		path, err = f.exportToJSON(result.ID, payload, result.ExportedAt)
		result.Paths = []string{path}
	default:
		return result, fmt.Errorf("unsupported export format %q", f.Format)
	}
	if err != nil {
		return result, err
	}
	for _, p := range result.Paths {
		if f.Output.GetFileType(p) != "unknown" {
			result.URLs = append(result.URLs, f.Output.GetDownloadURL(result.ID, p))
		}
	}

	logger.Info("payload exported",
		"export_id", result.ID,
		"format", result.Format,
		"records", result.RecordCount,
		"files", len(result.Paths),
	)
	return result, nil
}

// exportToJSON writes the payload body with an export_info header
func (f *FileEndpoint) exportToJSON(id string, payload model.SubmissionPayload, at time.Time) (string, error) {
	path, err := f.Output.GetOutputFilePath(id, "submission.json")
	if err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	exportData := map[string]interface{}{
		"export_info": map[string]interface{}{
			"export_id":    id,
			"exported_at":  at,
			"record_count": payload.RecordCount(),
			"sheet_count":  len(payload.Sheets),
		},
		"data": payload,
	}

	if err := encoder.Encode(exportData); err != nil {
		return "", fmt.Errorf("failed to encode JSON: %w", err)
	}
	return path, nil
}

// exportToCSV writes one file per sheet: the record id column, then the
// sorted field names.
func (f *FileEndpoint) exportToCSV(id string, payload model.SubmissionPayload) ([]string, error) {
	paths := make([]string, 0, len(payload.Sheets))
	for i, sheet := range payload.Sheets {
		name := sheet.SheetID
		if name == "" {
			name = fmt.Sprintf("sheet_%d", i+1)
		}
		path, err := f.Output.GetOutputFilePath(id, name+".csv")
		if err != nil {
			return paths, err
		}
		if err := writeSheetCSV(path, sheet.Records); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	if len(paths) == 0 {
		dir, err := f.Output.CreateExportDir(id)
		if err != nil {
			return nil, err
		}
		paths = append(paths, dir)
	}
	return paths, nil
}

func writeSheetCSV(path string, records []model.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	keys := make(map[string]bool)
	for _, r := range records {
		for k := range r.Fields {
			keys[k] = true
		}
	}
	header := make([]string, 0, len(keys)+1)
	for k := range keys {
		header = append(header, k)
	}
	sort.Strings(header)
	header = append([]string{"_id"}, header...)

	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, r := range records {
		row := make([]string, 0, len(header))
		row = append(row, r.ID)
		for _, k := range header[1:] {
			if v, ok := r.Fields[k]; ok && v != nil {
				row = append(row, fmt.Sprintf("%v", v))
			} else {
				row = append(row, "")
			}
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
