package pipeline

import (
	"go-workbook-pipeline/internal/model"
)

// Aggregate folds the scanned pages into one payload: sheets in traversal
// order, records in page order. Sheets whose scan was not confirmed ready are
// left out. Record contents are not touched.
func Aggregate(scans []SheetScan) model.SubmissionPayload {
	payload := model.SubmissionPayload{
		Sheets: make([]model.SheetRecords, 0, len(scans)),
	}
	for _, scan := range scans {
		if !scan.Ready {
			continue
		}
		payload.Sheets = append(payload.Sheets, foldSheet(scan))
	}
	return payload
}

func foldSheet(scan SheetScan) model.SheetRecords {
	total := 0
	for _, page := range scan.Pages {
		total += len(page)
	}

	out := model.SheetRecords{
		SheetID: scan.Sheet.ID,
		Name:    scan.Sheet.Name,
		Records: make([]model.Record, 0, total),
	}
	for _, page := range scan.Pages {
		out.Records = append(out.Records, page...)
	}
	return out
}

// SheetSummary counts the records of one sheet in a payload
type SheetSummary struct {
	SheetID string `json:"sheetId"`
	Name    string `json:"name"`
	Records int    `json:"records"`
	Invalid int    `json:"invalid"`
}

// PayloadSummary represents the shape of an aggregated payload
type PayloadSummary struct {
	Sheets  []SheetSummary `json:"sheets"`
	Records int            `json:"records"`
	Invalid int            `json:"invalid"`
}

// Summarize counts records and records flagged invalid by the validation stage.
func Summarize(payload model.SubmissionPayload) PayloadSummary {
	summary := PayloadSummary{Sheets: make([]SheetSummary, 0, len(payload.Sheets))}
	for _, s := range payload.Sheets {
		ss := SheetSummary{SheetID: s.SheetID, Name: s.Name, Records: len(s.Records)}
		for _, r := range s.Records {
			if r.Metadata.Valid != nil && !*r.Metadata.Valid {
				ss.Invalid++
			}
		}
		summary.Records += ss.Records
		summary.Invalid += ss.Invalid
		summary.Sheets = append(summary.Sheets, ss)
	}
	return summary
}
