package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize    = 1000
	DefaultConcurrency = 4
)

// ReadinessStatus tags the verdict of a readiness check
type ReadinessStatus string

const (
	StatusReady    ReadinessStatus = "ready"
	StatusNotReady ReadinessStatus = "not_ready"
)

// Reasons attached to a not-ready verdict
const (
	ReasonUnprocessed = "unprocessed_record"
	ReasonEmpty       = "empty_workbook"
)

// PendingRecord points at an unprocessed record found during a scan
type PendingRecord struct {
	SheetID  string `json:"sheetId"`
	Page     int    `json:"page"`
	RecordID string `json:"recordId"`
}

// ScanStats summarizes one readiness scan
type ScanStats struct {
	Sheets   int           `json:"sheets"`
	Pages    int           `json:"pages"`
	Records  int           `json:"records"`
	Duration time.Duration `json:"duration"`
}

// Readiness is the result of a check: Ready with the aggregated payload, or
// NotReady with the reason. Payload is only populated when Ready.
type Readiness struct {
	Status  ReadinessStatus         `json:"status"`
	Reason  string                  `json:"reason,omitempty"`
	Pending *PendingRecord          `json:"pending,omitempty"`
	Payload model.SubmissionPayload `json:"-"`
	Stats   ScanStats               `json:"stats"`
}

// Ready reports whether every record was processed at scan time.
func (r Readiness) Ready() bool {
	return r.Status == StatusReady
}

// SheetScan holds the pages fetched for one sheet, one slot per page number.
type SheetScan struct {
	Sheet model.Sheet
	Pages [][]model.Record
	Ready bool
}

// Checker decides whether a whole workbook has been processed.
//
// The verdict is a snapshot: the validation stage may still change records
// after the pages were read. There is no cross-page consistency guarantee.
type Checker struct {
	Sheets      SheetDirectory
	Records     RecordStore
	PageSize    int
	Concurrency int
	// AllowEmpty reports workbooks without records as ready (empty payload).
	AllowEmpty bool
}

// NewChecker returns a Checker with the default page size and concurrency.
func NewChecker(sheets SheetDirectory, records RecordStore) *Checker {
	return &Checker{
		Sheets:      sheets,
		Records:     records,
		PageSize:    DefaultPageSize,
		Concurrency: DefaultConcurrency,
		AllowEmpty:  true,
	}
}

func (c *Checker) pageSize() int {
	if c.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

func (c *Checker) concurrency() int {
	if c.Concurrency <= 0 {
		return 1
	}
	return c.Concurrency
}

// Check lists the sheets of the workbook and scans them.
func (c *Checker) Check(ctx context.Context, workbookID string) (Readiness, error) {
	sheets, err := c.Sheets.ListSheets(ctx, workbookID)
	if err != nil {
		return Readiness{}, fetchError("list sheets", workbookID, err)
	}
	return c.CheckSheets(ctx, sheets)
}

var errStopScan = errors.New("unprocessed record found")

// CheckSheets fetches every page of every sheet and stops at the first page
// holding a record that is not processed. Pages may be fetched concurrently;
// the verdict is not ready if any fetched page held an unprocessed record.
func (c *Checker) CheckSheets(ctx context.Context, sheets []model.Sheet) (Readiness, error) {
	start := time.Now()
	pageSize := c.pageSize()

	scans := make([]SheetScan, len(sheets))
	totalPages := 0
	for i, sheet := range sheets {
		n := model.PageCount(sheet.RecordCount, pageSize)
		scans[i] = SheetScan{Sheet: sheet, Pages: make([][]model.Record, n)}
		totalPages += n
	}

	result := Readiness{Stats: ScanStats{Sheets: len(sheets)}}

	if totalPages == 0 {
		result.Stats.Duration = time.Since(start)
		if !c.AllowEmpty {
			result.Status = StatusNotReady
			result.Reason = ReasonEmpty
			logger.Info("workbook has no records; empty submissions are disabled", "sheets", len(sheets))
			return result, nil
		}
		for i := range scans {
			scans[i].Ready = true
		}
		result.Status = StatusReady
		result.Payload = Aggregate(scans)
		logger.Info("workbook has no records; reporting ready with an empty payload", "sheets", len(sheets))
		return result, nil
	}

	var (
		mu        sync.Mutex
		pending   *PendingRecord
		pendingAt [2]int
		pages     int64
		records   int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency())

schedule:
	for si := range scans {
		for p := 1; p <= len(scans[si].Pages); p++ {
			if gctx.Err() != nil {
				break schedule
			}
			g.Go(func() error {
				sheetID := scans[si].Sheet.ID
				batch, err := c.Records.GetRecordPage(gctx, sheetID, p, pageSize)
				if err != nil {
					return fetchError("get record page", fmt.Sprintf("%s#%d", sheetID, p), err)
				}
				atomic.AddInt64(&pages, 1)
				atomic.AddInt64(&records, int64(len(batch)))

				// each goroutine owns exactly one slot
				scans[si].Pages[p-1] = batch

				if id, found := firstUnprocessed(batch); found {
					mu.Lock()
					if pending == nil || si < pendingAt[0] || (si == pendingAt[0] && p < pendingAt[1]) {
						pending = &PendingRecord{SheetID: sheetID, Page: p, RecordID: id}
						pendingAt = [2]int{si, p}
					}
					mu.Unlock()
					return errStopScan
				}
				return nil
			})
		}
	}

	err := g.Wait()
	result.Stats.Pages = int(atomic.LoadInt64(&pages))
	result.Stats.Records = int(atomic.LoadInt64(&records))
	result.Stats.Duration = time.Since(start)

	if pending != nil {
		result.Status = StatusNotReady
		result.Reason = ReasonUnprocessed
		result.Pending = pending
		logger.Info("workbook not ready",
			"sheet_id", pending.SheetID,
			"page", pending.Page,
			"record_id", pending.RecordID,
			"pages_fetched", result.Stats.Pages,
		)
		return result, nil
	}
	if err != nil {
		return Readiness{}, err
	}

	for i := range scans {
		scans[i].Ready = true
	}
	result.Status = StatusReady
	result.Payload = Aggregate(scans)
	logger.Info("workbook ready",
		"sheets", result.Stats.Sheets,
		"pages", result.Stats.Pages,
		"records", result.Stats.Records,
		"duration_ms", result.Stats.Duration.Milliseconds(),
	)
	return result, nil
}

func firstUnprocessed(records []model.Record) (string, bool) {
	for _, r := range records {
		if !r.Metadata.Processed {
			return r.ID, true
		}
	}
	return "", false
}
