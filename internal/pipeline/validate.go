package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/internal/pkg/logger"
	"go-workbook-pipeline/pkg/utils"

	"gopkg.in/yaml.v3"
)

// RecordUpdater writes back the metadata of validated records.
type RecordUpdater interface {
	UpdateRecordMetadata(ctx context.Context, records []model.Record) error
}

// ValidationSummary counts what one validation pass did
type ValidationSummary struct {
	WorkbookID string `json:"workbookId"`
	Sheets     int    `json:"sheets"`
	Records    int    `json:"records"`
	Valid      int    `json:"valid"`
	Invalid    int    `json:"invalid"`
}

// Validator is the record hook: it applies the sheet's rules to every record
// and marks it processed. Invalid records are processed too.
type Validator struct {
	Sheets   SheetDirectory
	Records  RecordStore
	Updater  RecordUpdater
	Rules    model.RuleSet
	Workers  int
	PageSize int
}

// OnCommit validates the committed sheet, or the whole workbook when the
// event names no sheet.
func (v *Validator) OnCommit(ctx context.Context, evt model.Event) error {
	if evt.Context.WorkbookID == "" {
		return fmt.Errorf("commit event %s has no workbook", evt.ID)
	}
	_, err := v.validate(ctx, evt.Context.WorkbookID, evt.Context.SheetID)
	return err
}

// ValidateWorkbook validates every sheet of a workbook.
func (v *Validator) ValidateWorkbook(ctx context.Context, workbookID string) (ValidationSummary, error) {
	return v.validate(ctx, workbookID, "")
}

func (v *Validator) validate(ctx context.Context, workbookID, onlySheet string) (ValidationSummary, error) {
	summary := ValidationSummary{WorkbookID: workbookID}

	sheets, err := v.Sheets.ListSheets(ctx, workbookID)
	if err != nil {
		return summary, fetchError("list sheets", workbookID, err)
	}

	for _, sheet := range sheets {
		if onlySheet != "" && sheet.ID != onlySheet {
			continue
		}
		valid, invalid, err := v.validateSheet(ctx, sheet)
		summary.Valid += valid
		summary.Invalid += invalid
		if err != nil {
			return summary, err
		}
		summary.Sheets++
	}
	summary.Records = summary.Valid + summary.Invalid

	logger.Info("validation summary",
		"workbook_id", workbookID,
		"sheets", summary.Sheets,
		"valid", summary.Valid,
		"invalid", summary.Invalid,
	)
	return summary, nil
}

func (v *Validator) validateSheet(ctx context.Context, sheet model.Sheet) (int, int, error) {
	pageSize := v.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	rules := v.Rules.For(sheet)

	valid, invalid := 0, 0
	pages := model.PageCount(sheet.RecordCount, pageSize)
	for p := 1; p <= pages; p++ {
		batch, err := v.Records.GetRecordPage(ctx, sheet.ID, p, pageSize)
		if err != nil {
			return valid, invalid, fetchError("get record page", fmt.Sprintf("%s#%d", sheet.ID, p), err)
		}

		pv, pi := v.validatePage(ctx, batch, rules)
		valid += pv
		invalid += pi
		if err := ctx.Err(); err != nil {
			return valid, invalid, err
		}

		if err := v.Updater.UpdateRecordMetadata(ctx, batch); err != nil {
			return valid, invalid, fmt.Errorf("failed to update records of sheet %s: %w", sheet.ID, err)
		}
	}
	return valid, invalid, nil
}

// validatePage validates records in place using a pool of workers.
func (v *Validator) validatePage(ctx context.Context, batch []model.Record, rules *model.ValidationRules) (int, int) {
	workerCount := v.Workers
	if workerCount <= 0 {
		workerCount = 3
	}

	in := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	validCount, invalidCount := 0, 0

	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			workerValid, workerInvalid := 0, 0
			for idx := range in {
				rec := &batch[idx]
				msgs := ValidateRecord(rec.Fields, rules)
				ok := len(msgs) == 0
				rec.Metadata = model.RecordMetadata{Processed: true, Valid: &ok, Messages: msgs}
				if ok {
					workerValid++
				} else {
					workerInvalid++
				}
			}
			mu.Lock()
			validCount += workerValid
			invalidCount += workerInvalid
			mu.Unlock()
		}()
	}

feed:
	for i := range batch {
		select {
		case <-ctx.Done():
			break feed
		case in <- i:
		}
	}
	close(in)
	wg.Wait()

	return validCount, invalidCount
}

// ValidateRecord applies rules to one record and returns the failures.
// A nil rule set accepts everything.
func ValidateRecord(rec model.GenericRecord, rules *model.ValidationRules) []string {
	if rules == nil {
		return nil
	}

	var msgs []string

	for _, field := range rules.RequiredFields {
		if val, ok := rec[field]; !ok || val == nil || val == "" {
			msgs = append(msgs, fmt.Sprintf("missing required field: %s", field))
		}
	}

	for _, field := range rules.NumericFields {
		val, ok := rec[field]
		if !ok || val == nil {
			continue
		}
		if _, ok := utils.ToFloat(val); !ok {
			msgs = append(msgs, fmt.Sprintf("field %s must be numeric, got %T", field, val))
		}
	}

	for field, min := range rules.MinValues {
		if val, ok := rec[field]; ok && val != nil {
			if utils.Numeric(val) < min {
				msgs = append(msgs, fmt.Sprintf("field %s below minimum: got %v, want >= %v", field, val, min))
			}
		}
	}

	for field, max := range rules.MaxValues {
		if val, ok := rec[field]; ok && val != nil {
			if utils.Numeric(val) > max {
				msgs = append(msgs, fmt.Sprintf("field %s above maximum: got %v, want <= %v", field, val, max))
			}
		}
	}

	return msgs
}

// LoadRules reads a YAML rule file keyed by sheet slug:
//
//	benefit-elections:
//	  required_fields: [employee_id]
//	  numeric_fields: [amount]
//	  min_values: {amount: 0}
func LoadRules(path string) (model.RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule set
func ParseRules(data []byte) (model.RuleSet, error) {
	rules := model.RuleSet{}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	return rules, nil
}
