package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"go-workbook-pipeline/internal/model"
	"go-workbook-pipeline/pkg/utils"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are not csv, json or xlsx.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// Table is one parsed sheet of an uploaded file
type Table struct {
	Name    string
	Headers []string
	Rows    []model.GenericRecord
}

// ParseFile reads an uploaded file into tables, one per sheet. CSV and JSON
// files produce a single table named after the file.
func ParseFile(fileName string, r io.Reader) ([]Table, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".csv":
		t, err := parseCSV(base, payload)
		if err != nil {
			return nil, err
		}
		return []Table{t}, nil
	case ".json":
		t, err := parseJSON(base, payload)
		if err != nil {
			return nil, err
		}
		return []Table{t}, nil
	case ".xlsx":
		return parseExcel(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(name string, payload []byte) (Table, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(name, rows)
}

// parseExcel reads every sheet of the workbook; empty sheets are skipped.
func parseExcel(payload []byte) ([]Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, errors.New("excel file has no sheets")
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read rows from sheet %s: %w", name, err)
		}
		if len(rows) == 0 {
			continue
		}
		t, err := normalizeTable(name, rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		tables = append(tables, t)
	}
	if len(tables) == 0 {
		return nil, errors.New("no rows found in file")
	}
	return tables, nil
}

// parseJSON accepts an array of objects or a single object.
func parseJSON(name string, payload []byte) (Table, error) {
	var raw interface{}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return Table{}, fmt.Errorf("failed to decode JSON: %w", err)
	}

	var items []map[string]interface{}
	switch data := raw.(type) {
	case []interface{}:
		for i, item := range data {
			m, ok := item.(map[string]interface{})
			if !ok {
				return Table{}, fmt.Errorf("element %d is not an object", i)
			}
			items = append(items, m)
		}
	case map[string]interface{}:
		items = append(items, data)
	default:
		return Table{}, errors.New("unexpected JSON structure")
	}

	seen := make(map[string]bool)
	var headers []string
	rows := make([]model.GenericRecord, 0, len(items))
	for _, m := range items {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
		rows = append(rows, model.GenericRecord(m))
	}
	sort.Strings(headers)
	return Table{Name: name, Headers: headers, Rows: rows}, nil
}

// normalizeTable takes the first non-empty row as the header and converts the
// remaining non-empty rows into records.
func normalizeTable(name string, records [][]string) (Table, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return Table{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	rows := make([]model.GenericRecord, 0, len(dataRows))
	for _, row := range dataRows {
		row = padRow(row, len(headers))
		rec := make(model.GenericRecord, len(headers))
		for i, h := range headers {
			if strings.TrimSpace(row[i]) == "" {
				rec[h] = nil
				continue
			}
			rec[h] = utils.ParseValue(row[i])
		}
		rows = append(rows, rec)
	}
	return Table{Name: name, Headers: headers, Rows: rows}, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, `"`, "")
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1
		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// slugify lower-cases a sheet name into a rule-set key
func slugify(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	var b strings.Builder
	lastDash := false
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
