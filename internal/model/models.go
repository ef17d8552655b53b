package model

// GenericRecord is a schema-agnostic map of field name to value
type GenericRecord map[string]interface{}

// RecordMetadata carries the state written by the validation stage.
// Processed flips false -> true once field-level validation has run.
type RecordMetadata struct {
	Processed bool     `json:"processed"`
	Valid     *bool    `json:"valid,omitempty"`
	Messages  []string `json:"messages,omitempty"`
}

// Record represents a single imported row
type Record struct {
	ID       string         `json:"id"`
	Fields   GenericRecord  `json:"fields"`
	Metadata RecordMetadata `json:"metadata"`
}

// Sheet is a named collection of records within a workbook
type Sheet struct {
	ID          string `json:"id"`
	WorkbookID  string `json:"workbookId"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	RecordCount int    `json:"recordCount"` // exact total, used for page math
}

// Workbook is the unit of submission
type Workbook struct {
	ID      string  `json:"id"`
	SpaceID string  `json:"spaceId"`
	Name    string  `json:"name"`
	Sheets  []Sheet `json:"sheets"`
}

// Space groups workbooks and holds caller metadata (e.g. the customer folder)
type Space struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Page is a transient window of up to pageSize records, numbered from 1
type Page struct {
	SheetID string   `json:"sheetId"`
	Number  int      `json:"number"`
	Records []Record `json:"records"`
}

// PageCount returns ceil(total / pageSize); zero records means zero pages.
func PageCount(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
