package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Credentials are the caller identifiers forwarded to the downstream endpoint
type Credentials struct {
	CustomerID string `json:"customerId"`
	APIKey     string `json:"apiKey"`
	APISecret  string `json:"apiSecret"`
}

// SheetRecords holds the processed records of one sheet in page order
type SheetRecords struct {
	SheetID string   `json:"sheetId"`
	Name    string   `json:"name"`
	Records []Record `json:"records"`
}

// SubmissionPayload is the aggregated body handed to the submission endpoint.
// Sheets keeps traversal order; it is serialized as an object keyed by sheet ID.
type SubmissionPayload struct {
	Metadata    map[string]interface{} `json:"metadata"`
	Credentials Credentials            `json:"credentials"`
	Sheets      []SheetRecords         `json:"-"`
}

// RecordCount returns the number of records across all sheets.
func (p SubmissionPayload) RecordCount() int {
	n := 0
	for _, s := range p.Sheets {
		n += len(s.Records)
	}
	return n
}

// RecordsBySheet returns the records keyed by sheet ID.
func (p SubmissionPayload) RecordsBySheet() map[string][]Record {
	out := make(map[string][]Record, len(p.Sheets))
	for _, s := range p.Sheets {
		out[s.SheetID] = s.Records
	}
	return out
}

// MarshalJSON writes {metadata, credentials, recordsBySheet} with the sheet
// keys in traversal order.
func (p SubmissionPayload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	credJSON, err := json.Marshal(p.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	buf.WriteString(`{"metadata":`)
	buf.Write(metaJSON)
	buf.WriteString(`,"credentials":`)
	buf.Write(credJSON)
	buf.WriteString(`,"recordsBySheet":{`)
	for i, s := range p.Sheets {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(s.SheetID)
		records := s.Records
		if records == nil {
			records = []Record{}
		}
		recJSON, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("failed to encode records of sheet %s: %w", s.SheetID, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(recJSON)
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the wire form back. Sheet order follows the keys as
// they appear in the document.
func (p *SubmissionPayload) UnmarshalJSON(data []byte) error {
	var wire struct {
		Metadata       map[string]interface{} `json:"metadata"`
		Credentials    Credentials            `json:"credentials"`
		RecordsBySheet json.RawMessage        `json:"recordsBySheet"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	p.Metadata = wire.Metadata
	p.Credentials = wire.Credentials
	p.Sheets = nil
	if len(wire.RecordsBySheet) == 0 || string(wire.RecordsBySheet) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(wire.RecordsBySheet))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("recordsBySheet must be an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		sheetID, _ := tok.(string)
		var records []Record
		if err := dec.Decode(&records); err != nil {
			return fmt.Errorf("failed to decode records of sheet %s: %w", sheetID, err)
		}
		p.Sheets = append(p.Sheets, SheetRecords{SheetID: sheetID, Records: records})
	}
	return nil
}
