package model

// ValidationRules defines validation requirements for a sheet
type ValidationRules struct {
	RequiredFields []string           `json:"requiredFields" yaml:"required_fields"` // fields that must be present
	NumericFields  []string           `json:"numericFields" yaml:"numeric_fields"`   // fields that must be numeric
	MinValues      map[string]float64 `json:"minValues" yaml:"min_values"`           // min allowed numeric values
	MaxValues      map[string]float64 `json:"maxValues" yaml:"max_values"`           // optional max limits
}

// RuleSet maps a sheet slug (or name) to its rules. The "*" entry applies to
// sheets without their own rules.
type RuleSet map[string]*ValidationRules

// For returns the rules for a sheet, falling back to "*".
func (rs RuleSet) For(sheet Sheet) *ValidationRules {
	if rs == nil {
		return nil
	}
	if r, ok := rs[sheet.Slug]; ok && sheet.Slug != "" {
		return r
	}
	if r, ok := rs[sheet.Name]; ok {
		return r
	}
	return rs["*"]
}

// Event topics handled by the listener
const (
	TopicCommitCreated = "commit:created"
	TopicJobReady      = "job:ready"
	TopicJobFailed     = "job:failed"
)

// EventContext identifies the resources an event refers to
type EventContext struct {
	SpaceID       string `json:"spaceId,omitempty"`
	EnvironmentID string `json:"environmentId,omitempty"`
	WorkbookID    string `json:"workbookId,omitempty"`
	SheetID       string `json:"sheetId,omitempty"`
	JobID         string `json:"jobId,omitempty"`
}

// Event is a workflow notification (e.g. a commit or a job becoming ready)
type Event struct {
	ID      string       `json:"id,omitempty"`
	Topic   string       `json:"topic"`
	Job     string       `json:"job,omitempty"` // job operation for job:* topics
	Context EventContext `json:"context"`
}
