package pipeline

import (
	"context"
	"testing"

	"go-workbook-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = `
"*":
  required_fields: [n]
numbers:
  numeric_fields: [n]
  min_values: {n: 5}
  max_values: {n: 20}
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)
	require.Contains(t, rules, "numbers")
	assert.Equal(t, []string{"n"}, rules["numbers"].NumericFields)
	assert.Equal(t, 5.0, rules["numbers"].MinValues["n"])

	_, err = ParseRules([]byte("numbers: [unclosed"))
	assert.Error(t, err)
}

func TestValidateRecord(t *testing.T) {
	rules := &model.ValidationRules{
		RequiredFields: []string{"id"},
		NumericFields:  []string{"amount"},
		MinValues:      map[string]float64{"amount": 0},
		MaxValues:      map[string]float64{"amount": 100},
	}

	assert.Empty(t, ValidateRecord(model.GenericRecord{"id": "x", "amount": 10}, rules))
	assert.Empty(t, ValidateRecord(model.GenericRecord{}, nil))

	msgs := ValidateRecord(model.GenericRecord{"amount": "ten"}, rules)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "missing required field: id")
	assert.Contains(t, msgs[1], "must be numeric")

	msgs = ValidateRecord(model.GenericRecord{"id": "x", "amount": 101}, rules)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "above maximum")
}

func TestValidatorMarksEveryRecordProcessed(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 30, func(int) bool { return false })
	src.sheets[0].Slug = "numbers"

	rules, err := ParseRules([]byte(testRules))
	require.NoError(t, err)

	v := &Validator{Sheets: src, Records: src, Updater: src, Rules: rules, Workers: 4, PageSize: 7}
	summary, err := v.ValidateWorkbook(context.Background(), "wb1")
	require.NoError(t, err)

	// n runs 0..29; 5..20 pass
	assert.Equal(t, 30, summary.Records)
	assert.Equal(t, 16, summary.Valid)
	assert.Equal(t, 14, summary.Invalid)

	for _, r := range src.records["A"] {
		assert.True(t, r.Metadata.Processed, r.ID)
		require.NotNil(t, r.Metadata.Valid)
	}
	assert.False(t, *src.records["A"][0].Metadata.Valid)
	assert.True(t, *src.records["A"][5].Metadata.Valid)

	res, err := newTestChecker(src, 10, 2).Check(context.Background(), "wb1")
	require.NoError(t, err)
	assert.True(t, res.Ready())
	assert.Equal(t, 14, Summarize(res.Payload).Invalid)
}

func TestValidatorOnCommitOnlyTouchesCommittedSheet(t *testing.T) {
	src := newMemSource()
	src.addSheet("A", 5, func(int) bool { return false })
	src.addSheet("B", 5, func(int) bool { return false })

	v := &Validator{Sheets: src, Records: src, Updater: src}
	err := v.OnCommit(context.Background(), model.Event{
		Topic:   model.TopicCommitCreated,
		Context: model.EventContext{WorkbookID: "wb1", SheetID: "B"},
	})
	require.NoError(t, err)

	assert.False(t, src.records["A"][0].Metadata.Processed)
	assert.True(t, src.records["B"][0].Metadata.Processed)

	err = v.OnCommit(context.Background(), model.Event{Topic: model.TopicCommitCreated})
	assert.Error(t, err)
}
