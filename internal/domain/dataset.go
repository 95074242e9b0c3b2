package domain

import "time"

// Names of the period-stamp columns injected into every transformed row.
const (
	StartDateColumn = "start_date"
	EndDateColumn   = "end_date"
)

// DatasetEntry is one row of the manifest: a single period of a dataset family.
type DatasetEntry struct {
	PeriodKey        string    `json:"periodKey"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	FieldReferenceID string    `json:"fieldReferenceId"`
	SourcePath       string    `json:"sourcePath"`
	SourceType       string    `json:"sourceType,omitempty"` // empty means csv_file
}

// TransformedRow is one conformant output row, stamped with its period.
// Columns is shared by every row of the same batch and must not be mutated.
type TransformedRow struct {
	PeriodKey string
	Columns   []Column
	Values    []any
}

// PeriodBatch is the complete row set of one period, ready to swap into a store.
type PeriodBatch struct {
	PeriodKey string
	Rows      [][]any
}
