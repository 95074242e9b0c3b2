package domain

import (
	"context"
	"time"
)

// ConsolidatedStore holds the accumulated output of every period of a family.
// Implementations must apply ReplacePeriods as a single swap: either every
// batch lands or none does.
type ConsolidatedStore interface {
	// Columns returns the stored schema of family, or nil if the family has never been loaded.
	Columns(ctx context.Context, family string) ([]Column, error)

	// ReplacePeriods drops every stored row of each batch's period and writes the batch rows.
	// It returns the number of rows removed.
	ReplacePeriods(ctx context.Context, family string, columns []Column, batches []PeriodBatch) (int, error)

	// ListPeriods returns the stored period keys of family in ascending order.
	ListPeriods(ctx context.Context, family string) ([]string, error)

	// ReadPeriod returns the stored rows of one period in load order.
	ReadPeriod(ctx context.Context, family, periodKey string) ([][]any, error)

	Close() error
}

// Run statuses.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial" // finished, some rows failed
	RunStatusError   = "error"
)

// Run triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerWatch    = "file_watch"
)

// RunLog is a historical record of one pipeline run.
type RunLog struct {
	ID          string    `json:"id"`
	Family      string    `json:"family"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Status      string    `json:"status"`
	Entries     int       `json:"entries"`
	RowsRead    int       `json:"rowsRead"`
	RowsWritten int       `json:"rowsWritten"`
	RowFailures int       `json:"rowFailures"`
	Error       string    `json:"error,omitempty"`
}

// RunLogStore persists run history.
type RunLogStore interface {
	CreateRunLog(log *RunLog) error
	ListRunLogs(family string, limit int) ([]RunLog, error)
}
