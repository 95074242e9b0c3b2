package etl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"periodetl/internal/domain"
	"periodetl/internal/metrics"
)

// ── Destination ────────────────────────────────────────────
// The Loader merges transformed rows into a ConsolidatedStore, one whole
// period at a time. Every period present in the batch replaces whatever the
// store held for it; periods absent from the batch are left alone.

// LoadResult is the outcome of one Load call.
type LoadResult struct {
	Family      string   `json:"family"`
	Periods     []string `json:"periods"`
	RowsWritten int      `json:"rowsWritten"`
	RowsRemoved int      `json:"rowsRemoved"`
}

// Loader implements replace-by-period loading.
type Loader struct {
	Store   domain.ConsolidatedStore
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

// Load groups rows by period and swaps each period into the store. It refuses
// with *LoadError, before writing anything, when the rows disagree on their
// schema or when their schema differs from the one already stored.
func (l *Loader) Load(ctx context.Context, family string, rows []domain.TransformedRow) (*LoadResult, error) {
	result := &LoadResult{Family: family}
	if len(rows) == 0 {
		return result, nil
	}

	columns := rows[0].Columns
	for i, r := range rows {
		if r.PeriodKey == "" {
			return nil, &LoadError{Family: family, Reason: fmt.Sprintf("row %d has no period key", i)}
		}
		if !domain.SameColumns(r.Columns, columns) {
			return nil, &LoadError{Family: family, Reason: fmt.Sprintf("period %s: %s", r.PeriodKey, describeDrift(columns, r.Columns))}
		}
		if len(r.Values) != len(columns) {
			return nil, &LoadError{Family: family, Reason: fmt.Sprintf("row %d has %d values for %d columns", i, len(r.Values), len(columns))}
		}
	}

	stored, err := l.Store.Columns(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("read stored schema: %w", err)
	}
	if stored != nil && !domain.SameColumns(stored, columns) {
		return nil, &LoadError{Family: family, Reason: "schema drift: " + describeDrift(stored, columns)}
	}

	batches := GroupByPeriod(rows)
	start := time.Now()
	removed, err := l.Store.ReplacePeriods(ctx, family, columns, batches)
	if err != nil {
		return nil, fmt.Errorf("replace periods: %w", err)
	}

	for _, b := range batches {
		result.Periods = append(result.Periods, b.PeriodKey)
	}
	result.RowsWritten = len(rows)
	result.RowsRemoved = removed

	l.Metrics.RecordLoad(family, result.RowsWritten, len(batches))
	l.Log.Info().
		Str("family", family).
		Strs("periods", result.Periods).
		Int("rows_written", result.RowsWritten).
		Int("rows_removed", removed).
		Dur("duration", time.Since(start)).
		Msg("periods replaced")
	return result, nil
}

// GroupByPeriod splits rows into per-period batches, keeping the order in
// which periods first appear and the order of rows within each period.
func GroupByPeriod(rows []domain.TransformedRow) []domain.PeriodBatch {
	index := make(map[string]int)
	var batches []domain.PeriodBatch
	for _, r := range rows {
		i, ok := index[r.PeriodKey]
		if !ok {
			i = len(batches)
			index[r.PeriodKey] = i
			batches = append(batches, domain.PeriodBatch{PeriodKey: r.PeriodKey})
		}
		batches[i].Rows = append(batches[i].Rows, r.Values)
	}
	return batches
}

// describeDrift explains how got differs from want.
func describeDrift(want, got []domain.Column) string {
	wantSet := make(map[domain.Column]bool, len(want))
	for _, c := range want {
		wantSet[c] = true
	}
	gotSet := make(map[domain.Column]bool, len(got))
	for _, c := range got {
		gotSet[c] = true
	}

	var added, removed []string
	for _, c := range got {
		if !wantSet[c] {
			added = append(added, columnString(c))
		}
	}
	for _, c := range want {
		if !gotSet[c] {
			removed = append(removed, columnString(c))
		}
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, "unexpected columns "+strings.Join(added, ", "))
	}
	if len(removed) > 0 {
		parts = append(parts, "missing columns "+strings.Join(removed, ", "))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("column order [%s], stored order [%s]",
			strings.Join(domain.ColumnNames(got), ", "), strings.Join(domain.ColumnNames(want), ", ")))
	}
	return strings.Join(parts, "; ")
}

func columnString(c domain.Column) string {
	if c.Type == domain.ColTypeUntyped {
		return c.Name
	}
	return c.Name + ":" + string(c.Type)
}
