package etl

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"periodetl/internal/domain"
	"periodetl/internal/fieldref"
	"periodetl/internal/metrics"
)

// ── Engine ─────────────────────────────────────────────────
// Orchestrates one dataset entry: resolve field reference → source.Read →
// Transform. Entries are processed one at a time by the caller.

// Engine transforms dataset entries of one family.
type Engine struct {
	Family     string
	SourceRoot string // relative source paths resolve under this directory
	Refs       fieldref.Set
	Options    Options
	Log        zerolog.Logger
	Metrics    *metrics.Metrics
}

// EntryResult is the outcome of transforming one dataset entry.
type EntryResult struct {
	Entry    domain.DatasetEntry
	Columns  []domain.Column
	Rows     []domain.TransformedRow
	Report   *Report
	Duration time.Duration
}

// TransformEntry reads entry's raw source and applies its field reference.
// Row failures land in the report; the error is reserved for failures that
// prevent the entry from being processed at all.
func (e *Engine) TransformEntry(ctx context.Context, entry domain.DatasetEntry) (*EntryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	log := e.Log.With().Str("family", e.Family).Str("period", entry.PeriodKey).Logger()

	ref, err := e.Refs.Get(entry.FieldReferenceID)
	if err != nil {
		return nil, err
	}

	source, err := GetSource(entry.SourceType)
	if err != nil {
		return nil, err
	}

	path := e.resolve(entry.SourcePath)
	log.Info().Str("source", path).Msg("opening source")
	raw, err := source.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	rows, report, err := Transform(raw, entry, ref, e.Options)
	if err != nil {
		return nil, fmt.Errorf("period %s: %w", entry.PeriodKey, err)
	}

	for _, m := range report.Missing {
		log.Warn().Str("column", m.Column).Strs("keys", m.Keys).Msg("column missing from source")
	}
	for _, f := range report.Failures {
		log.Debug().Int("row", f.RowIndex).Str("kind", string(f.Kind)).Msg(f.Detail)
	}

	res := &EntryResult{
		Entry:    entry,
		Columns:  ref.OutSchema(),
		Rows:     rows,
		Report:   report,
		Duration: time.Since(start),
	}
	e.Metrics.RecordTransform(e.Family, report.RowsRead, report.RowsWritten, report.RowsDropped, report.FailuresByKind())

	ev := log.Info()
	if !report.OK() {
		ev = log.Warn()
	}
	ev.Int("rows_read", report.RowsRead).
		Int("rows_written", report.RowsWritten).
		Int("rows_dropped", report.RowsDropped).
		Int("row_failures", len(report.Failures)).
		Dur("duration", res.Duration).
		Msg("entry transformed")
	return res, nil
}

func (e *Engine) resolve(path string) string {
	if filepath.IsAbs(path) || e.SourceRoot == "" {
		return path
	}
	return filepath.Join(e.SourceRoot, path)
}
