package etl

import (
	"fmt"
	"sort"
	"strings"

	"periodetl/internal/coerce"
	"periodetl/internal/domain"
	"periodetl/internal/fieldref"
)

// ── Transformer ────────────────────────────────────────────
// Each field reference rule is one Transformer; BuildChain lines them up in
// the fixed order the rules must run in. A transformer returns the
// (possibly modified) record, whether to keep it, and a row-scoped error.

// Transformer processes a single record.
type Transformer interface {
	Transform(Record) (Record, bool, error)
}

// ── Built-in Transforms ────────────────────────────────────

// TypeCastTransform coerces the named columns to their declared types.
// Columns absent from the record are skipped.
type TypeCastTransform struct {
	Types map[string]domain.ColumnType
}

func (t *TypeCastTransform) Transform(r Record) (Record, bool, error) {
	for _, col := range sortedKeys(t.Types) {
		v, ok := r.Data[col]
		if !ok {
			continue
		}
		typ := t.Types[col]
		out, err := coerce.To(v, typ)
		if err != nil {
			return r, false, &CoercionError{Column: col, RawValue: coerce.Format(v), TargetType: typ, Err: err}
		}
		r.Data[col] = out
	}
	return r, true, nil
}

// RenameTransform maps raw names to output names. Unmapped columns are dropped.
type RenameTransform struct {
	Mapping map[string]string // raw name → output name
}

func (t *RenameTransform) Transform(r Record) (Record, bool, error) {
	renamed := make(map[string]any, len(t.Mapping))
	for old, name := range t.Mapping {
		if v, ok := r.Data[old]; ok {
			renamed[name] = v
		}
	}
	r.Data = renamed
	return r, true, nil
}

// StampTransform injects the period-stamp columns, overriding existing values.
type StampTransform struct {
	Start coerce.Date
	End   coerce.Date
}

func (t *StampTransform) Transform(r Record) (Record, bool, error) {
	r.Data[domain.StartDateColumn] = t.Start
	r.Data[domain.EndDateColumn] = t.End
	return r, true, nil
}

// RecodeTransform substitutes values through per-column lookup tables.
// Tables must cover every observed value; an empty table is a no-op and
// nulls are never recoded.
type RecodeTransform struct {
	Tables map[string]map[string]any
}

func (t *RecodeTransform) Transform(r Record) (Record, bool, error) {
	for _, col := range sortedKeys(t.Tables) {
		table := t.Tables[col]
		if len(table) == 0 {
			continue
		}
		v, ok := r.Data[col]
		if !ok || v == nil {
			continue
		}
		key := coerce.Format(v)
		to, ok := table[key]
		if !ok {
			return r, false, &RecodeError{Column: col, Value: key}
		}
		r.Data[col] = to
	}
	return r, true, nil
}

// PadTransform left-pads values with zeros to a fixed width, keeping a
// leading sign in front of the padding.
type PadTransform struct {
	Widths map[string]int
}

func (t *PadTransform) Transform(r Record) (Record, bool, error) {
	for col, width := range t.Widths {
		v, ok := r.Data[col]
		if !ok || v == nil {
			continue
		}
		r.Data[col] = zeroPad(coerce.Format(v), width)
	}
	return r, true, nil
}

func zeroPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	return sign + strings.Repeat("0", width-len(s)-len(sign)) + s
}

// SuppressTransform nulls the named columns without removing them.
type SuppressTransform struct {
	Columns map[string]bool
}

func (t *SuppressTransform) Transform(r Record) (Record, bool, error) {
	for col := range t.Columns {
		if _, ok := r.Data[col]; ok {
			r.Data[col] = nil
		}
	}
	return r, true, nil
}

// SelectTransform keeps exactly the listed fields. Unlike a lenient select,
// a missing field fails the row.
type SelectTransform struct {
	Fields []string
}

func (t *SelectTransform) Transform(r Record) (Record, bool, error) {
	filtered := make(map[string]any, len(t.Fields))
	for _, f := range t.Fields {
		v, ok := r.Data[f]
		if !ok {
			return r, false, &ProjectionError{Column: f}
		}
		filtered[f] = v
	}
	r.Data = filtered
	return r, true, nil
}

// ── Chain ──────────────────────────────────────────────────

// BuildChain converts a field reference into its ordered transformer chain:
// input typing, rename, hook, stamping, recode, pad, suppression,
// projection, output typing.
func BuildChain(ref *fieldref.FieldReference, entry domain.DatasetEntry, hook RowHook) []Transformer {
	ts := []Transformer{
		&TypeCastTransform{Types: ref.InTypes},
		&RenameTransform{Mapping: ref.Renames},
	}
	if hook != nil {
		ts = append(ts, &HookTransform{Hook: hook, Entry: entry})
	}
	ts = append(ts, &StampTransform{Start: coerce.NewDate(entry.StartDate), End: coerce.NewDate(entry.EndDate)})
	if len(ref.Recodes) > 0 {
		ts = append(ts, &RecodeTransform{Tables: ref.Recodes})
	}
	if len(ref.Pad) > 0 {
		ts = append(ts, &PadTransform{Widths: ref.Pad})
	}
	if len(ref.SuppressedCols) > 0 {
		ts = append(ts, &SuppressTransform{Columns: ref.Suppressed()})
	}
	ts = append(ts,
		&SelectTransform{Fields: ref.OutCols},
		&TypeCastTransform{Types: ref.OutTypes},
	)
	return ts
}

// ApplyTransformers runs a chain of transformers on a record.
func ApplyTransformers(r Record, ts []Transformer) (Record, bool, error) {
	for _, t := range ts {
		var keep bool
		var err error
		r, keep, err = t.Transform(r)
		if err != nil || !keep {
			return r, false, err
		}
	}
	return r, true, nil
}

// ── Engine entry point ─────────────────────────────────────

// RowPolicy decides what a row failure does to the rest of the entry.
type RowPolicy string

const (
	ContinueOnError RowPolicy = "continue" // exclude the row, report it, carry on
	AbortOnError    RowPolicy = "abort"    // stop the entry at the first failure
)

// Options tunes a Transform call.
type Options struct {
	Hook   RowHook
	Policy RowPolicy
}

// Transform applies ref to every raw row independently and returns the
// conformant rows in input order, plus the report of excluded rows. The
// error is non-nil only under AbortOnError.
func Transform(raw *RawTable, entry domain.DatasetEntry, ref *fieldref.FieldReference, opts Options) ([]domain.TransformedRow, *Report, error) {
	report := &Report{PeriodKey: entry.PeriodKey, RowsRead: len(raw.Rows)}
	report.Missing = ref.ValidateAgainst(raw.Columns)

	chain := BuildChain(ref, entry, opts.Hook)
	schema := ref.OutSchema()
	rows := make([]domain.TransformedRow, 0, len(raw.Rows))

	for i, cells := range raw.Rows {
		rec, keep, err := ApplyTransformers(newRecord(cells), chain)
		if err != nil {
			report.addFailure(i, err)
			if opts.Policy == AbortOnError {
				return rows, report, fmt.Errorf("row %d: %w", i, err)
			}
			continue
		}
		if !keep {
			report.RowsDropped++
			continue
		}

		values := make([]any, len(schema))
		for j, col := range schema {
			values[j] = rec.Data[col.Name]
		}
		rows = append(rows, domain.TransformedRow{PeriodKey: entry.PeriodKey, Columns: schema, Values: values})
	}

	report.RowsWritten = len(rows)
	return rows, report, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
