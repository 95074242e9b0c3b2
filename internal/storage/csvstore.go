package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"periodetl/internal/coerce"
	"periodetl/internal/domain"
)

// periodColumn leads every row of a CSV store file.
const periodColumn = "period_key"

// CSVStore is a ConsolidatedStore of flat files: <dir>/<family>.csv holds
// the rows, prefixed by their period key, and <dir>/<family>.schema.json
// holds the column types. Nulls and empty strings are indistinguishable
// once written.
type CSVStore struct {
	dir string
}

var _ domain.ConsolidatedStore = (*CSVStore)(nil)

// NewCSVStore creates dir if needed.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &CSVStore{dir: dir}, nil
}

func (s *CSVStore) dataPath(family string) string {
	return filepath.Join(s.dir, family+".csv")
}

func (s *CSVStore) schemaPath(family string) string {
	return filepath.Join(s.dir, family+".schema.json")
}

// Columns returns the stored schema of family, nil if it was never loaded.
func (s *CSVStore) Columns(_ context.Context, family string) ([]domain.Column, error) {
	data, err := os.ReadFile(s.schemaPath(family))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return DecodeColumns(string(data))
}

type csvRecord struct {
	period string
	cells  []string
}

func (s *CSVStore) readAll(family string) ([]csvRecord, error) {
	f, err := os.Open(s.dataPath(family))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open store file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records []csvRecord
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read store file: %w", err)
		}
		records = append(records, csvRecord{period: rec[0], cells: rec[1:]})
	}
	return records, nil
}

// ReplacePeriods rewrites the family file with the batches swapped in. The
// new file replaces the old one by rename, so readers never see a mix. The
// schema sidecar goes first so data never lands without its schema.
func (s *CSVStore) ReplacePeriods(_ context.Context, family string, columns []domain.Column, batches []domain.PeriodBatch) (int, error) {
	existing, err := s.readAll(family)
	if err != nil {
		return 0, err
	}

	replaced := make(map[string]bool, len(batches))
	for _, b := range batches {
		replaced[b.PeriodKey] = true
	}

	removed := 0
	kept := existing[:0]
	for _, rec := range existing {
		if replaced[rec.period] {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	for _, b := range batches {
		for _, values := range b.Rows {
			cells := make([]string, len(values))
			for i, v := range values {
				cells[i] = coerce.Format(v)
			}
			kept = append(kept, csvRecord{period: b.PeriodKey, cells: cells})
		}
	}

	schema, err := EncodeColumns(columns)
	if err != nil {
		return 0, err
	}
	if err := writeAtomic(s.schemaPath(family), func(w io.Writer) error {
		_, err := io.WriteString(w, schema)
		return err
	}); err != nil {
		return 0, fmt.Errorf("write schema: %w", err)
	}

	header := append([]string{periodColumn}, domain.ColumnNames(columns)...)
	err = writeAtomic(s.dataPath(family), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(header); err != nil {
			return err
		}
		for _, rec := range kept {
			if err := cw.Write(append([]string{rec.period}, rec.cells...)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return 0, fmt.Errorf("write store file: %w", err)
	}

	return removed, nil
}

// ListPeriods returns the stored period keys of family in ascending order.
func (s *CSVStore) ListPeriods(_ context.Context, family string) ([]string, error) {
	records, err := s.readAll(family)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var periods []string
	for _, rec := range records {
		if !seen[rec.period] {
			seen[rec.period] = true
			periods = append(periods, rec.period)
		}
	}
	sort.Strings(periods)
	return periods, nil
}

// ReadPeriod returns the rows of one period in load order.
func (s *CSVStore) ReadPeriod(ctx context.Context, family, periodKey string) ([][]any, error) {
	columns, err := s.Columns(ctx, family)
	if err != nil || columns == nil {
		return nil, err
	}
	records, err := s.readAll(family)
	if err != nil {
		return nil, err
	}

	var out [][]any
	for _, rec := range records {
		if rec.period != periodKey {
			continue
		}
		if len(rec.cells) != len(columns) {
			return nil, fmt.Errorf("period %s: %d cells for %d columns", periodKey, len(rec.cells), len(columns))
		}
		values := make([]any, len(columns))
		for i, cell := range rec.cells {
			v, err := coerce.To(cell, columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("period %s: column %s: %w", periodKey, columns[i].Name, err)
			}
			values[i] = v
		}
		out = append(out, values)
	}
	return out, nil
}

// Close is a no-op; the store holds no open files between calls.
func (s *CSVStore) Close() error { return nil }

// writeAtomic writes path through a synced temp file in the same directory
// followed by a rename.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
