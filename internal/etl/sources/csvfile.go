package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"periodetl/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads a header-first CSV file. Cells stay strings; typing is the field
// reference's job.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "csv_file",
		Label:      "CSV File",
		Extensions: []string{".csv", ".txt"},
	}
}

func (s *csvFileSource) Read(ctx context.Context, path string) (*etl.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()
	return readCSV(ctx, f)
}

func readCSV(ctx context.Context, r io.Reader) (*etl.RawTable, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv file")
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, fmt.Errorf("duplicate column %q in csv header", h)
		}
		seen[h] = true
	}

	table := &etl.RawTable{Columns: header}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv line %d: %w", line, err)
		}

		row := make(map[string]string, len(header))
		for j, h := range header {
			if j < len(record) {
				row[h] = record[j]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
