package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"periodetl/internal/coerce"
	"periodetl/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads a JSON array of flat objects. Scalars are turned back into their
// textual form so every source hands the engine string cells.

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:       "json_file",
		Label:      "JSON File",
		Extensions: []string{".json"},
	}
}

func (s *jsonFileSource) Read(ctx context.Context, path string) (*etl.RawTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseJSONRows(ctx, data)
}

func parseJSONRows(ctx context.Context, data []byte) (*etl.RawTable, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return nil, fmt.Errorf("parse json: expected an array of objects: %w", err)
	}

	table := &etl.RawTable{}
	known := make(map[string]bool)
	for i, obj := range objects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// New keys join the header in sorted order so the column list is stable.
		var fresh []string
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			switch v.(type) {
			case map[string]any, []any:
				return nil, fmt.Errorf("object %d: field %q is not a scalar", i, k)
			}
			if !known[k] {
				known[k] = true
				fresh = append(fresh, k)
			}
			row[k] = coerce.Format(v)
		}
		sort.Strings(fresh)
		table.Columns = append(table.Columns, fresh...)
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
