package etl

// ── Record ─────────────────────────────────────────────────
// RawTable is what every source emits; Record is the in-flight row that
// moves through the transformer chain.

// RawTable is a column-headered table of string cells.
// A row missing a header column simply lacks that key.
type RawTable struct {
	Columns []string
	Rows    []map[string]string
}

// Record is a single row flowing through the transform chain.
type Record struct {
	Data map[string]any
}

// newRecord copies a raw row into a Record.
func newRecord(raw map[string]string) Record {
	data := make(map[string]any, len(raw))
	for k, v := range raw {
		data[k] = v
	}
	return Record{Data: data}
}

// clone returns a shallow copy whose map can be mutated independently.
func (r Record) clone() Record {
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	return Record{Data: data}
}
