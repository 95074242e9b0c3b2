package etl

import "periodetl/internal/fieldref"

// RowFailure is one excluded row. RowIndex is the 0-based position of the
// row in the raw input.
type RowFailure struct {
	RowIndex int       `json:"rowIndex"`
	Kind     ErrorKind `json:"kind"`
	Detail   string    `json:"detail"`
	Err      error     `json:"-"`
}

// Report summarises one dataset entry's transformation.
type Report struct {
	PeriodKey   string                   `json:"periodKey"`
	RowsRead    int                      `json:"rowsRead"`
	RowsWritten int                      `json:"rowsWritten"`
	RowsDropped int                      `json:"rowsDropped"`
	Missing     []fieldref.MissingColumn `json:"missing,omitempty"`
	Failures    []RowFailure             `json:"failures,omitempty"`
}

func (r *Report) addFailure(index int, err error) {
	r.Failures = append(r.Failures, RowFailure{RowIndex: index, Kind: kindOf(err), Detail: err.Error(), Err: err})
}

// FailuresByKind counts failures per kind.
func (r *Report) FailuresByKind() map[string]int {
	counts := make(map[string]int)
	for _, f := range r.Failures {
		counts[string(f.Kind)]++
	}
	return counts
}

// OK reports whether every row was either written or deliberately dropped.
func (r *Report) OK() bool { return len(r.Failures) == 0 }
