package etl

import (
	"fmt"

	"periodetl/internal/domain"
)

// RowHook is the single extension point for user code. It sees each row after
// rename and before period stamping, receives its own copy of the row, and
// returns the replacement row. Returning a nil map with a nil error drops the
// row. The hook must not touch shared state.
type RowHook func(row map[string]any, entry domain.DatasetEntry) (map[string]any, error)

// HookTransform runs a RowHook inside the transformer chain, turning errors
// and panics into row failures.
type HookTransform struct {
	Hook  RowHook
	Entry domain.DatasetEntry
}

func (t *HookTransform) Transform(r Record) (out Record, keep bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, keep, err = r, false, &HookError{Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	data, err := t.Hook(r.clone().Data, t.Entry)
	if err != nil {
		return r, false, &HookError{Err: err}
	}
	if data == nil {
		return r, false, nil
	}
	return Record{Data: data}.clone(), true, nil
}
