package etl

import (
	"fmt"

	"periodetl/internal/domain"
)

// ErrorKind classifies a row-scoped failure in the report.
type ErrorKind string

const (
	KindCoercion   ErrorKind = "coercion"
	KindRecode     ErrorKind = "recode"
	KindProjection ErrorKind = "projection"
	KindHook       ErrorKind = "hook"
)

// CoercionError means a value could not be converted to its declared type.
type CoercionError struct {
	Column     string
	RawValue   string
	TargetType domain.ColumnType
	Err        error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("column %q: cannot coerce %q to %s: %v", e.Column, e.RawValue, e.TargetType, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// RecodeError means a value has no entry in its column's recode table.
type RecodeError struct {
	Column string
	Value  string
}

func (e *RecodeError) Error() string {
	return fmt.Sprintf("column %q: value %q has no recode", e.Column, e.Value)
}

// ProjectionError means an out_cols entry has no value after transformation.
type ProjectionError struct {
	Column string
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("column %q: no value to project", e.Column)
}

// HookError wraps a failure or panic raised by the custom row hook.
type HookError struct {
	Err error
}

func (e *HookError) Error() string { return "custom transform: " + e.Err.Error() }

func (e *HookError) Unwrap() error { return e.Err }

// LoadError means the load was refused before touching the store.
type LoadError struct {
	Family string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %s", e.Family, e.Reason)
}

// kindOf maps a row error to its report kind.
func kindOf(err error) ErrorKind {
	switch err.(type) {
	case *CoercionError:
		return KindCoercion
	case *RecodeError:
		return KindRecode
	case *ProjectionError:
		return KindProjection
	default:
		return KindHook
	}
}
