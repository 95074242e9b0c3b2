// Package fieldref models the field reference document: the declarative
// mapping from a raw dataset layout to the conformant output schema.
package fieldref

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"periodetl/internal/domain"
)

// FieldReference is a parsed, validated schema-mapping document.
// It holds data only; the transform engine interprets it.
type FieldReference struct {
	ID             string                       `json:"-" yaml:"-"`
	InTypes        map[string]domain.ColumnType `json:"in_types" yaml:"in_types"`
	Renames        map[string]string            `json:"renames" yaml:"renames"`
	Recodes        map[string]map[string]any    `json:"recodes" yaml:"recodes"`
	Pad            map[string]int               `json:"pad" yaml:"pad"`
	SuppressedCols []string                     `json:"suppressed_cols" yaml:"suppressed_cols"`
	OutCols        []string                     `json:"out_cols" yaml:"out_cols"`
	OutTypes       map[string]domain.ColumnType `json:"out_types" yaml:"out_types"`
}

// SchemaError reports every problem found in a field reference document.
type SchemaError struct {
	ID       string
	Problems []string
}

func (e *SchemaError) Error() string {
	name := e.ID
	if name == "" {
		name = "field reference"
	}
	return fmt.Sprintf("%s: invalid schema: %s", name, strings.Join(e.Problems, "; "))
}

// MissingColumn is a raw column named by the document but absent from a dataset.
type MissingColumn struct {
	Column string
	Keys   []string // document keys naming the column: "in_types", "renames"
}

func (m MissingColumn) String() string {
	return fmt.Sprintf("%s (%s)", m.Column, strings.Join(m.Keys, ", "))
}

// Parse decodes a JSON field reference document and validates it.
// Unknown top-level keys are ignored and missing keys default to empty.
func Parse(data []byte) (*FieldReference, error) {
	ref := &FieldReference{}
	if err := json.Unmarshal(data, ref); err != nil {
		return nil, &SchemaError{Problems: []string{"decode json: " + err.Error()}}
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

// ParseYAML decodes a YAML field reference document and validates it.
func ParseYAML(data []byte) (*FieldReference, error) {
	ref := &FieldReference{}
	if err := yaml.Unmarshal(data, ref); err != nil {
		return nil, &SchemaError{Problems: []string{"decode yaml: " + err.Error()}}
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

// IsStampColumn reports whether name is injected by period stamping.
func IsStampColumn(name string) bool {
	return name == domain.StartDateColumn || name == domain.EndDateColumn
}

// OutputColumns returns every output name reachable from the document:
// rename targets plus the stamp columns.
func (r *FieldReference) OutputColumns() map[string]bool {
	out := map[string]bool{domain.StartDateColumn: true, domain.EndDateColumn: true}
	for _, to := range r.Renames {
		out[to] = true
	}
	return out
}

// Validate checks the document invariants and returns a *SchemaError listing
// every violation, or nil.
func (r *FieldReference) Validate() error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	targets := make(map[string][]string)
	for from, to := range r.Renames {
		if strings.TrimSpace(to) == "" {
			add("renames: %q maps to an empty name", from)
			continue
		}
		targets[to] = append(targets[to], from)
	}
	for to, froms := range targets {
		if len(froms) > 1 {
			sort.Strings(froms)
			add("renames: %s all rename to %q", strings.Join(froms, ", "), to)
		}
	}

	reachable := r.OutputColumns()
	seen := make(map[string]bool, len(r.OutCols))
	for _, c := range r.OutCols {
		if seen[c] {
			add("out_cols: %q listed twice", c)
		}
		seen[c] = true
		if !reachable[c] {
			add("out_cols: %q is not produced by renames", c)
		}
	}

	for col, typ := range r.InTypes {
		if !typ.Valid() {
			add("in_types: %q has unknown type %q", col, typ)
		}
	}
	for col, typ := range r.OutTypes {
		if !typ.Valid() {
			add("out_types: %q has unknown type %q", col, typ)
		}
		if !seen[col] {
			add("out_types: %q is not in out_cols", col)
		}
	}
	for col := range r.Recodes {
		if !reachable[col] {
			add("recodes: %q is not an output column", col)
		}
	}
	for col, width := range r.Pad {
		if !reachable[col] {
			add("pad: %q is not an output column", col)
		}
		if width <= 0 {
			add("pad: %q has non-positive width %d", col, width)
		}
	}
	for _, col := range r.SuppressedCols {
		if !reachable[col] {
			add("suppressed_cols: %q is not an output column", col)
		}
	}

	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return &SchemaError{ID: r.ID, Problems: problems}
}

// ValidateAgainst reports raw columns named in in_types or renames that are
// absent from columns. It never fails; the caller decides severity.
func (r *FieldReference) ValidateAgainst(columns []string) []MissingColumn {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}

	keys := make(map[string][]string)
	for col := range r.InTypes {
		if !present[col] {
			keys[col] = append(keys[col], "in_types")
		}
	}
	for col := range r.Renames {
		if !present[col] {
			keys[col] = append(keys[col], "renames")
		}
	}

	missing := make([]MissingColumn, 0, len(keys))
	for col, k := range keys {
		missing = append(missing, MissingColumn{Column: col, Keys: k})
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Column < missing[j].Column })
	return missing
}

// Suppressed returns the suppressed output columns as a set.
func (r *FieldReference) Suppressed() map[string]bool {
	set := make(map[string]bool, len(r.SuppressedCols))
	for _, c := range r.SuppressedCols {
		set[c] = true
	}
	return set
}

// OutSchema returns the output columns in order with their declared types.
func (r *FieldReference) OutSchema() []domain.Column {
	cols := make([]domain.Column, len(r.OutCols))
	for i, name := range r.OutCols {
		typ := r.OutTypes[name]
		if typ == domain.ColTypeUntyped && IsStampColumn(name) {
			typ = domain.ColTypeDate
		}
		cols[i] = domain.Column{Name: name, Type: typ}
	}
	return cols
}
