// Package manifest parses the dataset manifest: one row per period of a
// dataset family, pointing at its raw source and field reference.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"periodetl/internal/coerce"
	"periodetl/internal/domain"
)

// Column names recognised in the manifest header.
const (
	ColPeriodKey      = "period_key"
	ColYear           = "year" // accepted alias for period_key
	ColStartDate      = "start_date"
	ColEndDate        = "end_date"
	ColFieldReference = "field_reference_file"
	ColSourceFile     = "source_file"
	ColSourceType     = "source_type"
)

// ManifestError reports a malformed manifest. Line is 1-based and counts the
// header; zero means the problem is not tied to one row.
type ManifestError struct {
	Line   int
	Reason string
}

func (e *ManifestError) Error() string {
	if e.Line == 0 {
		return "manifest: " + e.Reason
	}
	return fmt.Sprintf("manifest line %d: %s", e.Line, e.Reason)
}

type row struct {
	PeriodKey      string `validate:"required"`
	StartDate      string `validate:"required"`
	EndDate        string `validate:"required"`
	FieldReference string `validate:"required"`
	SourceFile     string `validate:"required"`
	SourceType     string `validate:"omitempty,oneof=csv_file json_file"`
}

var validate = validator.New()

// Parse converts manifest rows into dataset entries, preserving row order.
// known reports whether a field reference ID resolves to a document; a nil
// known skips that check.
func Parse(header []string, rows [][]string, known func(id string) bool) ([]domain.DatasetEntry, error) {
	idx, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.DatasetEntry, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for i, cells := range rows {
		line := i + 2
		get := func(col string) string {
			j, ok := idx[col]
			if !ok || j >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[j])
		}

		r := row{
			PeriodKey:      get(ColPeriodKey),
			StartDate:      get(ColStartDate),
			EndDate:        get(ColEndDate),
			FieldReference: get(ColFieldReference),
			SourceFile:     get(ColSourceFile),
			SourceType:     get(ColSourceType),
		}
		if err := validate.Struct(r); err != nil {
			return nil, &ManifestError{Line: line, Reason: describe(err)}
		}

		if first, dup := seen[r.PeriodKey]; dup {
			return nil, &ManifestError{Line: line, Reason: fmt.Sprintf("duplicate period key %q (first on line %d)", r.PeriodKey, first)}
		}
		seen[r.PeriodKey] = line

		start, err := coerce.ParseDate(r.StartDate)
		if err != nil {
			return nil, &ManifestError{Line: line, Reason: "start_date: " + err.Error()}
		}
		end, err := coerce.ParseDate(r.EndDate)
		if err != nil {
			return nil, &ManifestError{Line: line, Reason: "end_date: " + err.Error()}
		}
		if start.After(end.Time) {
			return nil, &ManifestError{Line: line, Reason: fmt.Sprintf("start_date %s is after end_date %s", start, end)}
		}

		if known != nil && !known(r.FieldReference) {
			return nil, &ManifestError{Line: line, Reason: fmt.Sprintf("field reference %q does not exist", r.FieldReference)}
		}

		entries = append(entries, domain.DatasetEntry{
			PeriodKey:        r.PeriodKey,
			StartDate:        start.Time,
			EndDate:          end.Time,
			FieldReferenceID: r.FieldReference,
			SourcePath:       r.SourceFile,
			SourceType:       r.SourceType,
		})
	}
	return entries, nil
}

func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if name == ColYear {
			if _, ok := idx[ColPeriodKey]; ok {
				continue
			}
			name = ColPeriodKey
		}
		idx[name] = i
	}
	var missing []string
	for _, col := range []string{ColPeriodKey, ColStartDate, ColEndDate, ColFieldReference, ColSourceFile} {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &ManifestError{Reason: "missing columns: " + strings.Join(missing, ", ")}
	}
	return idx, nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fieldColumn(fe.Field())+" is empty")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s %q must be one of: %s", fieldColumn(fe.Field()), fe.Value(), fe.Param()))
		default:
			parts = append(parts, fieldColumn(fe.Field())+" is invalid")
		}
	}
	return strings.Join(parts, "; ")
}

func fieldColumn(field string) string {
	switch field {
	case "PeriodKey":
		return ColPeriodKey
	case "StartDate":
		return ColStartDate
	case "EndDate":
		return ColEndDate
	case "FieldReference":
		return ColFieldReference
	case "SourceFile":
		return ColSourceFile
	case "SourceType":
		return ColSourceType
	}
	return field
}

// LoadFile reads and parses a manifest CSV.
func LoadFile(path string, known func(id string) bool) ([]domain.DatasetEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, &ManifestError{Reason: "parse csv: " + err.Error()}
	}
	if len(records) == 0 {
		return nil, &ManifestError{Reason: "empty manifest"}
	}
	return Parse(records[0], records[1:], known)
}
