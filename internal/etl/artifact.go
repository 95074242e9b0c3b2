package etl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"net/url"
	"path/filepath"
	"sort"

	"periodetl/internal/coerce"
	"periodetl/internal/domain"
)

// ── Artifacts ──────────────────────────────────────────────
// The transform phase leaves one JSON artifact per dataset entry under
// <dir>/<family>/. The load phase reads them back, so the two phases can run
// in separate invocations.

// Artifact is the on-disk form of one transformed dataset entry.
type Artifact struct {
	Family    string          `json:"family"`
	PeriodKey string          `json:"periodKey"`
	StartDate coerce.Date     `json:"startDate"`
	EndDate   coerce.Date     `json:"endDate"`
	Columns   []domain.Column `json:"columns"`
	Rows      [][]any         `json:"rows"`
	Report    *Report         `json:"report,omitempty"`
}

// ArtifactPath returns where the artifact of a period is written. The period
// key is escaped reversibly, so distinct keys never share a file.
func ArtifactPath(dir, family, periodKey string) string {
	return filepath.Join(dir, family, url.QueryEscape(periodKey)+".json")
}

// WriteArtifact writes res atomically: a crash leaves either the previous
// artifact or the new one, never a partial file.
func WriteArtifact(dir, family string, res *EntryResult) (string, error) {
	art := Artifact{
		Family:    family,
		PeriodKey: res.Entry.PeriodKey,
		StartDate: coerce.NewDate(res.Entry.StartDate),
		EndDate:   coerce.NewDate(res.Entry.EndDate),
		Columns:   res.Columns,
		Rows:      make([][]any, len(res.Rows)),
		Report:    res.Report,
	}
	for i, r := range res.Rows {
		art.Rows[i] = r.Values
	}

	data, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	path := ArtifactPath(dir, family, res.Entry.PeriodKey)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ReadArtifact decodes one artifact, restoring every value to its column type.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var art Artifact
	if err := dec.Decode(&art); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	for i, row := range art.Rows {
		if len(row) != len(art.Columns) {
			return nil, fmt.Errorf("artifact %s: row %d has %d values for %d columns", filepath.Base(path), i, len(row), len(art.Columns))
		}
		for j, v := range row {
			restored, err := RestoreValue(v, art.Columns[j].Type)
			if err != nil {
				return nil, fmt.Errorf("artifact %s: row %d: %w", filepath.Base(path), i, &CoercionError{
					Column: art.Columns[j].Name, RawValue: coerce.Format(v), TargetType: art.Columns[j].Type, Err: err,
				})
			}
			row[j] = restored
		}
	}
	return &art, nil
}

// ReadArtifacts reads every artifact of family, ordered by period key, and
// flattens them into transformed rows.
func ReadArtifacts(dir, family string) ([]domain.TransformedRow, error) {
	paths, err := filepath.Glob(filepath.Join(dir, family, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	arts := make([]*Artifact, 0, len(paths))
	for _, p := range paths {
		art, err := ReadArtifact(p)
		if err != nil {
			return nil, err
		}
		arts = append(arts, art)
	}
	sort.Slice(arts, func(i, j int) bool { return arts[i].PeriodKey < arts[j].PeriodKey })

	var rows []domain.TransformedRow
	for _, art := range arts {
		for _, values := range art.Rows {
			rows = append(rows, domain.TransformedRow{PeriodKey: art.PeriodKey, Columns: art.Columns, Values: values})
		}
	}
	return rows, nil
}

// RestoreValue converts a JSON-decoded value (decoded with UseNumber) back
// to the Go representation of typ. Untyped numbers become int64 when whole.
func RestoreValue(v any, typ domain.ColumnType) (any, error) {
	if typ != domain.ColTypeUntyped {
		return coerce.To(v, typ)
	}
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || math.IsInf(f, 0) {
		return n.String(), nil
	}
	return f, nil
}
