package manifest_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/manifest"
)

var header = []string{"year", "start_date", "end_date", "field_reference_file", "source_file", "source_type"}

func knownRefs(ids ...string) func(string) bool {
	set := map[string]bool{}
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool { return set[id] }
}

func manifestErr(t *testing.T, err error) *manifest.ManifestError {
	t.Helper()
	var me *manifest.ManifestError
	require.True(t, errors.As(err, &me), "expected ManifestError, got %v", err)
	return me
}

func TestParse_PreservesRowOrder(t *testing.T) {
	rows := [][]string{
		{"2011", "2010-07-01", "2011-06-30", "field_reference.json", "DATA/2011/data.csv", ""},
		{"2010", "2009-07-01", "2010-06-30", "field_reference.json", "DATA/2010/data.csv", "json_file"},
	}
	entries, err := manifest.Parse(header, rows, knownRefs("field_reference.json"))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "2011", entries[0].PeriodKey)
	assert.Equal(t, "2010", entries[1].PeriodKey)
	assert.Equal(t, "2009-07-01", entries[1].StartDate.Format("2006-01-02"))
	assert.Equal(t, "2010-06-30", entries[1].EndDate.Format("2006-01-02"))
	assert.Equal(t, "DATA/2010/data.csv", entries[1].SourcePath)
	assert.Equal(t, "json_file", entries[1].SourceType)
	assert.Empty(t, entries[0].SourceType)
}

func TestParse_PeriodKeyHeader(t *testing.T) {
	h := []string{"period_key", "start_date", "end_date", "field_reference_file", "source_file"}
	entries, err := manifest.Parse(h, [][]string{{"FY10", "2009-07-01", "2010-06-30", "ref.yaml", "a.csv"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "FY10", entries[0].PeriodKey)
}

func TestParse_DuplicatePeriodKey(t *testing.T) {
	rows := [][]string{
		{"2010", "2009-07-01", "2010-06-30", "f.json", "a.csv", ""},
		{"2010", "2009-07-01", "2010-06-30", "f.json", "b.csv", ""},
	}
	_, err := manifest.Parse(header, rows, nil)
	me := manifestErr(t, err)
	assert.Equal(t, 3, me.Line)
	assert.Contains(t, me.Reason, "duplicate period key")
}

func TestParse_StartAfterEnd(t *testing.T) {
	rows := [][]string{{"2010", "2010-07-01", "2010-06-30", "f.json", "a.csv", ""}}
	_, err := manifest.Parse(header, rows, nil)
	assert.Contains(t, manifestErr(t, err).Reason, "is after end_date")
}

func TestParse_SameDayPeriodIsValid(t *testing.T) {
	rows := [][]string{{"d1", "2010-07-01", "2010-07-01", "f.json", "a.csv", ""}}
	_, err := manifest.Parse(header, rows, nil)
	assert.NoError(t, err)
}

func TestParse_UnknownFieldReference(t *testing.T) {
	rows := [][]string{{"2010", "2009-07-01", "2010-06-30", "missing.json", "a.csv", ""}}
	_, err := manifest.Parse(header, rows, knownRefs("field_reference.json"))
	assert.Contains(t, manifestErr(t, err).Reason, `"missing.json" does not exist`)
}

func TestParse_EmptyCellsAndBadValues(t *testing.T) {
	_, err := manifest.Parse(header, [][]string{{"2010", "", "2010-06-30", "f.json", "a.csv", ""}}, nil)
	assert.Contains(t, manifestErr(t, err).Reason, "start_date is empty")

	_, err = manifest.Parse(header, [][]string{{"2010", "2009-07-01", "2010-06-30", "f.json", "a.csv", "excel"}}, nil)
	assert.Contains(t, manifestErr(t, err).Reason, "source_type")

	_, err = manifest.Parse(header, [][]string{{"2010", "July 2009", "2010-06-30", "f.json", "a.csv", ""}}, nil)
	assert.Contains(t, manifestErr(t, err).Reason, "start_date")
}

func TestParse_MissingHeaderColumns(t *testing.T) {
	_, err := manifest.Parse([]string{"year", "start_date"}, nil, nil)
	me := manifestErr(t, err)
	assert.Zero(t, me.Line)
	assert.Contains(t, me.Reason, "end_date")
	assert.Contains(t, me.Reason, "source_file")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.csv")
	content := "year,start_date,end_date,field_reference_file,source_file,source_type\n" +
		"2010,2009-07-01,2010-06-30,field_reference.json,DATA/path/to/2010/data.csv,\n" +
		"2011,2010-07-01,2011-06-30,field_reference.json,DATA/path/to/2011/data.csv,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	entries, err := manifest.LoadFile(path, knownRefs("field_reference.json"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
