package fieldref_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/domain"
	"periodetl/internal/fieldref"
)

const sampleJSON = `{
	"in_types": {"DistrictCode": "str", "BuildingCode": "str", "Enrolled": "int"},
	"renames": {"DistrictCode": "district_code", "BuildingCode": "building_code", "Enrolled": "enrolled"},
	"recodes": {},
	"suppressed_cols": ["enrolled"],
	"out_cols": ["district_code", "building_code", "enrolled", "start_date", "end_date"],
	"out_types": {"district_code": "str", "enrolled": "int"},
	"comment": "unknown keys are ignored"
}`

func TestParse_Valid(t *testing.T) {
	ref, err := fieldref.Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, "district_code", ref.Renames["DistrictCode"])
	assert.Equal(t, domain.ColTypeInt, ref.InTypes["Enrolled"])
	assert.Equal(t, []string{"district_code", "building_code", "enrolled", "start_date", "end_date"}, ref.OutCols)
	assert.True(t, ref.Suppressed()["enrolled"])
}

func TestParse_MissingKeysDefaultEmpty(t *testing.T) {
	ref, err := fieldref.Parse([]byte(`{"renames": {"A": "a"}, "out_cols": ["a"]}`))
	require.NoError(t, err)
	assert.Empty(t, ref.InTypes)
	assert.Empty(t, ref.Recodes)
	assert.Empty(t, ref.SuppressedCols)
	assert.Empty(t, ref.OutTypes)
}

func TestParse_StampColumnsNeedNoRename(t *testing.T) {
	_, err := fieldref.Parse([]byte(`{"renames": {"A": "a"}, "out_cols": ["a", "start_date", "end_date"]}`))
	assert.NoError(t, err)
}

func TestParse_UnreachableOutCol(t *testing.T) {
	_, err := fieldref.Parse([]byte(`{"renames": {"A": "a"}, "out_cols": ["a", "b"]}`))

	var se *fieldref.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), `"b" is not produced by renames`)
}

func TestParse_NonInjectiveRenames(t *testing.T) {
	_, err := fieldref.Parse([]byte(`{"renames": {"A": "a", "B": "a"}, "out_cols": ["a"]}`))

	var se *fieldref.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Error(), `A, B all rename to "a"`)
}

func TestParse_CollectsEveryProblem(t *testing.T) {
	doc := `{
		"in_types": {"A": "uuid"},
		"renames": {"A": "a"},
		"out_cols": ["a", "a"],
		"out_types": {"z": "int"},
		"pad": {"a": 0},
		"suppressed_cols": ["nope"]
	}`
	_, err := fieldref.Parse([]byte(doc))

	var se *fieldref.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Problems, 5)
}

func TestParse_BadJSON(t *testing.T) {
	_, err := fieldref.Parse([]byte(`{"renames": [`))
	var se *fieldref.SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestParseYAML(t *testing.T) {
	doc := `
renames:
  A: a
  Flag: flag
recodes:
  a:
    x: X
in_types:
  Flag: bool
out_cols: [a, flag, start_date, end_date]
`
	ref, err := fieldref.ParseYAML([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "X", ref.Recodes["a"]["x"])
	assert.Equal(t, domain.ColTypeBool, ref.InTypes["Flag"])
}

func TestValidateAgainst(t *testing.T) {
	ref, err := fieldref.Parse([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Empty(t, ref.ValidateAgainst([]string{"DistrictCode", "BuildingCode", "Enrolled", "Extra"}))

	missing := ref.ValidateAgainst([]string{"DistrictCode"})
	require.Len(t, missing, 2)
	assert.Equal(t, "BuildingCode", missing[0].Column)
	assert.Equal(t, []string{"in_types", "renames"}, missing[0].Keys)
	assert.Equal(t, "Enrolled", missing[1].Column)
}

func TestOutSchema_StampColumnsAreDates(t *testing.T) {
	ref, err := fieldref.Parse([]byte(sampleJSON))
	require.NoError(t, err)

	schema := ref.OutSchema()
	require.Len(t, schema, 5)
	assert.Equal(t, domain.Column{Name: "district_code", Type: domain.ColTypeString}, schema[0])
	assert.Equal(t, domain.Column{Name: "building_code"}, schema[1])
	assert.Equal(t, domain.ColTypeDate, schema[3].Type)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ref_2010.json"), []byte(sampleJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("renames: {A: a}\nout_cols: [b]\n"), 0o644))

	ref, err := fieldref.LoadFile(filepath.Join(dir, "ref_2010.json"))
	require.NoError(t, err)
	assert.Equal(t, "ref_2010.json", ref.ID)

	_, err = fieldref.LoadFile(filepath.Join(dir, "bad.yaml"))
	var se *fieldref.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "bad.yaml", se.ID)

	_, err = fieldref.LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadSet_SharesDocuments(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "field_reference.json"), []byte(sampleJSON), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "datasets.csv"), []byte("year\n"), 0o644))

	avail, err := fieldref.Available(dir)
	require.NoError(t, err)
	assert.Contains(t, avail, "field_reference.json")
	assert.NotContains(t, avail, "datasets.csv")

	set, err := fieldref.LoadSet(dir, []string{"field_reference.json", "field_reference.json"})
	require.NoError(t, err)
	assert.Len(t, set, 1)

	_, err = set.Get("other.json")
	assert.Error(t, err)
}
