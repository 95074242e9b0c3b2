package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/domain"
)

func TestRun_Usage(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), nil, &out, &out))
	assert.Contains(t, out.String(), "Commands:")
}

func TestRun_Sources(t *testing.T) {
	var out bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"sources"}, &out, &out))
	assert.Contains(t, out.String(), "csv_file")
	assert.Contains(t, out.String(), "json_file")
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"explode", "-C", t.TempDir()}, &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "unknown command")
}

func TestRun_InitThenRun(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer

	require.Equal(t, 0, run(context.Background(), []string{"init", "-C", dir}, &out, &errOut), errOut.String())

	manifest := "year,start_date,end_date,field_reference_file,source_file\n" +
		"2010,2009-07-01,2010-06-30,field_reference.json,raw/2010.csv\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf", "datasets.csv"), []byte(manifest), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "raw"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw", "2010.csv"), []byte("DistrictCode,BuildingCode\n42,7\n"), 0o644))

	out.Reset()
	code := run(context.Background(), []string{"run", "-C", dir, "--store", "csv"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())

	var rl domain.RunLog
	require.NoError(t, json.Unmarshal(out.Bytes(), &rl))
	assert.Equal(t, domain.RunStatusSuccess, rl.Status)
	assert.Equal(t, 1, rl.RowsWritten)

	data, err := os.ReadFile(filepath.Join(dir, "output", "combined.csv"))
	require.NoError(t, err)
	assert.Equal(t, "period_key,district_code,building_code,start_date,end_date\n2010,000042,0007,2009-07-01,2010-06-30\n", string(data))

	out.Reset()
	require.Equal(t, 0, run(context.Background(), []string{"logs", "-C", dir, "--store", "csv"}, &out, &errOut))
	var logs []domain.RunLog
	require.NoError(t, json.Unmarshal(out.Bytes(), &logs))
	assert.Len(t, logs, 1)
}
