package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"periodetl/internal/coerce"
	"periodetl/internal/domain"
	"periodetl/internal/storage"
)

var columns = []domain.Column{
	{Name: "code", Type: domain.ColTypeString},
	{Name: "count", Type: domain.ColTypeInt},
	{Name: "budget", Type: domain.ColTypeDecimal},
	{Name: "note", Type: domain.ColTypeUntyped},
	{Name: "start_date", Type: domain.ColTypeDate},
}

func date(y int, m time.Month, d int) coerce.Date {
	return coerce.NewDate(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

func batch(period string, codes ...string) domain.PeriodBatch {
	b := domain.PeriodBatch{PeriodKey: period}
	for i, c := range codes {
		b.Rows = append(b.Rows, []any{c, int64(i), decimal.RequireFromString("10.5"), "x", date(2009, 7, 1)})
	}
	return b
}

func newSQLiteStore(t *testing.T) domain.ConsolidatedStore {
	t.Helper()
	conn, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	s, err := storage.NewSQLStore(context.Background(), conn, storage.DialectSQLite)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newCSVStore(t *testing.T) domain.ConsolidatedStore {
	t.Helper()
	s, err := storage.NewCSVStore(filepath.Join(t.TempDir(), "consolidated"))
	require.NoError(t, err)
	return s
}

var stores = map[string]func(*testing.T) domain.ConsolidatedStore{
	"sqlite": newSQLiteStore,
	"csv":    newCSVStore,
}

func TestStore_EmptyFamily(t *testing.T) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			cols, err := s.Columns(ctx, "schools")
			require.NoError(t, err)
			assert.Nil(t, cols)

			periods, err := s.ListPeriods(ctx, "schools")
			require.NoError(t, err)
			assert.Empty(t, periods)

			rows, err := s.ReadPeriod(ctx, "schools", "2010")
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestStore_ReplaceIsIdempotent(t *testing.T) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			batches := []domain.PeriodBatch{batch("2010", "a", "b"), batch("2011", "c")}

			removed, err := s.ReplacePeriods(ctx, "schools", columns, batches)
			require.NoError(t, err)
			assert.Equal(t, 0, removed)
			first, err := s.ReadPeriod(ctx, "schools", "2010")
			require.NoError(t, err)

			removed, err = s.ReplacePeriods(ctx, "schools", columns, batches)
			require.NoError(t, err)
			assert.Equal(t, 3, removed)
			second, err := s.ReadPeriod(ctx, "schools", "2010")
			require.NoError(t, err)

			assert.Equal(t, first, second)
			require.Len(t, second, 2)
			assert.Equal(t, "a", second[0][0])
			assert.Equal(t, int64(0), second[0][1])
			assert.True(t, decimal.RequireFromString("10.5").Equal(second[0][2].(decimal.Decimal)))
			assert.Equal(t, "x", second[0][3])
			assert.Equal(t, date(2009, 7, 1), second[0][4])

			cols, err := s.Columns(ctx, "schools")
			require.NoError(t, err)
			assert.Equal(t, columns, cols)

			periods, err := s.ListPeriods(ctx, "schools")
			require.NoError(t, err)
			assert.Equal(t, []string{"2010", "2011"}, periods)
		})
	}
}

func TestStore_PeriodIsolation(t *testing.T) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, err := s.ReplacePeriods(ctx, "schools", columns, []domain.PeriodBatch{batch("2010", "a"), batch("2011", "b")})
			require.NoError(t, err)

			removed, err := s.ReplacePeriods(ctx, "schools", columns, []domain.PeriodBatch{batch("2011", "y", "z")})
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			kept, err := s.ReadPeriod(ctx, "schools", "2010")
			require.NoError(t, err)
			require.Len(t, kept, 1)
			assert.Equal(t, "a", kept[0][0])

			replaced, err := s.ReadPeriod(ctx, "schools", "2011")
			require.NoError(t, err)
			require.Len(t, replaced, 2)
			assert.Equal(t, "y", replaced[0][0])
			assert.Equal(t, "z", replaced[1][0])
		})
	}
}

func TestStore_FamiliesAreSeparate(t *testing.T) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			_, err := s.ReplacePeriods(ctx, "schools", columns, []domain.PeriodBatch{batch("2010", "a")})
			require.NoError(t, err)
			_, err = s.ReplacePeriods(ctx, "districts", columns, []domain.PeriodBatch{batch("2010", "b")})
			require.NoError(t, err)

			rows, err := s.ReadPeriod(ctx, "schools", "2010")
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, "a", rows[0][0])
		})
	}
}

func TestStore_Nulls(t *testing.T) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			row := []any{"a", nil, nil, nil, nil}
			_, err := s.ReplacePeriods(ctx, "schools", columns, []domain.PeriodBatch{{PeriodKey: "2010", Rows: [][]any{row}}})
			require.NoError(t, err)

			got, err := s.ReadPeriod(ctx, "schools", "2010")
			require.NoError(t, err)
			assert.Equal(t, [][]any{row}, got)
		})
	}
}

func TestCSVStore_SchemaWrittenBeforeData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := storage.NewCSVStore(dir)
	require.NoError(t, err)

	_, err = s.ReplacePeriods(ctx, "schools", columns, []domain.PeriodBatch{batch("2010", "a")})
	require.NoError(t, err)

	schema, err := os.Stat(filepath.Join(dir, "schools.schema.json"))
	require.NoError(t, err)
	data, err := os.Stat(filepath.Join(dir, "schools.csv"))
	require.NoError(t, err)
	assert.False(t, schema.ModTime().After(data.ModTime()))

	cols, err := s.Columns(ctx, "schools")
	require.NoError(t, err)
	assert.Equal(t, columns, cols)
}

func TestSQLStore_LargeBatch(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	b := domain.PeriodBatch{PeriodKey: "2010"}
	for i := 0; i < 450; i++ {
		b.Rows = append(b.Rows, []any{"c", int64(i), nil, nil, nil})
	}
	_, err := s.ReplacePeriods(ctx, "schools", columns, []domain.PeriodBatch{b})
	require.NoError(t, err)

	rows, err := s.ReadPeriod(ctx, "schools", "2010")
	require.NoError(t, err)
	require.Len(t, rows, 450)
	assert.Equal(t, int64(449), rows[449][1])
}

func TestRunLogStore(t *testing.T) {
	db, err := storage.New(filepath.Join(t.TempDir(), "state", "periodetl.db"))
	require.NoError(t, err)
	defer db.Close()
	logs := storage.NewRunLogStore(db)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []string{domain.RunStatusSuccess, domain.RunStatusPartial, domain.RunStatusError} {
		l := &domain.RunLog{
			Family:      "schools",
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			FinishedAt:  base.Add(time.Duration(i)*time.Hour + time.Minute),
			Status:      status,
			Entries:     2,
			RowsRead:    10,
			RowsWritten: 9,
			RowFailures: 1,
		}
		require.NoError(t, logs.CreateRunLog(l))
		assert.NotEmpty(t, l.ID)
	}
	require.NoError(t, logs.CreateRunLog(&domain.RunLog{Family: "other", StartedAt: base, FinishedAt: base, Status: domain.RunStatusSuccess}))

	got, err := logs.ListRunLogs("schools", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.RunStatusError, got[0].Status)
	assert.Equal(t, domain.RunStatusPartial, got[1].Status)
	assert.Equal(t, domain.TriggerManual, got[0].Trigger)
	assert.Equal(t, 9, got[0].RowsWritten)
}

func TestNew_MigrationsAreRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "periodetl.db")
	db, err := storage.New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = storage.New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
