package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"periodetl/internal/domain"
)

const (
	tableFamilies = "consolidated_families"
	tableRows     = "consolidated_rows"

	// insertChunk bounds the rows per INSERT so large periods stay under
	// driver placeholder limits.
	insertChunk = 200
)

// Dialect captures what differs between the SQL engines a SQLStore runs on.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	KeyType     string // type of indexed text columns
	TextType    string // type of unbounded text columns
}

var (
	DialectSQLite   = Dialect{Name: "sqlite", Placeholder: sq.Question, KeyType: "TEXT", TextType: "TEXT"}
	DialectPostgres = Dialect{Name: "postgres", Placeholder: sq.Dollar, KeyType: "TEXT", TextType: "TEXT"}
	// MySQL cannot index unbounded TEXT; 191 chars fits utf8mb4 index limits.
	DialectMySQL = Dialect{Name: "mysql", Placeholder: sq.Question, KeyType: "VARCHAR(191)", TextType: "LONGTEXT"}
)

// SQLStore is a ConsolidatedStore over any database/sql engine. Every family
// shares two tables: one row per family holding its schema, and one row per
// consolidated record holding its values as a JSON array.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

var _ domain.ConsolidatedStore = (*SQLStore)(nil)

// NewSQLStore wraps db and creates the store tables if missing.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("%s store schema: %w", dialect.Name, err)
	}
	return s, nil
}

func (s *SQLStore) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(s.dialect.Placeholder)
}

func (s *SQLStore) ensureSchema(ctx context.Context) error {
	d := s.dialect
	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			family %s NOT NULL PRIMARY KEY,
			columns_json %s NOT NULL
		)`, tableFamilies, d.KeyType, d.TextType),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			family %s NOT NULL,
			period_key %s NOT NULL,
			row_index INTEGER NOT NULL,
			data_json %s NOT NULL,
			PRIMARY KEY (family, period_key, row_index)
		)`, tableRows, d.KeyType, d.KeyType, d.TextType),
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Columns returns the stored schema of family, nil if it was never loaded.
func (s *SQLStore) Columns(ctx context.Context, family string) ([]domain.Column, error) {
	query, args, err := s.builder().
		Select("columns_json").
		From(tableFamilies).
		Where(sq.Eq{"family": family}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var data string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if errors.Is(wrapErr(err), errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return DecodeColumns(data)
}

// ReplacePeriods swaps every batch into the store inside one transaction.
func (s *SQLStore) ReplacePeriods(ctx context.Context, family string, columns []domain.Column, batches []domain.PeriodBatch) (int, error) {
	colsJSON, err := EncodeColumns(columns)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	removed := 0
	for _, b := range batches {
		n, err := s.deletePeriod(ctx, tx, family, b.PeriodKey)
		if err != nil {
			return 0, fmt.Errorf("delete period %s: %w", b.PeriodKey, err)
		}
		removed += n
		if err := s.insertRows(ctx, tx, family, b); err != nil {
			return 0, fmt.Errorf("insert period %s: %w", b.PeriodKey, err)
		}
	}

	if err := s.putColumns(ctx, tx, family, colsJSON); err != nil {
		return 0, fmt.Errorf("store schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

func (s *SQLStore) deletePeriod(ctx context.Context, tx *sql.Tx, family, periodKey string) (int, error) {
	query, args, err := s.builder().
		Delete(tableRows).
		Where(sq.Eq{"family": family, "period_key": periodKey}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLStore) insertRows(ctx context.Context, tx *sql.Tx, family string, b domain.PeriodBatch) error {
	for start := 0; start < len(b.Rows); start += insertChunk {
		end := min(start+insertChunk, len(b.Rows))

		insert := s.builder().
			Insert(tableRows).
			Columns("family", "period_key", "row_index", "data_json")
		for i := start; i < end; i++ {
			data, err := EncodeRow(b.Rows[i])
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			insert = insert.Values(family, b.PeriodKey, i, data)
		}

		query, args, err := insert.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return err
		}
	}
	return nil
}

// putColumns replaces the family schema row with a delete and an insert.
func (s *SQLStore) putColumns(ctx context.Context, tx *sql.Tx, family, colsJSON string) error {
	query, args, err := s.builder().
		Delete(tableFamilies).
		Where(sq.Eq{"family": family}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return err
	}

	query, args, err = s.builder().
		Insert(tableFamilies).
		Columns("family", "columns_json").
		Values(family, colsJSON).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// ListPeriods returns the stored period keys of family in ascending order.
func (s *SQLStore) ListPeriods(ctx context.Context, family string) ([]string, error) {
	query, args, err := s.builder().
		Select("period_key").
		Distinct().
		From(tableRows).
		Where(sq.Eq{"family": family}).
		OrderBy("period_key").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ReadPeriod returns the rows of one period in load order.
func (s *SQLStore) ReadPeriod(ctx context.Context, family, periodKey string) ([][]any, error) {
	columns, err := s.Columns(ctx, family)
	if err != nil || columns == nil {
		return nil, err
	}

	query, args, err := s.builder().
		Select("data_json").
		From(tableRows).
		Where(sq.Eq{"family": family, "period_key": periodKey}).
		OrderBy("row_index").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		values, err := DecodeRow(data, columns)
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
