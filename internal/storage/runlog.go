package storage

import (
	"github.com/google/uuid"

	"periodetl/internal/domain"
)

// RunLogStore persists pipeline run history in the state database.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

var _ domain.RunLogStore = (*RunLogStore)(nil)

// CreateRunLog inserts log, assigning it a fresh ID.
func (s *RunLogStore) CreateRunLog(log *domain.RunLog) error {
	log.ID = uuid.New().String()
	if log.Trigger == "" {
		log.Trigger = domain.TriggerManual
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO run_logs (id, family, trigger_type, started_at, finished_at, status,
		 entries, rows_read, rows_written, row_failures, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Family, log.Trigger, log.StartedAt, log.FinishedAt, log.Status,
		log.Entries, log.RowsRead, log.RowsWritten, log.RowFailures, log.Error,
	)
	return err
}

// ListRunLogs returns the newest runs of family first.
func (s *RunLogStore) ListRunLogs(family string, limit int) ([]domain.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, family, trigger_type, started_at, finished_at, status,
		 entries, rows_read, rows_written, row_failures, error
		 FROM run_logs WHERE family = ? ORDER BY started_at DESC LIMIT ?`,
		family, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		var l domain.RunLog
		if err := rows.Scan(
			&l.ID, &l.Family, &l.Trigger, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.Entries, &l.RowsRead, &l.RowsWritten, &l.RowFailures, &l.Error,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
