package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/swarmlab/swarm/internal/domain"
)

// SQLiteStore is a domain.TaskStore backed by SQLite in WAL mode. Records
// are stored as JSON documents keyed by task id, which keeps the schema
// stable while the record shape evolves.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens dir/tasks.db.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := filepath.Join(dir, "tasks.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close shuts the database down.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS task_records (
		task_id    TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		record     TEXT NOT NULL
	)`)
	return err
}

// SaveRecord upserts the record.
func (s *SQLiteStore) SaveRecord(rec domain.TaskRecord) error {
	if rec.TaskID == "" {
		return domain.ErrMissingTaskID
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO task_records (task_id, created_at, record) VALUES (?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET created_at = excluded.created_at, record = excluded.record`,
		rec.TaskID, rec.CreatedAt, string(data),
	)
	return err
}

// DeleteRecord removes the record. Deleting an unknown id is not an error.
func (s *SQLiteStore) DeleteRecord(taskID string) error {
	if taskID == "" {
		return domain.ErrMissingTaskID
	}
	_, err := s.db.Exec(`DELETE FROM task_records WHERE task_id = ?`, taskID)
	return err
}

// LoadRecords returns all records ordered by createdAt, then taskId.
// A row whose JSON no longer parses is skipped rather than fatal.
func (s *SQLiteStore) LoadRecords() ([]domain.TaskRecord, error) {
	rows, err := s.db.Query(`SELECT record FROM task_records ORDER BY created_at, task_id`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.TaskRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec domain.TaskRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Compact transactionally replaces all stored records with the given set.
func (s *SQLiteStore) Compact(recs []domain.TaskRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin compact: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM task_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	for _, rec := range recs {
		if rec.TaskID == "" {
			return domain.ErrMissingTaskID
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO task_records (task_id, created_at, record) VALUES (?, ?, ?)`,
			rec.TaskID, rec.CreatedAt, string(data),
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	return tx.Commit()
}
