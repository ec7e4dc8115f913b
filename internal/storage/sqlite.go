package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/simgroup/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS attractions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		attributes TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_attractions_city ON attractions(city);

	CREATE TABLE IF NOT EXISTS similarity_outbox (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		sent_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_pending ON similarity_outbox(sent_at, id);

	CREATE TABLE IF NOT EXISTS similarity_runs (
		id TEXT PRIMARY KEY,
		status INTEGER NOT NULL,
		message TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		items INTEGER NOT NULL DEFAULT 0,
		pairs INTEGER NOT NULL DEFAULT 0,
		groups_count INTEGER NOT NULL DEFAULT 0,
		assigned INTEGER NOT NULL DEFAULT 0,
		threshold REAL NOT NULL,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON similarity_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

func encodeAttributes(attrs map[string]string) (string, error) {
	if len(attrs) == 0 {
		return "", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attributes: %w", err)
	}
	return string(b), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.SourceRecord, error) {
	var rec models.SourceRecord
	var attrs sql.NullString
	if err := row.Scan(&rec.ID, &rec.Name, &rec.Description, &rec.Address, &rec.City, &rec.Category,
		&attrs, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if attrs.Valid && attrs.String != "" {
		if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes of %s: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

const recordColumns = `id, name, description, address, city, category, attributes, created_at, updated_at`

// CreateRecord inserts a record.
func (s *SQLiteStorage) CreateRecord(ctx context.Context, rec *models.SourceRecord) error {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attractions (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Description, rec.Address, rec.City, rec.Category, attrs, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

// GetRecord returns a record by ID.
func (s *SQLiteStorage) GetRecord(ctx context.Context, id string) (*models.SourceRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attractions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecord updates an existing record.
func (s *SQLiteStorage) UpdateRecord(ctx context.Context, rec *models.SourceRecord) error {
	attrs, err := encodeAttributes(rec.Attributes)
	if err != nil {
		return err
	}

	rec.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx,
		`UPDATE attractions SET name = ?, description = ?, address = ?, city = ?, category = ?,
		 attributes = ?, updated_at = ? WHERE id = ?`,
		rec.Name, rec.Description, rec.Address, rec.City, rec.Category, attrs, rec.UpdatedAt, rec.ID,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("record %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// DeleteRecord removes a record by ID.
func (s *SQLiteStorage) DeleteRecord(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attractions WHERE id = ?`, id)
	return err
}

// ListRecords returns records ordered by id with offset and limit.
func (s *SQLiteStorage) ListRecords(ctx context.Context, offset, limit int) ([]*models.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM attractions ORDER BY id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.SourceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpsertRecords inserts or replaces records in a transaction. Used to seed the table from files.
func (s *SQLiteStorage) UpsertRecords(ctx context.Context, recs []models.SourceRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attractions (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
		 address = excluded.address, city = excluded.city, category = excluded.category,
		 attributes = excluded.attributes, updated_at = excluded.updated_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i := range recs {
		rec := &recs[i]
		attrs, err := encodeAttributes(rec.Attributes)
		if err != nil {
			return err
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Name, rec.Description, rec.Address, rec.City,
			rec.Category, attrs, rec.CreatedAt, rec.UpdatedAt); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// FetchRecords returns all records ordered by id.
func (s *SQLiteStorage) FetchRecords(ctx context.Context) ([]models.SourceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM attractions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.SourceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// CountRecords returns the total number of records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attractions`).Scan(&count)
	return count, err
}

// EnqueueMessages appends payloads to the outbox in one transaction.
func (s *SQLiteStorage) EnqueueMessages(ctx context.Context, messageType string, payloads [][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO similarity_outbox (message_type, payload, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range payloads {
		if _, err := stmt.ExecContext(ctx, messageType, string(p), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PendingMessages returns up to limit unsent messages, oldest first.
func (s *SQLiteStorage) PendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message_type, payload, created_at FROM similarity_outbox
		 WHERE sent_at IS NULL ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*models.OutboxMessage
	for rows.Next() {
		var m models.OutboxMessage
		var payload string
		if err := rows.Scan(&m.ID, &m.MessageType, &payload, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Payload = []byte(payload)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// MarkSent stamps the given outbox messages as relayed.
func (s *SQLiteStorage) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	_, err := s.db.ExecContext(ctx,
		`UPDATE similarity_outbox SET sent_at = ? WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// CountPending returns the number of unsent outbox messages.
func (s *SQLiteStorage) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM similarity_outbox WHERE sent_at IS NULL`).Scan(&count)
	return count, err
}

// SaveRun records a pipeline run.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run *models.RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO similarity_runs (id, status, message, details, items, pairs, groups_count, assigned,
		 threshold, started_at, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Message, run.Details, run.Items, run.Pairs, run.Groups, run.Assigned,
		run.Threshold, run.StartedAt, run.DurationMS,
	)
	return err
}

// LastRun returns the most recently started run.
func (s *SQLiteStorage) LastRun(ctx context.Context) (*models.RunSummary, error) {
	var run models.RunSummary
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, message, details, items, pairs, groups_count, assigned, threshold, started_at, duration_ms
		 FROM similarity_runs ORDER BY started_at DESC, rowid DESC LIMIT 1`,
	).Scan(&run.ID, &run.Status, &run.Message, &run.Details, &run.Items, &run.Pairs, &run.Groups,
		&run.Assigned, &run.Threshold, &run.StartedAt, &run.DurationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("last run: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
