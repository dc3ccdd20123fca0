package recording

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a recording does not exist.
var ErrNotFound = errors.New("recording not found")

// Store is a SQLite Recorder.
type Store struct {
	db *sql.DB
}

var _ Recorder = (*Store)(nil)

// Open opens or creates the recording database at dsn. A plain file path
// has its parent directory created.
func Open(dsn string) (*Store, error) {
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create recording directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writes from concurrent streams share one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS recordings (
			id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			path TEXT NOT NULL,
			model TEXT,
			status_code INTEGER,
			finish_reason TEXT,
			chunks INTEGER,
			error TEXT,
			created_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS recording_payloads (
			recording_id TEXT NOT NULL,
			name TEXT NOT NULL,
			body BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (recording_id, name),
			FOREIGN KEY (recording_id) REFERENCES recordings(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS recording_chunks (
			recording_id TEXT NOT NULL,
			name TEXT NOT NULL,
			seq INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (recording_id, name, seq),
			FOREIGN KEY (recording_id) REFERENCES recordings(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_created ON recordings(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) Start(ctx context.Context, rec *Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `INSERT INTO recordings (id, method, path, model, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, rec.ID, rec.Method, rec.Path, rec.Model, rec.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

func (s *Store) Payload(ctx context.Context, id, name string, body []byte) error {
	query := `INSERT INTO recording_payloads (recording_id, name, body, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(recording_id, name) DO UPDATE SET body = excluded.body, created_at = excluded.created_at`
	if _, err := s.db.ExecContext(ctx, query, id, name, nonNil(body), time.Now()); err != nil {
		return fmt.Errorf("failed to store payload %s: %w", name, err)
	}
	return nil
}

func (s *Store) Chunk(ctx context.Context, id, name string, data []byte) error {
	query := `INSERT INTO recording_chunks (recording_id, name, seq, data, created_at)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ? FROM recording_chunks WHERE recording_id = ? AND name = ?`
	if _, err := s.db.ExecContext(ctx, query, id, name, nonNil(data), time.Now(), id, name); err != nil {
		return fmt.Errorf("failed to store chunk %s: %w", name, err)
	}
	return nil
}

func (s *Store) Finish(ctx context.Context, id string, res Result) error {
	query := `UPDATE recordings SET status_code = ?, finish_reason = ?, chunks = ?, error = ?, completed_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, res.StatusCode, res.FinishReason, res.Chunks, res.Error, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to finish recording: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Get loads a recording and its result.
func (s *Store) Get(ctx context.Context, id string) (*Recording, *Result, error) {
	query := `SELECT id, method, path, model, status_code, finish_reason, chunks, error, created_at
		FROM recordings WHERE id = ?`

	var rec Recording
	var model, finishReason, errText sql.NullString
	var status, chunks sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Method, &rec.Path, &model, &status, &finishReason, &chunks, &errText, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query recording: %w", err)
	}

	rec.Model = model.String
	res := &Result{
		StatusCode:   int(status.Int64),
		FinishReason: finishReason.String,
		Chunks:       int(chunks.Int64),
		Error:        errText.String,
	}
	return &rec, res, nil
}

// LoadPayload returns the payload stored under name.
func (s *Store) LoadPayload(ctx context.Context, id, name string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM recording_payloads WHERE recording_id = ? AND name = ?`, id, name,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query payload: %w", err)
	}
	return body, nil
}

// LoadStream returns the chunks stored under name, concatenated in order.
func (s *Store) LoadStream(ctx context.Context, id, name string) ([]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM recording_chunks WHERE recording_id = ? AND name = ? ORDER BY seq`, id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		buf.Write(data)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
