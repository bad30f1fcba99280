// Copyright (c) 2026 dotandev
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package journal keeps a local history of signing operations in SQLite.
// It never stores PINs, keys or signature bytes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dotandev/padesign/internal/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1

	// DefaultTTL is how long entries are kept (180 days)
	DefaultTTL = 180 * 24 * time.Hour

	// DefaultMaxEntries caps the table size
	DefaultMaxEntries = 5000

	// timeLayout is fixed width so that text ordering matches time ordering.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

type Operation string

const (
	OpKeygen Operation = "keygen"
	OpSign   Operation = "sign"
	OpVerify Operation = "verify"
)

type Outcome string

const (
	OutcomeSigned    Outcome = "signed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeValid     Outcome = "valid"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeGenerated Outcome = "generated"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one recorded operation.
type Entry struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Operation      Operation `json:"operation"`
	Outcome        Outcome   `json:"outcome"`
	Document       string    `json:"document,omitempty"`
	DocumentSHA256 string    `json:"document_sha256,omitempty"`
	DocumentSize   int64     `json:"document_size,omitempty"`
	TokenMount     string    `json:"token_mount,omitempty"`
	Error          string    `json:"error,omitempty"`
	DurationMS     int64     `json:"duration_ms"`

	ToolVersion   string `json:"tool_version"`
	SchemaVersion int    `json:"schema_version"`
}

// Recorder is the write side used by signing sessions.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Store manages journal persistence in SQLite
type Store struct {
	db *sql.DB
}

// Open creates or opens the journal at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if path != ":memory:" {
		if err := os.Chmod(path, 0o600); err != nil {
			logger.Logger.Warn("Failed to set journal permissions", "error", err)
		}
	}
	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		operation TEXT NOT NULL,
		outcome TEXT NOT NULL,
		document TEXT,
		document_sha256 TEXT,
		document_size INTEGER,
		token_mount TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL,
		tool_version TEXT,
		schema_version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_created_at ON operations(created_at);
	CREATE INDEX IF NOT EXISTS idx_document_sha256 ON operations(document_sha256);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record inserts e, assigning an ID and timestamp when missing.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.Operation == "" || e.Outcome == "" {
		return fmt.Errorf("operation and outcome are required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.SchemaVersion = SchemaVersion

	query := `
	INSERT INTO operations (
		id, created_at, operation, outcome, document, document_sha256,
		document_size, token_mount, error, duration_ms, tool_version, schema_version
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.CreatedAt.UTC().Format(timeLayout), string(e.Operation), string(e.Outcome),
		e.Document, e.DocumentSHA256, e.DocumentSize, e.TokenMount, e.Error,
		e.DurationMS, e.ToolVersion, e.SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	logger.Logger.Debug("Operation recorded", "id", e.ID, "operation", e.Operation, "outcome", e.Outcome)
	return nil
}

// Load retrieves an entry by ID
func (s *Store) Load(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("journal entry not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load journal entry: %w", err)
	}
	return e, nil
}

// List returns recent entries, newest first
func (s *Store) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating journal: %w", err)
	}
	return entries, nil
}

// Cleanup removes entries older than ttl and keeps at most maxEntries
func (s *Store) Cleanup(ctx context.Context, ttl time.Duration, maxEntries int) error {
	cutoff := time.Now().UTC().Add(-ttl).Format(timeLayout)

	result, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE created_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete expired entries: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		logger.Logger.Debug("Cleaned up expired journal entries", "count", n)
	}

	if maxEntries <= 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operations`).Scan(&count); err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if count <= maxEntries {
		return nil
	}

	deleteOldest := `
		DELETE FROM operations
		WHERE id IN (
			SELECT id FROM operations
			ORDER BY created_at ASC
			LIMIT ?
		)
	`
	result, err = s.db.ExecContext(ctx, deleteOldest, count-maxEntries)
	if err != nil {
		return fmt.Errorf("failed to delete oldest entries: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		logger.Logger.Debug("Cleaned up excess journal entries", "count", n)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

const selectColumns = `
	SELECT id, created_at, operation, outcome, document, document_sha256,
	       document_size, token_mount, error, duration_ms, tool_version, schema_version
	FROM operations`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var createdAt, op, outcome string
	var document, sha, mount, errText, toolVersion sql.NullString
	var size sql.NullInt64

	if err := row.Scan(
		&e.ID, &createdAt, &op, &outcome, &document, &sha,
		&size, &mount, &errText, &e.DurationMS, &toolVersion, &e.SchemaVersion,
	); err != nil {
		return nil, err
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	e.CreatedAt = t
	e.Operation = Operation(op)
	e.Outcome = Outcome(outcome)
	e.Document = document.String
	e.DocumentSHA256 = sha.String
	e.DocumentSize = size.Int64
	e.TokenMount = mount.String
	e.Error = errText.String
	e.ToolVersion = toolVersion.String
	return &e, nil
}

// Nop discards entries. It stands in when no journal is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }
