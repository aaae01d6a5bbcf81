package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/quells-bot/unified-chat/internal/models"
	"github.com/quells-bot/unified-chat/llm"
)

// SQLiteStore keeps conversations in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex // serializes appends within the process
}

// NewSQLiteStore opens (creating if needed) the database at path and applies
// the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Writes go through one connection so position allocation never races
	// inside the driver pool.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) LoadHistory(ctx context.Context, principal string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, principal, role, content, position, created_at
		FROM message
		WHERE principal = ?
		ORDER BY position ASC`, principal)
	if err != nil {
		return nil, storageErr("load history", err)
	}
	defer rows.Close()

	history := []models.Message{}
	for rows.Next() {
		var (
			m       models.Message
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.Principal, &role, &m.Content, &m.Position, &created); err != nil {
			return nil, storageErr("load history", err)
		}
		if m.Role, err = llm.ParseRole(role); err != nil {
			return nil, storageErr("load history", err)
		}
		m.CreatedAt = time.Unix(0, created).UTC()
		history = append(history, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("load history", err)
	}
	return history, nil
}

func (s *SQLiteStore) Append(ctx context.Context, principal string, role llm.Role, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, storageErr("append", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) FROM message WHERE principal = ?`, principal,
	).Scan(&last)
	if err != nil {
		return models.Message{}, storageErr("append", err)
	}

	m := models.Message{
		ID:        uuid.NewString(),
		Principal: principal,
		Role:      role,
		Content:   content,
		Position:  last + 1,
		CreatedAt: time.Now().UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO message (id, principal, role, content, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.Principal, string(m.Role), m.Content, m.Position, m.CreatedAt.UnixNano())
	if err != nil {
		return models.Message{}, storageErr("append", wrapSQLiteError(err))
	}
	if err := tx.Commit(); err != nil {
		return models.Message{}, storageErr("append", wrapSQLiteError(err))
	}
	return m, nil
}

func (s *SQLiteStore) LoadError(ctx context.Context, principal string) (*models.ErrorRecord, error) {
	var (
		kind     string
		rec      models.ErrorRecord
		recorded int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, message, recorded_at FROM error_record WHERE principal = ?`, principal,
	).Scan(&kind, &rec.Message, &recorded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("load error", err)
	}
	if rec.Kind, err = llm.ParseErrorKind(kind); err != nil {
		return nil, storageErr("load error", err)
	}
	rec.RecordedAt = time.Unix(0, recorded).UTC()
	return &rec, nil
}

func (s *SQLiteStore) RecordError(ctx context.Context, principal string, rec models.ErrorRecord) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_record (principal, kind, message, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (principal) DO UPDATE SET
			kind = excluded.kind,
			message = excluded.message,
			recorded_at = excluded.recorded_at`,
		principal, rec.Kind.String(), rec.Message, rec.RecordedAt.UnixNano())
	if err != nil {
		return storageErr("record error", err)
	}
	return nil
}

func (s *SQLiteStore) ClearError(ctx context.Context, principal string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM error_record WHERE principal = ?`, principal); err != nil {
		return storageErr("clear error", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func wrapSQLiteError(err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrConflict, err.Error())
	}
	return err
}
