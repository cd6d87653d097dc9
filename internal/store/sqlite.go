// Package store provides storage backends for MemberFlow.
//
// This file implements an SQLite-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// SQLite allows a single writer; serialising connections avoids SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db, now: cfg.Clock}, nil
}

func (s *SQLiteStore) PutArtifact(ctx context.Context, a models.Artifact) (string, error) {
	content, err := encodeContent(a.Content)
	if err != nil {
		return "", err
	}
	a.Handle = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (handle, subject_id, flow_type, kind, content, ai_generated, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Handle, a.SubjectID, string(a.Flow), string(a.Kind), content, a.AIGenerated,
		toMillis(a.CreatedAt), toMillis(a.ExpiresAt),
	)
	if err != nil {
		slog.Error("SQLiteStore PutArtifact failed", "error", err, "subject", a.SubjectID)
		return "", fmt.Errorf("failed to insert artifact: %w", err)
	}
	slog.Debug("SQLiteStore PutArtifact succeeded", "handle", a.Handle, "kind", a.Kind)
	return a.Handle, nil
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, handle string) (models.Artifact, error) {
	var a models.Artifact
	var flow, kind, content string
	var created, expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT handle, subject_id, flow_type, kind, content, ai_generated, created_at, expires_at
		 FROM artifacts WHERE handle = ? AND expires_at > ?`,
		handle, toMillis(s.now()),
	).Scan(&a.Handle, &a.SubjectID, &flow, &kind, &content, &a.AIGenerated, &created, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Artifact{}, models.ErrArtifactNotFound
	}
	if err != nil {
		return models.Artifact{}, fmt.Errorf("failed to query artifact: %w", err)
	}
	a.Flow, a.Kind = models.FlowKind(flow), models.ArtifactKind(kind)
	a.CreatedAt, a.ExpiresAt = fromMillis(created), fromMillis(expires)
	if a.Content, err = decodeContent([]byte(content)); err != nil {
		return models.Artifact{}, err
	}
	return a, nil
}

func (s *SQLiteStore) DeleteArtifact(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE handle = ?`, handle); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteArtifactsByKind(ctx context.Context, subjectID string, kind models.ArtifactKind) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE subject_id = ? AND kind = ?`, subjectID, string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to delete artifacts by kind: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeleteExpiredArtifacts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired artifacts: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) LookupKey(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM idempotency_keys WHERE key = ? AND expires_at > ?`, key, toMillis(s.now()),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) RememberKey(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
		 WHERE idempotency_keys.expires_at <= ?`,
		key, value, toMillis(now.Add(ttl)), toMillis(now),
	)
	if err != nil {
		return "", fmt.Errorf("idempotency remember failed: %w", err)
	}
	var current string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM idempotency_keys WHERE key = ?`, key).Scan(&current); err != nil {
		return "", fmt.Errorf("idempotency read-back failed: %w", err)
	}
	return current, nil
}

func (s *SQLiteStore) PutKey(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, toMillis(s.now().Add(ttl)),
	)
	if err != nil {
		return fmt.Errorf("idempotency put failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) SaveDocument(ctx context.Context, subjectID string, doc models.Document) (int64, error) {
	now := toMillis(s.now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (subject_id, type, title, content, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		subjectID, string(doc.Type), doc.Title, doc.Content, nilIfEmpty(doc.Metadata), now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveDocument failed", "error", err, "subject", subjectID)
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return res.LastInsertId()
}

const sqliteDocumentColumns = `id, subject_id, type, title, content, metadata, created_at, updated_at`

func scanSQLiteDocument(scan func(dest ...any) error) (models.Document, error) {
	var d models.Document
	var typ string
	var metadata sql.NullString
	var created, updated int64
	if err := scan(&d.ID, &d.SubjectID, &typ, &d.Title, &d.Content, &metadata, &created, &updated); err != nil {
		return d, err
	}
	d.Type = models.FlowKind(typ)
	d.Metadata = metadata.String
	d.CreatedAt, d.UpdatedAt = fromMillis(created), fromMillis(updated)
	return d, nil
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id int64, subjectID string) (models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteDocumentColumns+` FROM documents WHERE id = ? AND subject_id = ?`, id, subjectID)
	d, err := scanSQLiteDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, models.ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to query document: %w", err)
	}
	return d, nil
}

func (s *SQLiteStore) ListDocuments(ctx context.Context, subjectID string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteDocumentColumns+` FROM documents WHERE subject_id = ? ORDER BY id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanSQLiteDocument(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate document rows: %w", err)
	}
	return docs, nil
}

func (s *SQLiteStore) DeleteDocument(ctx context.Context, id int64, subjectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ? AND subject_id = ?`, id, subjectID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, subjectID string) (models.Profile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM profiles WHERE subject_id = ?`, subjectID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return decodeProfile([]byte(raw))
}

func (s *SQLiteStore) SaveProfile(ctx context.Context, subjectID string, profile models.Profile) error {
	raw, err := encodeProfile(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (subject_id, fields, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET fields = excluded.fields, updated_at = excluded.updated_at`,
		subjectID, raw, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetChecklistItem(ctx context.Context, subjectID, checklistType, itemID string, done bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checklist_items (subject_id, checklist_type, item_id, done, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id, checklist_type, item_id) DO UPDATE SET done = excluded.done, updated_at = excluded.updated_at`,
		subjectID, checklistType, itemID, done, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("failed to set checklist item: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetChecklist(ctx context.Context, subjectID, checklistType string) ([]models.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checklist_type, item_id, done, updated_at FROM checklist_items
		 WHERE subject_id = ? AND checklist_type = ? ORDER BY item_id`, subjectID, checklistType)
	if err != nil {
		return nil, fmt.Errorf("failed to query checklist: %w", err)
	}
	defer rows.Close()

	var items []models.ChecklistItem
	for rows.Next() {
		var item models.ChecklistItem
		var updated int64
		if err := rows.Scan(&item.ChecklistType, &item.ItemID, &item.Done, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan checklist row: %w", err)
		}
		item.UpdatedAt = fromMillis(updated)
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
