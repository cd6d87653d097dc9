// Package store provides storage backends for MemberFlow.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	cfg := applyOpts(opts)
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db, now: cfg.Clock}, nil
}

func (s *PostgresStore) PutArtifact(ctx context.Context, a models.Artifact) (string, error) {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.Handle, a.SubjectID, string(a.Flow), string(a.Kind), content, a.AIGenerated, a.CreatedAt, a.ExpiresAt,
	)
	if err != nil {
		slog.Error("PostgresStore PutArtifact failed", "error", err, "subject", a.SubjectID)
		return "", fmt.Errorf("failed to insert artifact: %w", err)
	}
	slog.Debug("PostgresStore PutArtifact succeeded", "handle", a.Handle, "kind", a.Kind)
	return a.Handle, nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, handle string) (models.Artifact, error) {
	var a models.Artifact
	var flow, kind string
	var content []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT handle, subject_id, flow_type, kind, content, ai_generated, created_at, expires_at
		 FROM artifacts WHERE handle = $1 AND expires_at > $2`,
		handle, s.now(),
	).Scan(&a.Handle, &a.SubjectID, &flow, &kind, &content, &a.AIGenerated, &a.CreatedAt, &a.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Artifact{}, models.ErrArtifactNotFound
	}
	if err != nil {
		return models.Artifact{}, fmt.Errorf("failed to query artifact: %w", err)
	}
	a.Flow, a.Kind = models.FlowKind(flow), models.ArtifactKind(kind)
	if a.Content, err = decodeContent(content); err != nil {
		return models.Artifact{}, err
	}
	return a, nil
}

func (s *PostgresStore) DeleteArtifact(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE handle = $1`, handle); err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteArtifactsByKind(ctx context.Context, subjectID string, kind models.ArtifactKind) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE subject_id = $1 AND kind = $2`, subjectID, string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to delete artifacts by kind: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) DeleteExpiredArtifacts(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired artifacts: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) LookupKey(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM idempotency_keys WHERE key = $1 AND expires_at > $2`, key, s.now(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) RememberKey(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at
		 WHERE idempotency_keys.expires_at <= $4`,
		key, value, now.Add(ttl), now,
	)
	if err != nil {
		return "", fmt.Errorf("idempotency remember failed: %w", err)
	}
	var current string
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM idempotency_keys WHERE key = $1`, key).Scan(&current); err != nil {
		return "", fmt.Errorf("idempotency read-back failed: %w", err)
	}
	return current, nil
}

func (s *PostgresStore) PutKey(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_keys (key, value, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`,
		key, value, s.now().Add(ttl),
	)
	if err != nil {
		return fmt.Errorf("idempotency put failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) SaveDocument(ctx context.Context, subjectID string, doc models.Document) (int64, error) {
	now := s.now()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO documents (subject_id, type, title, content, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`,
		subjectID, string(doc.Type), doc.Title, doc.Content, nilIfEmpty(doc.Metadata), now,
	).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore SaveDocument failed", "error", err, "subject", subjectID)
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return id, nil
}

const postgresDocumentColumns = `id, subject_id, type, title, content, metadata, created_at, updated_at`

func scanPostgresDocument(scan func(dest ...any) error) (models.Document, error) {
	var d models.Document
	var typ string
	var metadata sql.NullString
	if err := scan(&d.ID, &d.SubjectID, &typ, &d.Title, &d.Content, &metadata, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return d, err
	}
	d.Type = models.FlowKind(typ)
	d.Metadata = metadata.String
	return d, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id int64, subjectID string) (models.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postgresDocumentColumns+` FROM documents WHERE id = $1 AND subject_id = $2`, id, subjectID)
	d, err := scanPostgresDocument(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, models.ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to query document: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, subjectID string) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postgresDocumentColumns+` FROM documents WHERE subject_id = $1 ORDER BY id`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		d, err := scanPostgresDocument(rows.Scan)
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

func (s *PostgresStore) DeleteDocument(ctx context.Context, id int64, subjectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND subject_id = $2`, id, subjectID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrDocumentNotFound
	}
	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, subjectID string) (models.Profile, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT fields FROM profiles WHERE subject_id = $1`, subjectID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return decodeProfile(raw)
}

func (s *PostgresStore) SaveProfile(ctx context.Context, subjectID string, profile models.Profile) error {
	raw, err := encodeProfile(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (subject_id, fields, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (subject_id) DO UPDATE SET fields = EXCLUDED.fields, updated_at = EXCLUDED.updated_at`,
		subjectID, raw, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetChecklistItem(ctx context.Context, subjectID, checklistType, itemID string, done bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checklist_items (subject_id, checklist_type, item_id, done, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subject_id, checklist_type, item_id) DO UPDATE SET done = EXCLUDED.done, updated_at = EXCLUDED.updated_at`,
		subjectID, checklistType, itemID, done, s.now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set checklist item: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChecklist(ctx context.Context, subjectID, checklistType string) ([]models.ChecklistItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checklist_type, item_id, done, updated_at FROM checklist_items
		 WHERE subject_id = $1 AND checklist_type = $2 ORDER BY item_id`, subjectID, checklistType)
	if err != nil {
		return nil, fmt.Errorf("failed to query checklist: %w", err)
	}
	defer rows.Close()

	var items []models.ChecklistItem
	for rows.Next() {
		var item models.ChecklistItem
		if err := rows.Scan(&item.ChecklistType, &item.ItemID, &item.Done, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checklist row: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
