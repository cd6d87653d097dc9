// Package store provides storage backends for MemberFlow.
//
// It includes an in-memory store for tests and local runs, plus SQLite and
// PostgreSQL stores for artifacts, idempotency keys, documents, profiles and
// checklist progress.
package store

import (
	"context"
	"strings"
	"time"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Opts holds configuration for store constructors.
type Opts struct {
	DSN   string           // database connection string or file path
	Clock func() time.Time // time source for expiry checks; defaults to time.Now
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Clock = now }
}

func applyOpts(opts []Option) Opts {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return cfg
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// ArtifactStore persists generated content under short-lived handles.
// Expiry is lazy: reading an expired artifact reports models.ErrArtifactNotFound.
type ArtifactStore interface {
	// PutArtifact stores a and returns its newly issued handle. Any handle set on a is ignored.
	PutArtifact(ctx context.Context, a models.Artifact) (string, error)
	// GetArtifact returns the live artifact for handle.
	GetArtifact(ctx context.Context, handle string) (models.Artifact, error)
	// DeleteArtifact removes the artifact; deleting a missing handle is not an error.
	DeleteArtifact(ctx context.Context, handle string) error
	// DeleteArtifactsByKind removes every artifact of kind owned by subjectID.
	DeleteArtifactsByKind(ctx context.Context, subjectID string, kind models.ArtifactKind) (int64, error)
	// DeleteExpiredArtifacts removes artifacts whose expiry is at or before now.
	DeleteExpiredArtifacts(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyStore maps idempotency keys to previously produced results for a bounded window.
type IdempotencyStore interface {
	// LookupKey returns the live value stored under key.
	LookupKey(ctx context.Context, key string) (string, bool, error)
	// RememberKey stores value under key unless a live entry exists, and returns
	// the value associated with key afterwards.
	RememberKey(ctx context.Context, key, value string, ttl time.Duration) (string, error)
	// PutKey stores value under key, replacing any existing entry.
	PutKey(ctx context.Context, key, value string, ttl time.Duration) error
	// DeleteExpiredKeys removes entries whose expiry is at or before now.
	DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error)
}

// DocumentCatalog is the persistent catalog of saved documents.
type DocumentCatalog interface {
	SaveDocument(ctx context.Context, subjectID string, doc models.Document) (int64, error)
	GetDocument(ctx context.Context, id int64, subjectID string) (models.Document, error)
	ListDocuments(ctx context.Context, subjectID string) ([]models.Document, error)
	// DeleteDocument removes a document owned by subjectID, or reports models.ErrDocumentNotFound.
	DeleteDocument(ctx context.Context, id int64, subjectID string) error
}

// ProfileStore holds the member profile fields used for pre-fill.
type ProfileStore interface {
	// GetProfile returns the stored profile, or an empty profile when none exists.
	GetProfile(ctx context.Context, subjectID string) (models.Profile, error)
	SaveProfile(ctx context.Context, subjectID string, profile models.Profile) error
}

// ChecklistStore records checklist item progress, unique per (subject, checklist type, item).
type ChecklistStore interface {
	SetChecklistItem(ctx context.Context, subjectID, checklistType, itemID string, done bool) error
	GetChecklist(ctx context.Context, subjectID, checklistType string) ([]models.ChecklistItem, error)
}

// Store is the full persistence surface used by the service.
type Store interface {
	ArtifactStore
	IdempotencyStore
	DocumentCatalog
	ProfileStore
	ChecklistStore
	Close() error
}

// Compile-time checks that every backend implements Store.
var (
	_ Store = (*InMemoryStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
