package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/MemberFlow/internal/models"
	"github.com/BTreeMap/MemberFlow/internal/render"
	"github.com/BTreeMap/MemberFlow/internal/store"
)

// DefaultSavedTTL is the lifetime of an artifact saved as a document.
const DefaultSavedTTL = 24 * time.Hour

// Library manages what a member keeps after a flow completes: opening
// artifacts, saving them to the document catalog and clearing results.
type Library struct {
	artifacts store.ArtifactStore
	idem      store.IdempotencyStore
	catalog   store.DocumentCatalog
	savedTTL  time.Duration
	window    time.Duration
	now       func() time.Time
}

// NewLibrary creates a Library. Non-positive durations select the defaults.
func NewLibrary(artifacts store.ArtifactStore, idem store.IdempotencyStore, catalog store.DocumentCatalog, savedTTL, window time.Duration) *Library {
	if savedTTL <= 0 {
		savedTTL = DefaultSavedTTL
	}
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Library{artifacts: artifacts, idem: idem, catalog: catalog, savedTTL: savedTTL, window: window, now: time.Now}
}

// Open returns the live artifact for handle if it belongs to subjectID.
// Artifacts owned by someone else are reported as not found.
func (l *Library) Open(ctx context.Context, subjectID, handle string) (models.Artifact, error) {
	a, err := l.artifacts.GetArtifact(ctx, handle)
	if err != nil {
		return models.Artifact{}, err
	}
	if a.SubjectID != subjectID {
		slog.Debug("Library.Open: handle owned by another subject", "handle", handle)
		return models.Artifact{}, models.ErrArtifactNotFound
	}
	return a, nil
}

// Save copies the artifact at handle into the document catalog and stores a
// saved artifact with the longer lifetime. Saving the same handle again within
// the dedup window returns the first result.
func (l *Library) Save(ctx context.Context, subjectID, handle string) (models.SavedDocument, error) {
	key := "save:" + handle + ":" + subjectID
	if value, ok, err := l.idem.LookupKey(ctx, key); err != nil {
		slog.Warn("Library.Save: idempotency lookup failed", "error", err)
	} else if ok {
		if saved, ok := l.existing(ctx, subjectID, value); ok {
			return saved, nil
		}
	}

	src, err := l.Open(ctx, subjectID, handle)
	if err != nil {
		return models.SavedDocument{}, err
	}

	meta, err := json.Marshal(map[string]any{
		"artifact_handle": handle,
		"ai_generated":    src.AIGenerated,
	})
	if err != nil {
		return models.SavedDocument{}, fmt.Errorf("encode document metadata: %w", err)
	}
	docID, err := l.catalog.SaveDocument(ctx, subjectID, models.Document{
		Type:     src.Flow,
		Title:    src.Content.Title,
		Content:  render.Markdown(src.Content),
		Metadata: string(meta),
	})
	if err != nil {
		return models.SavedDocument{}, fmt.Errorf("save document: %w", err)
	}

	now := l.now()
	saved := src
	saved.Kind = models.ArtifactSaved
	saved.CreatedAt = now
	saved.ExpiresAt = now.Add(l.savedTTL)
	savedHandle, err := l.artifacts.PutArtifact(ctx, saved)
	if err != nil {
		return models.SavedDocument{}, fmt.Errorf("store saved artifact: %w", err)
	}

	value := strconv.FormatInt(docID, 10) + ":" + savedHandle
	current, err := l.idem.RememberKey(ctx, key, value, l.window)
	if err != nil {
		slog.Warn("Library.Save: idempotency remember failed", "error", err)
	} else if current != value {
		if winner, ok := l.existing(ctx, subjectID, current); ok {
			l.discard(ctx, subjectID, docID, savedHandle)
			return winner, nil
		}
		if err := l.idem.PutKey(ctx, key, value, l.window); err != nil {
			slog.Warn("Library.Save: replacing stale idempotency entry failed", "error", err)
		}
	}

	slog.Info("Library.Save: document saved", "subject", subjectID, "documentID", docID, "handle", savedHandle)
	return models.SavedDocument{DocumentID: docID, Handle: savedHandle, ExpiresAt: saved.ExpiresAt}, nil
}

// existing resolves an idempotency value of the form "<docID>:<savedHandle>".
func (l *Library) existing(ctx context.Context, subjectID, value string) (models.SavedDocument, bool) {
	idPart, savedHandle, found := strings.Cut(value, ":")
	if !found {
		return models.SavedDocument{}, false
	}
	docID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return models.SavedDocument{}, false
	}
	a, err := l.Open(ctx, subjectID, savedHandle)
	if err != nil {
		return models.SavedDocument{}, false
	}
	if _, err := l.catalog.GetDocument(ctx, docID, subjectID); err != nil {
		return models.SavedDocument{}, false
	}
	return models.SavedDocument{DocumentID: docID, Handle: savedHandle, ExpiresAt: a.ExpiresAt, Reused: true}, true
}

func (l *Library) discard(ctx context.Context, subjectID string, docID int64, savedHandle string) {
	if err := l.catalog.DeleteDocument(ctx, docID, subjectID); err != nil {
		slog.Warn("Library.discard: delete duplicate document failed", "documentID", docID, "error", err)
	}
	if err := l.artifacts.DeleteArtifact(ctx, savedHandle); err != nil {
		slog.Warn("Library.discard: delete duplicate artifact failed", "handle", savedHandle, "error", err)
	}
}

// Clear deletes every artifact of kind owned by subjectID.
func (l *Library) Clear(ctx context.Context, subjectID string, kind models.ArtifactKind) (int64, error) {
	n, err := l.artifacts.DeleteArtifactsByKind(ctx, subjectID, kind)
	if err != nil {
		return 0, fmt.Errorf("clear %s results: %w", kind, err)
	}
	slog.Info("Library.Clear: results cleared", "subject", subjectID, "kind", kind, "count", n)
	return n, nil
}
