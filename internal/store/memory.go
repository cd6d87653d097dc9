package store

import (
	"context"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

type keyEntry struct {
	value     string
	expiresAt time.Time
}

type checklistKey struct {
	subjectID, checklistType, itemID string
}

// InMemoryStore is a simple in-memory store for artifacts, idempotency keys,
// documents, profiles and checklists. All state is lost on restart.
type InMemoryStore struct {
	mu         sync.RWMutex
	now        func() time.Time
	artifacts  map[string]models.Artifact
	keys       map[string]keyEntry
	documents  map[int64]models.Document
	nextDocID  int64
	profiles   map[string]models.Profile
	checklists map[checklistKey]models.ChecklistItem
}

// NewInMemoryStore creates a new in-memory store. Only WithClock is honoured.
func NewInMemoryStore(opts ...Option) *InMemoryStore {
	cfg := applyOpts(opts)
	return &InMemoryStore{
		now:        cfg.Clock,
		artifacts:  make(map[string]models.Artifact),
		keys:       make(map[string]keyEntry),
		documents:  make(map[int64]models.Document),
		profiles:   make(map[string]models.Profile),
		checklists: make(map[checklistKey]models.ChecklistItem),
	}
}

func (s *InMemoryStore) PutArtifact(ctx context.Context, a models.Artifact) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.Handle = uuid.NewString()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	s.artifacts[a.Handle] = a
	slog.Debug("InMemoryStore.PutArtifact", "handle", a.Handle, "kind", a.Kind, "expiresAt", a.ExpiresAt)
	return a.Handle, nil
}

func (s *InMemoryStore) GetArtifact(ctx context.Context, handle string) (models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[handle]
	if !ok || a.Expired(s.now()) {
		return models.Artifact{}, models.ErrArtifactNotFound
	}
	return a, nil
}

func (s *InMemoryStore) DeleteArtifact(ctx context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, handle)
	return nil
}

func (s *InMemoryStore) DeleteArtifactsByKind(ctx context.Context, subjectID string, kind models.ArtifactKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, a := range s.artifacts {
		if a.SubjectID == subjectID && a.Kind == kind {
			delete(s.artifacts, h)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) DeleteExpiredArtifacts(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for h, a := range s.artifacts {
		if a.Expired(now) {
			delete(s.artifacts, h)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) LookupKey(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.keys[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *InMemoryStore) RememberKey(ctx context.Context, key, value string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.keys[key]; ok && now.Before(e.expiresAt) {
		return e.value, nil
	}
	s.keys[key] = keyEntry{value: value, expiresAt: now.Add(ttl)}
	return value, nil
}

func (s *InMemoryStore) PutKey(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = keyEntry{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryStore) DeleteExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.keys {
		if !now.Before(e.expiresAt) {
			delete(s.keys, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) SaveDocument(ctx context.Context, subjectID string, doc models.Document) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDocID++
	now := s.now()
	doc.ID = s.nextDocID
	doc.SubjectID = subjectID
	doc.CreatedAt, doc.UpdatedAt = now, now
	s.documents[doc.ID] = doc
	return doc.ID, nil
}

func (s *InMemoryStore) GetDocument(ctx context.Context, id int64, subjectID string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok || doc.SubjectID != subjectID {
		return models.Document{}, models.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *InMemoryStore) ListDocuments(ctx context.Context, subjectID string) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []models.Document
	for _, doc := range s.documents {
		if doc.SubjectID == subjectID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *InMemoryStore) DeleteDocument(ctx context.Context, id int64, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok || doc.SubjectID != subjectID {
		return models.ErrDocumentNotFound
	}
	delete(s.documents, id)
	return nil
}

func (s *InMemoryStore) GetProfile(ctx context.Context, subjectID string) (models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := make(models.Profile)
	maps.Copy(p, s.profiles[subjectID])
	return p, nil
}

func (s *InMemoryStore) SaveProfile(ctx context.Context, subjectID string, profile models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := make(models.Profile, len(profile))
	maps.Copy(p, profile)
	s.profiles[subjectID] = p
	return nil
}

func (s *InMemoryStore) SetChecklistItem(ctx context.Context, subjectID, checklistType, itemID string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checklists[checklistKey{subjectID, checklistType, itemID}] = models.ChecklistItem{
		ChecklistType: checklistType,
		ItemID:        itemID,
		Done:          done,
		UpdatedAt:     s.now(),
	}
	return nil
}

func (s *InMemoryStore) GetChecklist(ctx context.Context, subjectID, checklistType string) ([]models.ChecklistItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var items []models.ChecklistItem
	for k, item := range s.checklists {
		if k.subjectID == subjectID && k.checklistType == checklistType {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ItemID < items[j].ItemID })
	return items, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }
