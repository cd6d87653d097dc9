package flow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/MemberFlow/internal/metrics"
	"github.com/BTreeMap/MemberFlow/internal/models"
	"github.com/BTreeMap/MemberFlow/internal/store"
)

// Dispatcher defaults.
const (
	DefaultPreviewTTL  = time.Hour
	DefaultDedupWindow = 24 * time.Hour
	DefaultAITimeout   = 60 * time.Second
	DefaultMaxTokens   = 2000
)

// Dispatcher turns a completed conversation into a stored artifact. It tries
// the AI backend first when one is configured and falls back to templates on
// any AI failure. Repeated completions of the same source by the same subject
// within the dedup window return the artifact created the first time.
type Dispatcher struct {
	registry    *Registry
	ai          Completer
	templates   *TemplateGenerator
	artifacts   store.ArtifactStore
	idem        store.IdempotencyStore
	previewTTL  time.Duration
	dedupWindow time.Duration
	aiTimeout   time.Duration
	maxTokens   int
	now         func() time.Time
	metrics     *metrics.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPreviewTTL sets the lifetime of freshly generated artifacts.
func WithPreviewTTL(d time.Duration) DispatcherOption {
	return func(g *Dispatcher) {
		if d > 0 {
			g.previewTTL = d
		}
	}
}

// WithDedupWindow sets how long a completion is remembered for deduplication.
func WithDedupWindow(d time.Duration) DispatcherOption {
	return func(g *Dispatcher) {
		if d > 0 {
			g.dedupWindow = d
		}
	}
}

// WithAITimeout bounds each AI call.
func WithAITimeout(d time.Duration) DispatcherOption {
	return func(g *Dispatcher) {
		if d > 0 {
			g.aiTimeout = d
		}
	}
}

// WithMaxTokens sets the completion token limit.
func WithMaxTokens(n int) DispatcherOption {
	return func(g *Dispatcher) {
		if n > 0 {
			g.maxTokens = n
		}
	}
}

// WithClock overrides the dispatcher's time source.
func WithClock(now func() time.Time) DispatcherOption {
	return func(g *Dispatcher) {
		if now != nil {
			g.now = now
		}
	}
}

// WithMetrics records generation outcomes on m.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(g *Dispatcher) { g.metrics = m }
}

// NewDispatcher creates a Dispatcher. ai may be nil, in which case only templates are used.
func NewDispatcher(registry *Registry, ai Completer, artifacts store.ArtifactStore, idem store.IdempotencyStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:    registry,
		ai:          ai,
		templates:   NewTemplateGenerator(),
		artifacts:   artifacts,
		idem:        idem,
		previewTTL:  DefaultPreviewTTL,
		dedupWindow: DefaultDedupWindow,
		aiTimeout:   DefaultAITimeout,
		maxTokens:   DefaultMaxTokens,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Generate implements Generator.
func (d *Dispatcher) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationOutcome, error) {
	set, err := d.registry.Lookup(string(req.Flow))
	if err != nil {
		return models.GenerationOutcome{}, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	sourceID := req.SourceID
	if sourceID == "" {
		sourceID = SourceID(req.Flow, req.Answers)
	}
	key := idempotencyKey(sourceID, req.Identity.ID)

	if outcome, ok := d.reuse(ctx, key, req.Identity.ID); ok {
		slog.Info("Dispatcher.Generate: returning existing artifact", "flowType", req.Flow, "subject", req.Identity.ID, "handle", outcome.Handle)
		d.metrics.ObserveGeneration(string(req.Flow), metrics.SourceReused)
		return outcome, nil
	}

	content, aiGenerated, err := d.produce(ctx, set, req)
	if err != nil {
		slog.Error("Dispatcher.Generate: template generation failed", "flowType", req.Flow, "error", err)
		d.metrics.GenerationFailed(string(req.Flow))
		return models.GenerationOutcome{}, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	now := d.now()
	artifact := models.Artifact{
		SubjectID:   req.Identity.ID,
		Flow:        set.Flow,
		Kind:        models.ArtifactPreview,
		Content:     content,
		AIGenerated: aiGenerated,
		CreatedAt:   now,
		ExpiresAt:   now.Add(d.previewTTL),
	}
	handle, err := d.artifacts.PutArtifact(ctx, artifact)
	if err != nil {
		slog.Error("Dispatcher.Generate: persisting artifact failed", "flowType", req.Flow, "subject", req.Identity.ID, "error", err)
		d.metrics.GenerationFailed(string(req.Flow))
		return models.GenerationOutcome{}, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	artifact.Handle = handle

	if winner, ok := d.claim(ctx, key, handle, req.Identity.ID); ok {
		slog.Info("Dispatcher.Generate: concurrent completion won, discarding duplicate", "subject", req.Identity.ID, "handle", winner.Handle)
		if err := d.artifacts.DeleteArtifact(ctx, handle); err != nil {
			slog.Warn("Dispatcher.Generate: failed to delete duplicate artifact", "handle", handle, "error", err)
		}
		d.metrics.ObserveGeneration(string(req.Flow), metrics.SourceReused)
		return winner, nil
	}

	slog.Info("Dispatcher.Generate: artifact created", "flowType", set.Flow, "subject", req.Identity.ID, "handle", handle, "aiGenerated", aiGenerated)
	source := metrics.SourceTemplate
	if aiGenerated {
		source = metrics.SourceAI
	}
	d.metrics.ObserveGeneration(string(set.Flow), source)
	return outcomeFor(artifact, false), nil
}

// produce returns generated content and whether it came from the AI backend.
func (d *Dispatcher) produce(ctx context.Context, set models.QuestionSet, req models.GenerationRequest) (models.Content, bool, error) {
	if d.ai != nil && d.ai.IsConfigured() {
		aiCtx, cancel := context.WithTimeout(ctx, d.aiTimeout)
		content, err := generateWithAI(aiCtx, d.ai, set, req, d.maxTokens)
		cancel()
		if err == nil {
			return content, true, nil
		}
		var aiErr *models.AIBackendError
		if errors.As(err, &aiErr) {
			slog.Warn("Dispatcher.produce: AI generation failed, falling back to template",
				"flowType", set.Flow, "reason", aiErr.Reason, "statusCode", aiErr.StatusCode, "error", aiErr.Err)
			d.metrics.AIFallback(string(aiErr.Reason))
		} else {
			slog.Warn("Dispatcher.produce: AI generation failed, falling back to template", "flowType", set.Flow, "error", err)
			d.metrics.AIFallback("other")
		}
	}
	content, err := d.templates.Generate(set, req, d.now())
	return content, false, err
}

// reuse returns the live artifact previously recorded under key for subjectID.
func (d *Dispatcher) reuse(ctx context.Context, key, subjectID string) (models.GenerationOutcome, bool) {
	handle, ok, err := d.idem.LookupKey(ctx, key)
	if err != nil {
		slog.Warn("Dispatcher.reuse: idempotency lookup failed", "error", err)
		return models.GenerationOutcome{}, false
	}
	if !ok {
		return models.GenerationOutcome{}, false
	}
	return d.liveOutcome(ctx, handle, subjectID)
}

// claim records handle under key. When another live artifact already holds the
// key it is returned instead. An entry pointing at an expired artifact is replaced.
func (d *Dispatcher) claim(ctx context.Context, key, handle, subjectID string) (models.GenerationOutcome, bool) {
	current, err := d.idem.RememberKey(ctx, key, handle, d.dedupWindow)
	if err != nil {
		slog.Warn("Dispatcher.claim: idempotency remember failed", "error", err)
		return models.GenerationOutcome{}, false
	}
	if current == handle {
		return models.GenerationOutcome{}, false
	}
	if winner, ok := d.liveOutcome(ctx, current, subjectID); ok {
		return winner, true
	}
	if err := d.idem.PutKey(ctx, key, handle, d.dedupWindow); err != nil {
		slog.Warn("Dispatcher.claim: replacing stale idempotency entry failed", "error", err)
	}
	return models.GenerationOutcome{}, false
}

func (d *Dispatcher) liveOutcome(ctx context.Context, handle, subjectID string) (models.GenerationOutcome, bool) {
	a, err := d.artifacts.GetArtifact(ctx, handle)
	if err != nil {
		if !errors.Is(err, models.ErrArtifactNotFound) {
			slog.Warn("Dispatcher.liveOutcome: artifact lookup failed", "handle", handle, "error", err)
		}
		return models.GenerationOutcome{}, false
	}
	if a.SubjectID != subjectID {
		return models.GenerationOutcome{}, false
	}
	return outcomeFor(a, true), true
}

func outcomeFor(a models.Artifact, reused bool) models.GenerationOutcome {
	return models.GenerationOutcome{
		Handle:      a.Handle,
		Title:       a.Content.Title,
		AIGenerated: a.AIGenerated,
		Reused:      reused,
		ExpiresAt:   a.ExpiresAt,
	}
}

func idempotencyKey(sourceID, subjectID string) string {
	return "gen:" + sourceID + ":" + subjectID
}

// SourceID derives a stable identifier for a completion from its flow and answers.
func SourceID(flow models.FlowKind, answers models.Answers) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(flow))
	for _, k := range keys {
		a := answers[k]
		fmt.Fprintf(h, "\x00%s\x01%t", k, a.IsMulti())
		for _, v := range a.Values() {
			h.Write([]byte{0x02})
			h.Write([]byte(strings.TrimSpace(v)))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
