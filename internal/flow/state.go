package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Message formatting constants
const (
	// PrefillHintFormat is the advisory hint shown when the profile already holds an answer
	PrefillHintFormat = "(From your profile: **%s**)"
	// LastQuestionNoticeFormat is appended to the final visible question of a flow
	LastQuestionNoticeFormat = "This is the last question. Once you answer, I'll generate your %s."
	// IntroTitlePlaceholder is replaced with the flow title in intro templates
	IntroTitlePlaceholder = "{title}"
)

// Generator produces an artifact once a conversation is complete.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationOutcome, error)
}

// Engine is the conversation state machine. It keeps no per-conversation state:
// every call is a pure step function of the flow type, the caller-supplied
// context and the profile, except for the generation triggered at completion.
type Engine struct {
	registry  *Registry
	generator Generator
}

// NewEngine creates an Engine over registry that hands completed flows to generator.
func NewEngine(registry *Registry, generator Generator) *Engine {
	return &Engine{registry: registry, generator: generator}
}

// Registry returns the question set registry the engine walks.
func (e *Engine) Registry() *Registry { return e.registry }

// Start opens a flow and asks its first question.
func (e *Engine) Start(flowType string, profile models.Profile) (models.Turn, error) {
	set, err := e.registry.Lookup(flowType)
	if err != nil {
		slog.Debug("Engine.Start: lookup failed", "flowType", flowType, "error", err)
		return models.Turn{}, err
	}

	first := set.Questions[0]
	answers := models.Answers{}
	isLast := remainingVisible(set, 0, answers) == 0

	intro := strings.ReplaceAll(set.Intro, IntroTitlePlaceholder, set.Title)
	message := composeMessage(set.Flow, first, profile, isLast, intro)

	slog.Debug("Engine.Start: flow started", "flowType", set.Flow, "questions", len(set.Questions))
	return models.Turn{
		FlowType: set.Flow,
		Message:  message,
		Question: first.Meta(),
		Step:     0,
		Answers:  answers,
		IsLast:   isLast,
	}, nil
}

// Advance records message as the answer to the question at cctx.Step and either
// asks the next visible question or, when none remains, runs generation.
//
// All validation happens before the answer is recorded; cctx.Answers is never modified.
func (e *Engine) Advance(ctx context.Context, subject models.Subject, flowType string, message models.Answer, cctx models.ConversationContext, profile models.Profile) (models.AdvanceResult, error) {
	set, err := e.registry.Lookup(flowType)
	if err != nil {
		slog.Debug("Engine.Advance: lookup failed", "flowType", flowType, "error", err)
		return models.AdvanceResult{}, err
	}
	if message.IsEmpty() {
		return models.AdvanceResult{}, models.NewValidationError("message", "message is required")
	}
	if err := cctx.Validate(); err != nil {
		return models.AdvanceResult{}, err
	}
	if cctx.FlowType != "" && !strings.EqualFold(cctx.FlowType, string(set.Flow)) {
		return models.AdvanceResult{}, models.NewValidationError("context.flow_type", "context belongs to a different flow")
	}

	answers := cctx.Answers.Clone()
	if cctx.Step < len(set.Questions) {
		answers[set.Questions[cctx.Step].Key] = message
	} else {
		slog.Warn("Engine.Advance: step out of range, answer not recorded", "flowType", set.Flow, "step", cctx.Step, "questions", len(set.Questions))
	}

	next := -1
	if cctx.Step < len(set.Questions) {
		next = nextVisible(set, cctx.Step+1, answers)
	}
	if next < 0 {
		slog.Debug("Engine.Advance: sequence exhausted, generating", "flowType", set.Flow, "subject", subject.ID, "answers", len(answers))
		if e.generator == nil {
			return models.AdvanceResult{}, fmt.Errorf("%w: no generator configured", models.ErrGenerationFailed)
		}
		outcome, err := e.generator.Generate(ctx, models.GenerationRequest{
			Flow:     set.Flow,
			Answers:  answers,
			Profile:  profile,
			Identity: subject,
		})
		if err != nil {
			return models.AdvanceResult{}, err
		}
		return models.AdvanceResult{Outcome: &outcome}, nil
	}

	q := set.Questions[next]
	isLast := remainingVisible(set, next, answers) == 0
	slog.Debug("Engine.Advance: next question", "flowType", set.Flow, "step", next, "key", q.Key, "isLast", isLast)
	return models.AdvanceResult{Turn: &models.Turn{
		FlowType: set.Flow,
		Message:  composeMessage(set.Flow, q, profile, isLast, ""),
		Question: q.Meta(),
		Step:     next,
		Answers:  answers,
		IsLast:   isLast,
	}}, nil
}

// nextVisible returns the index of the first visible question at or after from, or -1.
func nextVisible(set models.QuestionSet, from int, answers models.Answers) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(set.Questions); i++ {
		if IsVisible(set.Questions[i].Condition, answers) {
			return i
		}
	}
	return -1
}

// remainingVisible counts the visible questions strictly after index.
func remainingVisible(set models.QuestionSet, index int, answers models.Answers) int {
	n := 0
	for i := index + 1; i < len(set.Questions); i++ {
		if IsVisible(set.Questions[i].Condition, answers) {
			n++
		}
	}
	return n
}

func composeMessage(kind models.FlowKind, q models.Question, profile models.Profile, isLast bool, intro string) string {
	var parts []string
	if intro != "" {
		parts = append(parts, intro)
	}
	parts = append(parts, q.Prompt)
	if v, ok := profile.Get(q.ProfileField); ok {
		parts = append(parts, fmt.Sprintf(PrefillHintFormat, v))
	}
	if isLast {
		parts = append(parts, fmt.Sprintf(LastQuestionNoticeFormat, kind.Category()))
	}
	return strings.Join(parts, "\n\n")
}
