package flow

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// recordingGenerator captures the request it receives.
type recordingGenerator struct {
	calls int
	req   models.GenerationRequest
	err   error
}

func (g *recordingGenerator) Generate(ctx context.Context, req models.GenerationRequest) (models.GenerationOutcome, error) {
	g.calls++
	g.req = req
	if g.err != nil {
		return models.GenerationOutcome{}, g.err
	}
	return models.GenerationOutcome{Handle: "h-1", Title: "done"}, nil
}

var alice = models.Subject{ID: "alice", DisplayName: "Alice Doe"}

// threeQuestionSet has Q2 visible only when Q0 is "x".
func threeQuestionSet() models.QuestionSet {
	opts := []models.Option{{Value: "x", Label: "X"}, {Value: "y", Label: "Y"}}
	return models.QuestionSet{
		Flow:  models.FlowHealthcareGuide,
		Title: "Three",
		Intro: "Intro for {title}.",
		Questions: []models.Question{
			{Key: "q0", Prompt: "First?", InputKind: models.InputSingleChoice, Options: opts},
			{Key: "q1", Prompt: "Second?", InputKind: models.InputFreeText},
			{Key: "q2", Prompt: "Third?", InputKind: models.InputFreeText, Condition: models.Condition{"q0": {"x"}}},
		},
	}
}

func newTestEngine(t *testing.T, gen Generator, sets ...models.QuestionSet) *Engine {
	t.Helper()
	reg, err := NewRegistry(sets...)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return NewEngine(reg, gen)
}

func TestIsVisible(t *testing.T) {
	cond := models.Condition{"a": {"x"}, "b": {"y", "z"}}
	tests := []struct {
		name    string
		cond    models.Condition
		answers models.Answers
		want    bool
	}{
		{"nil condition", nil, models.Answers{}, true},
		{"empty condition", models.Condition{}, nil, true},
		{"first key matches", cond, models.Answers{"a": models.Scalar("x")}, true},
		{"second key matches other mismatched", cond, models.Answers{"a": models.Scalar("q"), "b": models.Scalar("z")}, true},
		{"no key matches", cond, models.Answers{"a": models.Scalar("q"), "b": models.Scalar("q")}, false},
		{"missing keys", cond, models.Answers{}, false},
		{"nil answers", cond, nil, false},
		{"multi intersects", cond, models.Answers{"b": models.Multi("w", "y")}, true},
		{"multi disjoint", cond, models.Answers{"b": models.Multi("w", "v")}, false},
		{"empty multi", cond, models.Answers{"b": models.Multi()}, false},
		{"scalar is not substring matched", models.Condition{"a": {"x"}}, models.Answers{"a": models.Scalar("xx")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVisible(tt.cond, tt.answers); got != tt.want {
				t.Errorf("IsVisible = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	summaries := reg.Summaries()
	if len(summaries) != len(models.AllFlowKinds) {
		t.Fatalf("expected %d flows, got %d", len(models.AllFlowKinds), len(summaries))
	}
	for _, kind := range models.AllFlowKinds {
		if _, err := reg.Lookup(string(kind)); err != nil {
			t.Errorf("Lookup(%q) failed: %v", kind, err)
		}
	}
	if _, err := reg.Lookup("tax-return"); !errors.Is(err, models.ErrUnknownFlow) {
		t.Errorf("Lookup(unknown) error = %v, want ErrUnknownFlow", err)
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	set := threeQuestionSet()
	if _, err := NewRegistry(set, set); err == nil {
		t.Error("expected error for duplicate flow")
	}
	bad := set
	bad.Questions = nil
	if _, err := NewRegistry(bad); err == nil {
		t.Error("expected error for empty question set")
	}
}

func TestStartUnknownFlow(t *testing.T) {
	e := NewEngine(DefaultRegistry(), nil)
	if _, err := e.Start("tax-return", nil); !errors.Is(err, models.ErrUnknownFlow) {
		t.Errorf("Start error = %v, want ErrUnknownFlow", err)
	}
	var vErr *models.ValidationError
	if _, err := e.Start("  ", nil); !errors.As(err, &vErr) {
		t.Errorf("Start(blank) error = %v, want ValidationError", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	e := NewEngine(DefaultRegistry(), nil)
	profile := models.Profile{ProfileFullName: "Alice Doe"}
	first, err := e.Start("cover-letter", profile)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	second, err := e.Start("cover-letter", profile)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Start is not deterministic:\n%+v\n%+v", first, second)
	}
	if first.Step != 0 || len(first.Answers) != 0 || first.IsLast {
		t.Errorf("unexpected start turn: %+v", first)
	}
	if !strings.HasPrefix(first.Message, "Let's prepare your Visa Application Cover Letter.") {
		t.Errorf("intro title not substituted: %q", first.Message)
	}
	if first.Question.Key != "visa_type" || len(first.Question.Options) == 0 {
		t.Errorf("unexpected first question meta: %+v", first.Question)
	}
}

func TestPrefillHint(t *testing.T) {
	e := NewEngine(DefaultRegistry(), nil)
	cctx := models.ConversationContext{Step: 0, Answers: models.Answers{}}
	res, err := e.Advance(context.Background(), alice, "cover-letter", models.Scalar("d7"), cctx,
		models.Profile{ProfileFullName: "Alice Doe"})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if res.Turn == nil || res.Turn.Question.Key != "full_name" {
		t.Fatalf("expected full_name question, got %+v", res.Turn)
	}
	if !strings.Contains(res.Turn.Message, "(From your profile: **Alice Doe**)") {
		t.Errorf("missing pre-fill hint in %q", res.Turn.Message)
	}

	res, err = e.Advance(context.Background(), alice, "cover-letter", models.Scalar("d7"), cctx, models.Profile{ProfileFullName: "  "})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if strings.Contains(res.Turn.Message, "From your profile") {
		t.Errorf("blank profile value produced a hint: %q", res.Turn.Message)
	}
}

func TestConditionOrSemanticsAccommodation(t *testing.T) {
	e := NewEngine(DefaultRegistry(), nil)
	start := models.ConversationContext{Step: 0, Answers: models.Answers{}}

	res, err := e.Advance(context.Background(), alice, "relocation-guide", models.Scalar("renting"), start, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if res.Turn.Question.Key != "property_region" || res.Turn.Step != 1 {
		t.Errorf("renting should surface property_region, got %q at step %d", res.Turn.Question.Key, res.Turn.Step)
	}

	res, err = e.Advance(context.Background(), alice, "relocation-guide", models.Scalar("staying_family"), start, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if res.Turn.Question.Key != "household" || res.Turn.Step != 2 {
		t.Errorf("staying_family should skip property_region, got %q at step %d", res.Turn.Question.Key, res.Turn.Step)
	}
}

func TestConditionOrAcrossKeys(t *testing.T) {
	e := NewEngine(DefaultRegistry(), nil)
	// employer_name is shown for visa_type=work even though income_source was never asked.
	answers := models.Answers{"visa_type": models.Scalar("work"), "full_name": models.Scalar("A")}
	res, err := e.Advance(context.Background(), alice, "cover-letter", models.Scalar("Portuguese"),
		models.ConversationContext{Step: 2, Answers: answers}, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if res.Turn.Question.Key != "employer_name" {
		t.Errorf("expected employer_name, got %q", res.Turn.Question.Key)
	}
}

func TestLastQuestionDetection(t *testing.T) {
	e := newTestEngine(t, &recordingGenerator{}, threeQuestionSet())
	start := models.ConversationContext{Step: 0, Answers: models.Answers{}}

	res, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("y"), start, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if res.Turn.Step != 1 || !res.Turn.IsLast {
		t.Errorf("q0=y: expected q1 with is_last=true, got step %d is_last=%v", res.Turn.Step, res.Turn.IsLast)
	}
	if !strings.Contains(res.Turn.Message, "This is the last question.") {
		t.Errorf("last-question notice missing: %q", res.Turn.Message)
	}

	res, err = e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("x"), start, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if res.Turn.Step != 1 || res.Turn.IsLast {
		t.Errorf("q0=x: expected q1 with is_last=false, got step %d is_last=%v", res.Turn.Step, res.Turn.IsLast)
	}
	if strings.Contains(res.Turn.Message, "last question") {
		t.Errorf("unexpected last-question notice: %q", res.Turn.Message)
	}
}

func TestSingleQuestionFlowStartsLast(t *testing.T) {
	set := models.QuestionSet{
		Flow:      models.FlowApostille,
		Title:     "One",
		Questions: []models.Question{{Key: "only", Prompt: "Only?", InputKind: models.InputFreeText}},
	}
	e := newTestEngine(t, nil, set)
	turn, err := e.Start("apostille", nil)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !turn.IsLast {
		t.Error("single-question flow should start on its last question")
	}
}

func TestExhaustionTriggersGeneration(t *testing.T) {
	gen := &recordingGenerator{}
	e := newTestEngine(t, gen, threeQuestionSet())
	answers := models.Answers{"q0": models.Scalar("y")}

	res, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("done"),
		models.ConversationContext{Step: 1, Answers: answers}, models.Profile{"k": "v"})
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if !res.Complete() || res.Turn != nil {
		t.Fatalf("expected completion, got %+v", res)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times", gen.calls)
	}
	if gen.req.Identity != alice || gen.req.Flow != models.FlowHealthcareGuide {
		t.Errorf("unexpected request: %+v", gen.req)
	}
	if gen.req.Answers["q1"].String() != "done" || gen.req.Answers["q0"].String() != "y" {
		t.Errorf("answers not carried to generation: %v", gen.req.Answers)
	}
	if gen.req.Profile["k"] != "v" {
		t.Error("profile not carried to generation")
	}
}

func TestGenerationErrorPropagates(t *testing.T) {
	gen := &recordingGenerator{err: models.ErrGenerationFailed}
	e := newTestEngine(t, gen, threeQuestionSet())
	_, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("done"),
		models.ConversationContext{Step: 1, Answers: models.Answers{"q0": models.Scalar("y")}}, nil)
	if !errors.Is(err, models.ErrGenerationFailed) {
		t.Errorf("error = %v, want ErrGenerationFailed", err)
	}

	e = newTestEngine(t, nil, threeQuestionSet())
	_, err = e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("done"),
		models.ConversationContext{Step: 1, Answers: models.Answers{"q0": models.Scalar("y")}}, nil)
	if !errors.Is(err, models.ErrGenerationFailed) {
		t.Errorf("nil generator error = %v, want ErrGenerationFailed", err)
	}
}

func TestAdvanceFastFailDoesNotMutate(t *testing.T) {
	gen := &recordingGenerator{}
	e := newTestEngine(t, gen, threeQuestionSet())
	answers := models.Answers{"q0": models.Scalar("x")}

	tests := []struct {
		name     string
		flowType string
		message  models.Answer
		cctx     models.ConversationContext
		check    func(error) bool
	}{
		{"unknown flow", "tax-return", models.Scalar("a"), models.ConversationContext{Step: 0, Answers: answers},
			func(err error) bool { return errors.Is(err, models.ErrUnknownFlow) }},
		{"empty message", "healthcare-guide", models.Scalar("  "), models.ConversationContext{Step: 0, Answers: answers}, isValidation("message")},
		{"negative step", "healthcare-guide", models.Scalar("a"), models.ConversationContext{Step: -1, Answers: answers}, isValidation("context.step")},
		{"missing answers", "healthcare-guide", models.Scalar("a"), models.ConversationContext{Step: 0}, isValidation("context.answers")},
		{"other flow's context", "healthcare-guide", models.Scalar("a"), models.ConversationContext{FlowType: "apostille", Step: 0, Answers: answers}, isValidation("context.flow_type")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Advance(context.Background(), alice, tt.flowType, tt.message, tt.cctx, nil)
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %v", err)
			}
			if len(answers) != 1 || answers["q0"].String() != "x" {
				t.Errorf("answers mutated: %v", answers)
			}
		})
	}
	if gen.calls != 0 {
		t.Errorf("generator called on fast-fail")
	}
}

func TestAdvanceCopiesAnswers(t *testing.T) {
	e := newTestEngine(t, nil, threeQuestionSet())
	answers := models.Answers{}
	res, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("x"),
		models.ConversationContext{Step: 0, Answers: answers}, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("caller answers were modified: %v", answers)
	}
	if res.Turn.Answers["q0"].String() != "x" {
		t.Errorf("returned answers missing q0: %v", res.Turn.Answers)
	}
	if ctx := res.Turn.Context(); ctx.Step != 1 || ctx.FlowType != "healthcare-guide" {
		t.Errorf("unexpected follow-up context: %+v", ctx)
	}
}

func TestAdvanceOutOfRangeStep(t *testing.T) {
	gen := &recordingGenerator{}
	e := newTestEngine(t, gen, threeQuestionSet())
	answers := models.Answers{"q0": models.Scalar("y")}
	res, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("late"),
		models.ConversationContext{Step: 7, Answers: answers}, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if !res.Complete() {
		t.Fatal("out-of-range step should complete the flow")
	}
	if len(gen.req.Answers) != 1 {
		t.Errorf("out-of-range answer was recorded: %v", gen.req.Answers)
	}
}

func TestAdvanceHugeStep(t *testing.T) {
	gen := &recordingGenerator{}
	e := newTestEngine(t, gen, threeQuestionSet())
	answers := models.Answers{"q0": models.Scalar("y")}

	_, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("late"),
		models.ConversationContext{Step: math.MaxInt, Answers: answers}, nil)
	var ve *models.ValidationError
	if !errors.As(err, &ve) || ve.Field != "context.step" {
		t.Fatalf("expected a context.step validation error, got %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for a rejected step", gen.calls)
	}

	// The largest accepted step is past the sequence, so it completes rather than restarting.
	res, err := e.Advance(context.Background(), alice, "healthcare-guide", models.Scalar("late"),
		models.ConversationContext{Step: 1 << 16, Answers: answers}, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if !res.Complete() || gen.calls != 1 {
		t.Errorf("expected completion, got turn %+v after %d calls", res.Turn, gen.calls)
	}
}

func TestRepeatedKeyLastWriteWins(t *testing.T) {
	set := models.QuestionSet{
		Flow:  models.FlowApostille,
		Title: "Repeat",
		Questions: []models.Question{
			{Key: "k", Prompt: "First?", InputKind: models.InputFreeText},
			{Key: "k", Prompt: "Again?", InputKind: models.InputFreeText},
		},
	}
	gen := &recordingGenerator{}
	e := newTestEngine(t, gen, set)
	res, err := e.Advance(context.Background(), alice, "apostille", models.Scalar("one"),
		models.ConversationContext{Step: 0, Answers: models.Answers{}}, nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	_, err = e.Advance(context.Background(), alice, "apostille", models.Scalar("two"), res.Turn.Context(), nil)
	if err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if got := gen.req.Answers["k"].String(); got != "two" {
		t.Errorf("answers[k] = %q, want two", got)
	}
}

func TestWalkEveryFlowToCompletion(t *testing.T) {
	for _, kind := range models.AllFlowKinds {
		t.Run(string(kind), func(t *testing.T) {
			gen := &recordingGenerator{}
			e := NewEngine(DefaultRegistry(), gen)
			turn, err := e.Start(string(kind), nil)
			if err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			for i := 0; i < 50; i++ {
				res, err := e.Advance(context.Background(), alice, string(kind), firstOption(turn.Question), turn.Context(), nil)
				if err != nil {
					t.Fatalf("Advance failed: %v", err)
				}
				if res.Complete() {
					if !turn.IsLast {
						t.Errorf("flow completed after a question not flagged as last (%s)", turn.Question.Key)
					}
					return
				}
				turn = *res.Turn
			}
			t.Fatal("flow did not complete")
		})
	}
}

func firstOption(q models.QuestionMeta) models.Answer {
	switch q.InputKind {
	case models.InputMultiChoice:
		return models.Multi(q.Options[0].Value)
	case models.InputSingleChoice:
		return models.Scalar(q.Options[0].Value)
	default:
		return models.Scalar("sample text")
	}
}

func isValidation(field string) func(error) bool {
	return func(err error) bool {
		var vErr *models.ValidationError
		return errors.As(err, &vErr) && vErr.Field == field
	}
}
