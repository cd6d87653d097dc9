// Package flow implements the conversational form engine: the question set
// registry, the visibility rules, the turn-by-turn state machine and the
// generation dispatcher that runs once a flow is complete.
package flow

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Registry holds the static question set of every flow kind.
// It is built once at startup and never mutated.
type Registry struct {
	sets  map[models.FlowKind]models.QuestionSet
	order []models.FlowKind
}

// NewRegistry validates and indexes the given question sets.
func NewRegistry(sets ...models.QuestionSet) (*Registry, error) {
	r := &Registry{sets: make(map[models.FlowKind]models.QuestionSet, len(sets))}
	for _, s := range sets {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.sets[s.Flow]; dup {
			return nil, fmt.Errorf("duplicate question set for flow %q", s.Flow)
		}
		r.sets[s.Flow] = s
		r.order = append(r.order, s.Flow)
	}
	slog.Debug("Registry built", "flows", len(r.order))
	return r, nil
}

// DefaultRegistry returns the registry of built-in flows.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(Catalog()...)
	if err != nil {
		panic(fmt.Sprintf("built-in flow catalog is invalid: %v", err))
	}
	return r
}

// Lookup resolves external flow type input to its question set.
func (r *Registry) Lookup(flowType string) (models.QuestionSet, error) {
	kind, err := models.ParseFlowKind(flowType)
	if err != nil {
		return models.QuestionSet{}, err
	}
	set, ok := r.sets[kind]
	if !ok {
		return models.QuestionSet{}, fmt.Errorf("%w: %q", models.ErrUnknownFlow, flowType)
	}
	return set, nil
}

// Summaries lists the registered flows in registration order.
func (r *Registry) Summaries() []models.FlowSummary {
	out := make([]models.FlowSummary, 0, len(r.order))
	for _, k := range r.order {
		s := r.sets[k]
		out = append(out, models.FlowSummary{
			Flow:          k,
			Category:      k.Category(),
			Title:         s.Title,
			QuestionCount: len(s.Questions),
		})
	}
	return out
}
