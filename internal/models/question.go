package models

import (
	"errors"
	"fmt"
)

// InputKind describes how a question is answered.
type InputKind string

const (
	InputSingleChoice InputKind = "single_choice"
	InputMultiChoice  InputKind = "multi_choice"
	InputFreeText     InputKind = "free_text"
)

// Option is one selectable answer of a choice question.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Condition maps a prior question key to the answer values that make a question visible.
// Keys are OR-combined; within a key the recorded answer must intersect the accepted values.
type Condition map[string][]string

// Question is one step of a flow. Questions are immutable once registered.
type Question struct {
	Key          string    `json:"key"`
	Prompt       string    `json:"prompt"`
	InputKind    InputKind `json:"input_kind"`
	Options      []Option  `json:"options,omitempty"`
	Placeholder  string    `json:"placeholder,omitempty"`
	ProfileField string    `json:"profile_field,omitempty"`
	Condition    Condition `json:"condition,omitempty"`
}

// OptionLabel returns the display label for value, or value itself if no option matches.
func (q Question) OptionLabel(value string) string {
	for _, o := range q.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

// Validate checks the structural rules of a question definition.
func (q Question) Validate() error {
	if q.Key == "" {
		return errors.New("question key is required")
	}
	if q.Prompt == "" {
		return fmt.Errorf("question %q: prompt is required", q.Key)
	}
	switch q.InputKind {
	case InputFreeText:
		if len(q.Options) > 0 {
			return fmt.Errorf("question %q: free_text questions cannot declare options", q.Key)
		}
	case InputSingleChoice, InputMultiChoice:
		if len(q.Options) == 0 {
			return fmt.Errorf("question %q: %s questions require options", q.Key, q.InputKind)
		}
	default:
		return fmt.Errorf("question %q: invalid input kind %q", q.Key, q.InputKind)
	}
	return nil
}

// QuestionSet is the static, ordered question sequence of one flow.
type QuestionSet struct {
	Flow      FlowKind   `json:"flow_type"`
	Title     string     `json:"title"`
	Intro     string     `json:"intro"`
	Questions []Question `json:"questions"`
}

// Validate checks the set and every question in it.
func (s QuestionSet) Validate() error {
	if s.Flow == "" {
		return errors.New("question set flow is required")
	}
	if len(s.Questions) == 0 {
		return fmt.Errorf("question set %q has no questions", s.Flow)
	}
	for _, q := range s.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question set %q: %w", s.Flow, err)
		}
	}
	return nil
}

// QuestionMeta is the client-facing description of the question being asked.
type QuestionMeta struct {
	Key         string    `json:"key"`
	InputKind   InputKind `json:"input_kind"`
	Options     []Option  `json:"options,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// Meta returns the client-facing metadata of q.
func (q Question) Meta() QuestionMeta {
	return QuestionMeta{
		Key:         q.Key,
		InputKind:   q.InputKind,
		Options:     q.Options,
		Placeholder: q.Placeholder,
	}
}
