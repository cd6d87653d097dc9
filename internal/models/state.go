// Package models defines state management structures for MemberFlow conversations.
package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ConversationContext is the conversation state carried by the caller between turns.
// Step indexes the raw question sequence, not the visible one.
type ConversationContext struct {
	FlowType string  `json:"flow_type,omitempty"`
	Step     int     `json:"step"`
	Answers  Answers `json:"answers"`
}

// NewConversationContext returns the context of a freshly started flow.
func NewConversationContext(flow FlowKind) ConversationContext {
	return ConversationContext{FlowType: string(flow), Step: 0, Answers: Answers{}}
}

// Validate rejects contexts that cannot have come from a previous turn.
func (c ConversationContext) Validate() error {
	if c.Step < 0 {
		return NewValidationError("context.step", "step must be zero or greater")
	}
	if c.Step > maxContextStep {
		return NewValidationError("context.step", "step is out of range")
	}
	if c.Answers == nil {
		return NewValidationError("context.answers", "answers are required")
	}
	return nil
}

// UnmarshalJSON decodes a client-supplied context, rejecting one without step or answers.
func (c *ConversationContext) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return NewValidationError("context", "context is required")
	}
	var wire struct {
		FlowType string          `json:"flow_type"`
		Step     *json.Number    `json:"step"`
		Answers  json.RawMessage `json:"answers"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return NewValidationError("context", "context must be a JSON object")
	}
	if wire.Step == nil {
		return NewValidationError("context.step", "step is required")
	}
	step, err := wire.Step.Int64()
	if err != nil || step < 0 || step > maxContextStep {
		return NewValidationError("context.step", "step must be a non-negative integer")
	}
	raw := bytes.TrimSpace(wire.Answers)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NewValidationError("context.answers", "answers are required")
	}
	var answers Answers
	if err := json.Unmarshal(raw, &answers); err != nil {
		return NewValidationError("context.answers", "answers must map question keys to strings or string arrays")
	}
	*c = ConversationContext{
		FlowType: strings.TrimSpace(wire.FlowType),
		Step:     int(step),
		Answers:  answers,
	}
	return nil
}

// maxContextStep bounds client-supplied steps; no question set comes near it.
const maxContextStep = 1 << 16

// Subject identifies the caller of a flow.
type Subject struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
}

// Profile is the read-only map of known profile fields used for pre-fill hints.
type Profile map[string]string

// Get returns the trimmed value of field and whether it is non-empty.
func (p Profile) Get(field string) (string, bool) {
	if p == nil || field == "" {
		return "", false
	}
	v := strings.TrimSpace(p[field])
	return v, v != ""
}
