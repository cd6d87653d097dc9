package models

import "time"

// Turn is the response to one conversation exchange that still has a question to ask.
type Turn struct {
	FlowType FlowKind     `json:"flow_type"`
	Message  string       `json:"message"`
	Question QuestionMeta `json:"question"`
	Step     int          `json:"step"`
	Answers  Answers      `json:"answers"`
	IsLast   bool         `json:"is_last"`
}

// Context returns the conversation context the caller must send back with the next answer.
func (t Turn) Context() ConversationContext {
	return ConversationContext{FlowType: string(t.FlowType), Step: t.Step, Answers: t.Answers}
}

// GenerationOutcome is returned once the question sequence is exhausted.
type GenerationOutcome struct {
	Handle      string    `json:"artifact_handle"`
	Title       string    `json:"title"`
	AIGenerated bool      `json:"ai_generated"`
	Reused      bool      `json:"reused"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AdvanceResult holds exactly one of Turn or Outcome.
type AdvanceResult struct {
	Turn    *Turn
	Outcome *GenerationOutcome
}

// Complete reports whether the conversation finished with a generation outcome.
func (r AdvanceResult) Complete() bool { return r.Outcome != nil }

// GenerationRequest is built once the visible-question scan exhausts the sequence.
type GenerationRequest struct {
	Flow     FlowKind
	Answers  Answers
	Profile  Profile
	Identity Subject
	// SourceID identifies the underlying completion for deduplication. When
	// empty it is derived from the flow and answers.
	SourceID string
}
