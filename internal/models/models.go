// Package models defines the core data structures for MemberFlow.
//
// It includes the question, conversation, artifact and document types shared across modules.
package models

import (
	"strings"
	"time"
)

// Validation constants for input validation
const (
	// MaxAnswerLength defines the maximum allowed length of a single answer value
	MaxAnswerLength = 4000
	// MaxAnswerValues defines the maximum number of values in a multi-choice answer
	MaxAnswerValues = 20
	// MaxChecklistItemIDLength defines the maximum allowed length of a checklist item ID
	MaxChecklistItemIDLength = 100
)

// Document is a record in the persistent document catalog.
type Document struct {
	ID        int64     `json:"id"`
	SubjectID string    `json:"subject_id"`
	Type      FlowKind  `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChecklistItem records the progress of one checklist entry for a subject.
type ChecklistItem struct {
	ChecklistType string    `json:"checklist_type"`
	ItemID        string    `json:"item_id"`
	Done          bool      `json:"done"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AnswerRequest is the body of POST /flows/{flowType}/answer.
type AnswerRequest struct {
	Message Answer              `json:"message"`
	Context ConversationContext `json:"context"`
}

// Validate checks the answer payload.
func (r AnswerRequest) Validate() error {
	if r.Message.IsEmpty() {
		return NewValidationError("message", "message is required")
	}
	if len(r.Message.values) > MaxAnswerValues {
		return NewValidationError("message", "too many selected values")
	}
	for _, v := range r.Message.values {
		if len(v) > MaxAnswerLength {
			return NewValidationError("message", "answer exceeds maximum length")
		}
	}
	return r.Context.Validate()
}

// SaveDocumentRequest is the body of POST /documents.
type SaveDocumentRequest struct {
	ArtifactHandle string `json:"artifact_handle"`
}

// Validate checks the save request.
func (r SaveDocumentRequest) Validate() error {
	if strings.TrimSpace(r.ArtifactHandle) == "" {
		return NewValidationError("artifact_handle", "artifact_handle is required")
	}
	return nil
}

// SavedDocument is the result of saving an artifact to the catalog.
type SavedDocument struct {
	DocumentID int64     `json:"document_id"`
	Handle     string    `json:"artifact_handle"`
	ExpiresAt  time.Time `json:"expires_at"`
	Reused     bool      `json:"reused"`
}

// ChecklistUpdateRequest is the body of PUT /checklists/{type}/items/{itemID}.
type ChecklistUpdateRequest struct {
	Done bool `json:"done"`
}

// FlowSummary describes one catalog entry for listing.
type FlowSummary struct {
	Flow          FlowKind     `json:"flow_type"`
	Category      FlowCategory `json:"category"`
	Title         string       `json:"title"`
	QuestionCount int          `json:"question_count"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusComplete indicates a conversation finished and content was generated.
	APIStatusComplete APIStatus = "complete"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Field   string      `json:"field,omitempty"`   // offending field for validation errors
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// Completed creates the response for a conversation that produced an artifact.
func Completed(message string, outcome GenerationOutcome) APIResponse {
	return APIResponse{Status: string(APIStatusComplete), Message: message, Result: outcome}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// FieldError creates an error API response naming the offending field.
func FieldError(field, message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Field: field, Message: message}
}
