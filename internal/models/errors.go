package models

import (
	"errors"
	"fmt"
)

// Error variables for better error handling and testability
var (
	ErrUnknownFlow      = errors.New("unknown flow type")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrNotMember        = errors.New("an active membership is required")
	ErrGenerationFailed = errors.New("generation failed, please retry")
	ErrArtifactNotFound = errors.New("artifact expired, please regenerate")
	ErrDocumentNotFound = errors.New("document not found")
)

// ValidationError reports an empty, missing or malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// AIFailureReason classifies why an AI completion could not be used.
type AIFailureReason string

const (
	AIFailureTimeout   AIFailureReason = "timeout"
	AIFailureStatus    AIFailureReason = "status"
	AIFailureMalformed AIFailureReason = "malformed"
	AIFailureTransport AIFailureReason = "transport"
)

// AIBackendError wraps any failure of the AI backend. It is always recovered
// by falling back to template generation.
type AIBackendError struct {
	Reason     AIFailureReason
	StatusCode int
	Err        error
}

func (e *AIBackendError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("ai backend %s (%d): %v", e.Reason, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("ai backend %s: %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("ai backend %s", e.Reason)
	}
}

func (e *AIBackendError) Unwrap() error { return e.Err }
