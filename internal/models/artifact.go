package models

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactKind distinguishes the lifetimes of stored artifacts.
type ArtifactKind string

const (
	// ArtifactPreview is freshly generated content awaiting review or download.
	ArtifactPreview ArtifactKind = "preview"
	// ArtifactSaved is content the member saved as a document.
	ArtifactSaved ArtifactKind = "saved"
	// ArtifactVerification is a stored verification result.
	ArtifactVerification ArtifactKind = "verification"
)

// ParseArtifactKind validates a resource kind supplied by a client.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch k := ArtifactKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ArtifactPreview, ArtifactSaved, ArtifactVerification:
		return k, nil
	default:
		return "", NewValidationError("kind", fmt.Sprintf("unknown resource kind %q", s))
	}
}

// Section is one headed block of generated content.
type Section struct {
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

// Content is the plain structured result of generation, handed to renderers.
type Content struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// IsEmpty reports whether the content has no non-blank section body.
func (c Content) IsEmpty() bool {
	for _, s := range c.Sections {
		if strings.TrimSpace(s.Body) != "" {
			return false
		}
	}
	return true
}

// Artifact is generated content stored under an opaque, short-lived handle.
type Artifact struct {
	Handle      string       `json:"handle"`
	SubjectID   string       `json:"subject_id"`
	Flow        FlowKind     `json:"flow_type"`
	Kind        ArtifactKind `json:"kind"`
	Content     Content      `json:"content"`
	AIGenerated bool         `json:"ai_generated"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

// Expired reports whether the artifact's lifetime has elapsed at now.
func (a Artifact) Expired(now time.Time) bool {
	return !now.Before(a.ExpiresAt)
}

// TTL returns the artifact's total lifetime.
func (a Artifact) TTL() time.Duration {
	return a.ExpiresAt.Sub(a.CreatedAt)
}
