// Package models defines flow type definitions to avoid circular imports.
package models

import (
	"fmt"
	"strings"
)

// FlowKind identifies one conversational flow (a document type or a guide type).
// The set of kinds is closed; unrecognized input is rejected with ErrUnknownFlow.
type FlowKind string

// FlowCategory groups flow kinds by what they produce.
type FlowCategory string

// Flow categories.
const (
	CategoryDocument FlowCategory = "document"
	CategoryGuide    FlowCategory = "guide"
)

// Document flow kinds.
const (
	FlowCoverLetter FlowKind = "cover-letter"
	FlowApostille   FlowKind = "apostille"
)

// Guide flow kinds.
const (
	FlowRelocationGuide FlowKind = "relocation-guide"
	FlowHealthcareGuide FlowKind = "healthcare-guide"
)

// AllFlowKinds lists every known flow kind in catalog order.
var AllFlowKinds = []FlowKind{
	FlowCoverLetter,
	FlowApostille,
	FlowRelocationGuide,
	FlowHealthcareGuide,
}

// ParseFlowKind converts external input into a FlowKind.
func ParseFlowKind(s string) (FlowKind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", NewValidationError("flow_type", "flow_type is required")
	}
	switch k := FlowKind(strings.ToLower(s)); k {
	case FlowCoverLetter, FlowApostille, FlowRelocationGuide, FlowHealthcareGuide:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, s)
	}
}

// Category reports whether the flow produces a document or a guide.
func (k FlowKind) Category() FlowCategory {
	switch k {
	case FlowRelocationGuide, FlowHealthcareGuide:
		return CategoryGuide
	default:
		return CategoryDocument
	}
}

func (k FlowKind) String() string { return string(k) }
