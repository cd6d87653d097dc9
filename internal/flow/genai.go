package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Completer is the AI text-completion capability.
type Completer interface {
	// IsConfigured reports whether the backend can be called at all.
	IsConfigured() bool
	// Complete returns the completion text for prompt.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// aiInstructions are prepended to every generation prompt, keyed by category.
var aiInstructions = map[models.FlowCategory]string{
	models.CategoryDocument: "You are a relocation assistant drafting a formal document for a member. " +
		"Write in a clear, professional register. Do not invent facts that are not in the answers.",
	models.CategoryGuide: "You are a relocation assistant writing a personalised, practical guide for a member. " +
		"Give concrete, actionable steps in a friendly tone.",
}

const aiFormatInstructions = "Respond in Markdown. Start with a single '# ' title line, then use '## ' headings for each section. " +
	"Do not include any text before the title."

// buildPrompt turns a completed conversation into a completion prompt.
func buildPrompt(set models.QuestionSet, req models.GenerationRequest) string {
	var b strings.Builder
	b.WriteString(aiInstructions[set.Flow.Category()])
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Task: produce the member's %q.\n", set.Title)
	fmt.Fprintf(&b, "Member name: %s\n", applicantName(req))

	if len(req.Profile) > 0 {
		b.WriteString("\nKnown profile details:\n")
		for _, field := range []string{ProfileNationality, ProfileCurrentCountry, ProfileDestinationCity, ProfileOccupation} {
			if v, ok := req.Profile.Get(field); ok {
				fmt.Fprintf(&b, "- %s: %s\n", strings.ReplaceAll(field, "_", " "), v)
			}
		}
	}

	b.WriteString("\nAnswers:\n")
	for _, row := range answerRows(set, req.Answers) {
		fmt.Fprintf(&b, "- %s %s\n", row.Prompt, row.Answer)
	}
	b.WriteString("\n")
	b.WriteString(aiFormatInstructions)
	return b.String()
}

// generateWithAI runs one completion and parses it into content. Every failure
// is returned as an *models.AIBackendError.
func generateWithAI(ctx context.Context, ai Completer, set models.QuestionSet, req models.GenerationRequest, maxTokens int) (models.Content, error) {
	text, err := ai.Complete(ctx, buildPrompt(set, req), maxTokens)
	if err != nil {
		var aiErr *models.AIBackendError
		if errors.As(err, &aiErr) {
			return models.Content{}, err
		}
		reason := models.AIFailureTransport
		if ctx.Err() != nil {
			reason = models.AIFailureTimeout
		}
		return models.Content{}, &models.AIBackendError{Reason: reason, Err: err}
	}
	content, err := parseMarkdown(set.Title, text)
	if err != nil {
		return models.Content{}, &models.AIBackendError{Reason: models.AIFailureMalformed, Err: err}
	}
	return content, nil
}
