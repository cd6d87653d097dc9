package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// answerRow pairs a question prompt with its display answer.
type answerRow struct {
	Key    string
	Prompt string
	Answer string
}

// answerRows lists the answered questions of set in sequence order, with
// choice values replaced by their labels.
func answerRows(set models.QuestionSet, answers models.Answers) []answerRow {
	var rows []answerRow
	for _, q := range set.Questions {
		a, ok := answers[q.Key]
		if !ok || a.IsEmpty() {
			continue
		}
		rows = append(rows, answerRow{Key: q.Key, Prompt: q.Prompt, Answer: displayAnswer(q, a)})
	}
	return rows
}

func displayAnswer(q models.Question, a models.Answer) string {
	values := a.Values()
	labels := make([]string, 0, len(values))
	for _, v := range values {
		labels = append(labels, q.OptionLabel(v))
	}
	return strings.Join(labels, ", ")
}

// findQuestion returns the last question in set declaring key.
func findQuestion(set models.QuestionSet, key string) (models.Question, bool) {
	for i := len(set.Questions) - 1; i >= 0; i-- {
		if set.Questions[i].Key == key {
			return set.Questions[i], true
		}
	}
	return models.Question{}, false
}

// parseMarkdown splits markdown text into a title and "## " headed sections.
// A leading "# " line overrides fallbackTitle. Text before the first heading
// becomes an untitled section.
func parseMarkdown(fallbackTitle, text string) (models.Content, error) {
	content := models.Content{Title: fallbackTitle}
	var current *models.Section
	var body []string

	flush := func() {
		if current == nil && len(body) == 0 {
			return
		}
		s := models.Section{Body: strings.TrimSpace(strings.Join(body, "\n"))}
		if current != nil {
			s.Heading = current.Heading
		}
		if s.Heading != "" || s.Body != "" {
			content.Sections = append(content.Sections, s)
		}
		current, body = nil, nil
	}

	sawContent := false
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case !sawContent && strings.HasPrefix(trimmed, "# "):
			content.Title = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		case strings.HasPrefix(trimmed, "## "):
			flush()
			current = &models.Section{Heading: strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))}
		default:
			body = append(body, line)
		}
		if trimmed != "" {
			sawContent = true
		}
	}
	flush()

	if content.IsEmpty() {
		return content, fmt.Errorf("no content in generated text")
	}
	return content, nil
}
