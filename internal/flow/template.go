package flow

import (
	"bytes"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// DefaultApplicantName is used when neither identity nor answers name the member.
const DefaultApplicantName = "Applicant"

// TemplateGenerator renders completed flows from built-in text templates. It is
// the fallback whenever AI generation is unavailable or fails.
type TemplateGenerator struct {
	templates map[models.FlowKind]*template.Template
	fallback  *template.Template
}

// NewTemplateGenerator parses the built-in templates.
func NewTemplateGenerator() *TemplateGenerator {
	g := &TemplateGenerator{
		templates: make(map[models.FlowKind]*template.Template, len(flowTemplates)),
		fallback:  template.Must(template.New("default").Parse(defaultTemplate)),
	}
	for kind, text := range flowTemplates {
		g.templates[kind] = template.Must(template.New(string(kind)).Parse(text))
	}
	return g
}

// Generate renders req with the flow's template, falling back to the default
// template when the flow has none or its template fails.
func (g *TemplateGenerator) Generate(set models.QuestionSet, req models.GenerationRequest, now time.Time) (models.Content, error) {
	data := newTemplateData(set, req, now)
	if tmpl, ok := g.templates[set.Flow]; ok {
		content, err := renderTemplate(tmpl, set.Title, data)
		if err == nil {
			return content, nil
		}
		slog.Warn("TemplateGenerator.Generate: flow template failed, using default", "flowType", set.Flow, "error", err)
	}
	return renderTemplate(g.fallback, set.Title, data)
}

func renderTemplate(tmpl *template.Template, title string, data templateData) (models.Content, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return models.Content{}, fmt.Errorf("execute template %s: %w", tmpl.Name(), err)
	}
	return parseMarkdown(title, buf.String())
}

// templateData is the value templates execute against.
type templateData struct {
	Title   string
	Name    string
	Date    string
	Profile models.Profile
	set     models.QuestionSet
	answers models.Answers
}

func newTemplateData(set models.QuestionSet, req models.GenerationRequest, now time.Time) templateData {
	d := templateData{
		Title:   set.Title,
		Date:    now.Format("2 January 2006"),
		Profile: req.Profile,
		set:     set,
		answers: req.Answers,
	}
	d.Name = inlineText(applicantName(req))
	return d
}

func applicantName(req models.GenerationRequest) string {
	if n := strings.TrimSpace(req.Identity.DisplayName); n != "" {
		return n
	}
	if a, ok := req.Answers["full_name"]; ok && !a.IsEmpty() {
		return strings.TrimSpace(a.String())
	}
	if v, ok := req.Profile.Get(ProfileFullName); ok {
		return v
	}
	return DefaultApplicantName
}

// Answer returns the display answer for key, or "" when unanswered.
func (d templateData) Answer(key string) string {
	a, ok := d.answers[key]
	if !ok || a.IsEmpty() {
		return ""
	}
	if q, ok := findQuestion(d.set, key); ok {
		return inlineText(displayAnswer(q, a))
	}
	return inlineText(a.String())
}

// Has reports whether the answer for key includes value.
func (d templateData) Has(key, value string) bool {
	a, ok := d.answers[key]
	return ok && slices.Contains(a.Values(), value)
}

// Rows lists every answered question in order.
func (d templateData) Rows() []answerRow {
	rows := answerRows(d.set, d.answers)
	for i := range rows {
		rows[i].Answer = inlineText(rows[i].Answer)
	}
	return rows
}

// inlineText flattens member-supplied text onto one line and drops leading
// heading markers so it cannot start a section of the generated document.
func inlineText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for {
		rest := strings.TrimLeft(s, "#")
		if rest == s || (rest != "" && rest[0] != ' ') {
			return s
		}
		s = strings.TrimSpace(rest)
	}
}

const defaultTemplate = `# {{.Title}}

Prepared for {{.Name}} on {{.Date}}.

## Your answers
{{range .Rows}}- **{{.Prompt}}** {{.Answer}}
{{end}}
## Next steps
Review the answers above and bring them to your consultation. You can regenerate this document at any time.
`

var flowTemplates = map[models.FlowKind]string{
	models.FlowCoverLetter: `# {{.Title}}

## Letter
Dear Consular Officer,

I, {{.Name}}{{with .Answer "nationality"}}, a national of {{.}},{{end}} respectfully submit my application for a {{.Answer "visa_type"}}.
{{with .Answer "income_source"}}
My main source of income is {{.}}{{with $.Answer "employer_name"}} through {{.}}{{end}}, which provides sufficient means to support my stay.
{{else}}{{with .Answer "employer_name"}}
I will be employed by {{.}}.
{{end}}{{end}}{{with .Answer "institution"}}
I have been accepted to study at {{.}}.
{{end}}
Regarding accommodation: {{.Answer "accommodation"}}{{with .Answer "accommodation_address"}}, located at {{.}}{{end}}.
{{if .Has "family_members" "none"}}
I will be relocating on my own.
{{else}}{{with .Answer "family_members"}}
I will be accompanied by: {{.}}.
{{end}}{{end}}{{with .Answer "additional_notes"}}
{{.}}
{{end}}
Thank you for considering my application.

Sincerely,
{{.Name}}
{{.Date}}

## Enclosures
- Passport copy
- Proof of means of subsistence
- Proof of accommodation
- Criminal record certificate
`,
	models.FlowApostille: `# {{.Title}}

## Documents
{{.Answer "documents"}}

## Where to apply
Documents issued in {{.Answer "issuing_country"}}{{with .Answer "issuing_state"}} ({{.}}){{end}} must be apostilled by the competent authority of the issuing jurisdiction.
{{if .Has "fbi_check" "yes"}}
FBI identity history summaries are apostilled by the U.S. Department of State, not by a state Secretary of State.
{{end}}
## Translation
{{if .Has "translation_needed" "yes"}}Arrange a certified translation into {{.Answer "translation_language"}} after the apostille is issued.{{else}}No certified translation is required.{{end}}

## Timeline
Target date: {{.Answer "deadline"}}. Allow several weeks for processing and courier time.
`,
	models.FlowRelocationGuide: `# {{.Title}}

Prepared for {{.Name}} on {{.Date}}.

## Housing
You will be staying in: {{.Answer "accommodation"}}{{with .Answer "property_region"}} in {{.}}{{end}}.
{{if or (.Has "accommodation" "purchased") (.Has "accommodation" "purchasing") (.Has "accommodation" "renting")}}Keep your deed or rental contract at hand; it is needed for residence registration.{{else}}You will need proof of address before most registrations, so arrange a declaration from your host or a longer-term lease early.{{end}}

## Household
Moving with: {{.Answer "household"}}.
{{with .Answer "schooling"}}School preference: {{.}}. Start enrolment enquiries as soon as you have an address.
{{end}}{{if .Has "pet_import" "no"}}Your pets need a microchip and rabies vaccination before travel; book a vet appointment now.
{{end}}
## Work
Work situation: {{.Answer "work_situation"}}.

## Priorities
{{with .Answer "priorities"}}Focus areas: {{.}}.{{else}}No specific priorities selected.{{end}}
`,
	models.FlowHealthcareGuide: `# {{.Title}}

Prepared for {{.Name}} on {{.Date}}.

## Coverage
Plan: {{.Answer "coverage"}}.
{{with .Answer "private_budget"}}Budget for private insurance: {{.}} per month. Compare at least three insurers and check waiting periods.
{{end}}
## Medication
{{if .Has "prescriptions" "yes"}}Bring a supply and translated prescriptions for: {{.Answer "medication_list"}}.{{else}}No regular prescriptions reported.{{end}}

## Notes
{{with .Answer "health_notes"}}{{.}}{{else}}None.{{end}}
`,
}
