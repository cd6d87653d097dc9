// Package render turns generated content into downloadable files.
//
// Two formats are supported: the primary Markdown document and a
// self-contained HTML page suitable for printing.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/BTreeMap/MemberFlow/internal/models"
)

// Format names an output format.
type Format string

const (
	FormatPrimary Format = "primary"
	FormatPrint   Format = "print"
)

// Content types for the supported formats.
const (
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
	ContentTypeHTML     = "text/html; charset=utf-8"
)

// ParseFormat validates a format name. An empty name selects FormatPrimary.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPrimary, nil
	case FormatPrimary, FormatPrint:
		return f, nil
	default:
		return "", models.NewValidationError("format", fmt.Sprintf("unsupported format %q", s))
	}
}

// File is a rendered artifact.
type File struct {
	Name        string
	ContentType string
	Body        []byte
}

// Render produces the file for content in format.
func Render(content models.Content, format Format) (File, error) {
	switch format {
	case FormatPrimary, "":
		return File{
			Name:        fileName(content.Title, "md"),
			ContentType: ContentTypeMarkdown,
			Body:        []byte(Markdown(content)),
		}, nil
	case FormatPrint:
		var buf bytes.Buffer
		if err := printTemplate.Execute(&buf, printView(content)); err != nil {
			return File{}, fmt.Errorf("render print view: %w", err)
		}
		return File{
			Name:        fileName(content.Title, "html"),
			ContentType: ContentTypeHTML,
			Body:        buf.Bytes(),
		}, nil
	default:
		return File{}, models.NewValidationError("format", fmt.Sprintf("unsupported format %q", format))
	}
}

// Markdown writes content back out as a Markdown document.
func Markdown(content models.Content) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", content.Title)
	for _, s := range content.Sections {
		b.WriteString("\n")
		if s.Heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", s.Heading)
		}
		if s.Body != "" {
			b.WriteString(s.Body)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func fileName(title, ext string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, title)
	slug = strings.Trim(slug, "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	if slug == "" {
		slug = "document"
	}
	return slug + "." + ext
}

type printSection struct {
	Heading    string
	Paragraphs []string
}

type printPage struct {
	Title    string
	Sections []printSection
}

func printView(content models.Content) printPage {
	page := printPage{Title: content.Title}
	for _, s := range content.Sections {
		ps := printSection{Heading: s.Heading}
		for _, p := range strings.Split(s.Body, "\n\n") {
			if p = strings.TrimSpace(p); p != "" {
				ps.Paragraphs = append(ps.Paragraphs, p)
			}
		}
		page.Sections = append(page.Sections, ps)
	}
	return page
}

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 42em; margin: 2em auto; line-height: 1.5; }
h1 { font-size: 1.6em; }
h2 { font-size: 1.2em; margin-top: 1.5em; }
p { white-space: pre-line; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Sections}}{{if .Heading}}<h2>{{.Heading}}</h2>
{{end}}{{range .Paragraphs}}<p>{{.}}</p>
{{end}}{{end}}</body>
</html>
`))
