// Package report renders research digests and delivers them by mail.
// A digest runs each configured query through the orchestrator, collects
// the essays, and renders them into a single HTML document.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"surveyor/store"
)

// Section is one researched query inside a digest.
type Section struct {
	Query   string
	Essay   template.HTML
	Sources []string
	Err     string
}

// Digest is a fully rendered report ready for storage and delivery.
type Digest struct {
	Title       string
	GeneratedAt time.Time
	Sections    []Section
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 720px; margin: 2em auto; color: #222; }
h1 { border-bottom: 2px solid #222; padding-bottom: 0.3em; }
h2 { margin-top: 2em; color: #444; }
.meta { color: #888; font-size: 0.9em; }
.sources { font-size: 0.85em; color: #555; }
.error { color: #a00; font-style: italic; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Generated {{.GeneratedAt.Format "January 2, 2006 15:04 MST"}}</p>
{{range .Sections}}
<h2>{{.Query}}</h2>
{{if .Err}}<p class="error">Research failed: {{.Err}}</p>{{else}}
{{.Essay}}
{{if .Sources}}<div class="sources"><strong>Sources</strong><ol>{{range .Sources}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ol></div>{{end}}
{{end}}
{{end}}
</body>
</html>
`))

var markdown = goldmark.New(
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// RenderMarkdown converts an essay from markdown to HTML.
func RenderMarkdown(essay string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(essay), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// RenderHTML renders the digest into a standalone HTML document.
func (d *Digest) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// ToRecord converts the digest into its persisted form.
func (d *Digest) ToRecord(id, html string, runIDs []string) store.Report {
	return store.Report{
		ID:        id,
		Title:     d.Title,
		HTML:      html,
		RunIDs:    runIDs,
		CreatedAt: d.GeneratedAt,
	}
}
