package export

import (
	"bytes"
	"html/template"
	"time"
)

var manuscriptTemplate = template.Must(template.New("manuscript").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(manuscriptHTML))

// TemplateData holds data for manuscript rendering
type TemplateData struct {
	Title       string
	Description string
	Genre       string
	Author      string
	GeneratedAt time.Time
	WordCount   int
	Chapters    []TemplateChapter
}

type TemplateChapter struct {
	Anchor    string
	Title     string
	Status    string
	WordCount int
	BodyHTML  template.HTML
}

// RenderManuscriptHTML renders the manuscript template with provided data
func RenderManuscriptHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := manuscriptTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const manuscriptHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, "Noto Serif", serif; line-height: 1.7; max-width: 720px; margin: 2rem auto; }
    h1 { text-align: center; margin-bottom: 0.25rem; }
    .byline, .meta { text-align: center; color: #555; }
    .meta { font-size: 0.85em; margin-bottom: 3rem; }
    nav ol { padding-left: 1.5rem; }
    section.chapter { page-break-before: always; }
    section.chapter h2 { text-align: center; }
    p.indent { text-indent: 2em; margin: 0 0 0.5em; }
    aside.lore-card { display: inline-block; border: 1px solid #c7d2fe; background: #eef2ff; padding: 0.25rem 0.5rem; border-radius: 6px; }
    .lore-category { text-transform: uppercase; font-size: 0.75em; font-weight: bold; }
    .status { color: #999; font-size: 0.8em; text-align: center; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{if .Author}}<p class="byline">{{.Author}}</p>{{end}}
  <p class="meta">{{if .Genre}}{{.Genre}} | {{end}}{{.WordCount}} words | {{formatDate .GeneratedAt "Jan 2, 2006"}}</p>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  {{if .Chapters}}
  <nav>
    <h2>Contents</h2>
    <ol>{{range .Chapters}}<li><a href="#{{.Anchor}}">{{.Title}}</a></li>{{end}}</ol>
  </nav>
  {{end}}
  {{range .Chapters}}
  <section class="chapter" id="{{.Anchor}}">
    <h2>{{.Title}}</h2>
    {{if ne .Status "live"}}<p class="status">{{.Status}}</p>{{end}}
    {{.BodyHTML}}
  </section>
  {{end}}
</body>
</html>`
