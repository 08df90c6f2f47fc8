package publish

import (
	"bytes"
	"html/template"
	"strings"
)

var page = template.Must(template.New("recipe").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
@page { size: A4; margin: 2cm; }
body { font-family: Helvetica, sans-serif; font-size: 12pt; line-height: 1.5; color: #333333; }
h1 { color: #2E86C1; font-size: 24pt; border-bottom: 2px solid #2E86C1; padding-bottom: 5px; }
h2 { color: #2874A6; font-size: 18pt; margin-top: 20px; }
h3 { color: #1B4F72; font-size: 14pt; }
ul { margin-bottom: 15px; }
li { margin-bottom: 5px; }
strong { color: #000000; font-weight: bold; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders markdown as a standalone styled page. Raw HTML in the markdown is dropped.
// An empty title falls back to the recipe's first heading.
func (p *Publisher) HTML(title, markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, &PublishError{Format: "html", Err: ErrEmptyDocument}
	}

	var body bytes.Buffer
	if err := p.md.Convert([]byte(markdown), &body); err != nil {
		return nil, &PublishError{Format: "html", Err: err}
	}
	if title == "" {
		title = p.Title(markdown)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
	if err != nil {
		return nil, &PublishError{Format: "html", Err: err}
	}
	return out.Bytes(), nil
}
