// Package publish turns a markdown recipe into documents for download.
package publish

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	// PDFFilename is the download name of the exported recipe.
	PDFFilename = "recipe.pdf"
	// PDFContentType is the MIME type of PDF exports.
	PDFContentType = "application/pdf"
	// HTMLContentType is the MIME type of HTML exports.
	HTMLContentType = "text/html; charset=utf-8"
)

// ErrEmptyDocument is returned when there is no markdown to render.
var ErrEmptyDocument = errors.New("document is empty")

// PublishError reports a document that could not be rendered.
type PublishError struct {
	Format string
	Err    error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("could not render %s: %v", e.Format, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Publisher renders recipes. It is safe for concurrent use.
type Publisher struct {
	md goldmark.Markdown
}

// New creates a Publisher that understands GitHub-flavoured markdown.
func New() *Publisher {
	return &Publisher{
		md: goldmark.New(goldmark.WithExtensions(extension.GFM, extension.DefinitionList, extension.Footnote)),
	}
}

func (p *Publisher) parse(markdown string) (ast.Node, []byte) {
	src := []byte(markdown)
	return p.md.Parser().Parse(text.NewReader(src)), src
}

// Title returns the text of the first level-1 heading, or "" if there is none.
func (p *Publisher) Title(markdown string) string {
	doc, src := p.parse(markdown)
	return firstHeading(doc, src)
}

func firstHeading(doc ast.Node, src []byte) string {
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering && h.Level == 1 {
			title = strings.TrimSpace(plainText(h, src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// plainText concatenates the literal text below n.
func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := c.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(src))
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}
