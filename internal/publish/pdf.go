package publish

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
)

const (
	pageMargin = 20.0 // mm
	bodySize   = 12.0 // pt
	codeSize   = 10.0
	listIndent = 6.0
	ptToMM     = 25.4 / 72
)

type rgb struct{ r, g, b int }

var (
	bodyColor   = rgb{51, 51, 51}
	strongColor = rgb{0, 0, 0}
	headings    = map[int]struct {
		size  float64
		color rgb
	}{
		1: {24, rgb{46, 134, 193}},
		2: {18, rgb{40, 116, 166}},
		3: {14, rgb{27, 79, 114}},
	}
)

func lineHeight(size float64) float64 { return size * ptToMM * 1.5 }

// PDF renders markdown as an A4 document.
func (p *Publisher) PDF(markdown string) ([]byte, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, &PublishError{Format: "pdf", Err: ErrEmptyDocument}
	}
	doc, src := p.parse(markdown)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AliasNbPages("")
	pdf.SetCreator("Empty Fridge", true)
	if title := firstHeading(doc, src); title != "" {
		pdf.SetTitle(title, true)
	}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	r := &pdfRenderer{pdf: pdf, src: src, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	r.blocks(doc)

	if err := pdf.Error(); err != nil {
		return nil, &PublishError{Format: "pdf", Err: err}
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &PublishError{Format: "pdf", Err: err}
	}
	return buf.Bytes(), nil
}

type style struct {
	bold, italic, mono bool
	size               float64
	color              rgb
}

func (s style) family() string {
	if s.mono {
		return "Courier"
	}
	return "Helvetica"
}

func (s style) face() string {
	f := ""
	if s.bold {
		f += "B"
	}
	if s.italic {
		f += "I"
	}
	return f
}

type pdfRenderer struct {
	pdf        *fpdf.Fpdf
	src        []byte
	tr         func(string) string
	indent     float64
	blockCount int
}

func body() style { return style{size: bodySize, color: bodyColor} }

func (r *pdfRenderer) blocks(n ast.Node) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		r.block(c)
	}
}

func (r *pdfRenderer) block(n ast.Node) {
	defer func() { r.blockCount++ }()

	switch v := n.(type) {
	case *ast.Heading:
		h, ok := headings[v.Level]
		if !ok {
			h = headings[3]
		}
		st := style{bold: true, size: h.size, color: h.color}
		if r.blockCount > 0 {
			r.pdf.Ln(lineHeight(bodySize) / 2)
		}
		r.inlines(v, st)
		r.pdf.Ln(lineHeight(h.size))
		if v.Level == 1 {
			y := r.pdf.GetY()
			r.pdf.SetDrawColor(h.color.r, h.color.g, h.color.b)
			r.pdf.SetLineWidth(0.5)
			r.pdf.Line(pageMargin, y, 210-pageMargin, y)
			r.pdf.Ln(2)
		}

	case *ast.Paragraph, *ast.TextBlock:
		r.inlines(v, body())
		r.pdf.Ln(lineHeight(bodySize))

	case *ast.List:
		r.list(v)
		r.pdf.Ln(lineHeight(bodySize) / 3)

	case *ast.ThematicBreak:
		y := r.pdf.GetY() + 2
		r.pdf.SetDrawColor(200, 200, 200)
		r.pdf.SetLineWidth(0.2)
		r.pdf.Line(pageMargin, y, 210-pageMargin, y)
		r.pdf.Ln(4)

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		r.code(v)

	case *ast.Blockquote:
		r.nested(listIndent, func() { r.blocks(v) })

	case *east.Table:
		r.table(v)

	case *ast.HTMLBlock:
		// Raw HTML is not rendered.

	default:
		r.blocks(v)
	}
}

// nested renders fn with the left margin pushed in by width.
func (r *pdfRenderer) nested(width float64, fn func()) {
	r.indent += width
	r.pdf.SetLeftMargin(pageMargin + r.indent)
	fn()
	r.indent -= width
	r.pdf.SetLeftMargin(pageMargin + r.indent)
}

func (r *pdfRenderer) list(l *ast.List) {
	lh := lineHeight(bodySize)
	i := 0
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "•"
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d.", l.Start+i)
		}
		i++

		r.apply(body())
		r.pdf.SetX(pageMargin + r.indent)
		r.pdf.CellFormat(listIndent, lh, r.tr(marker), "", 0, "L", false, 0, "")
		r.nested(listIndent, func() {
			for c := item.FirstChild(); c != nil; c = c.NextSibling() {
				r.block(c)
			}
		})
	}
}

func (r *pdfRenderer) code(n ast.Node) {
	st := style{mono: true, size: codeSize, color: bodyColor}
	r.apply(st)
	lines := n.Lines()
	var b strings.Builder
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(r.src))
	}
	r.pdf.SetFillColor(245, 245, 245)
	r.pdf.MultiCell(0, lineHeight(codeSize), r.tr(strings.TrimRight(b.String(), "\n")), "", "L", true)
	r.pdf.Ln(lineHeight(codeSize) / 2)
}

func (r *pdfRenderer) table(t *east.Table) {
	lh := lineHeight(bodySize)
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		st := body()
		if _, header := row.(*east.TableHeader); header {
			st.bold = true
		}
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, strings.TrimSpace(plainText(cell, r.src)))
		}
		r.apply(st)
		r.pdf.MultiCell(0, lh, r.tr(strings.Join(cells, " | ")), "", "L", false)
	}
	r.pdf.Ln(lh / 2)
}

func (r *pdfRenderer) apply(st style) {
	r.pdf.SetFont(st.family(), st.face(), st.size)
	r.pdf.SetTextColor(st.color.r, st.color.g, st.color.b)
}

func (r *pdfRenderer) write(st style, s string) {
	if s == "" {
		return
	}
	r.apply(st)
	r.pdf.Write(lineHeight(st.size), r.tr(s))
}

func (r *pdfRenderer) inlines(n ast.Node, st style) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			r.write(st, string(v.Segment.Value(r.src)))
			switch {
			case v.HardLineBreak():
				r.pdf.Ln(lineHeight(st.size))
			case v.SoftLineBreak():
				r.write(st, " ")
			}
		case *ast.String:
			r.write(st, string(v.Value))
		case *ast.Emphasis:
			inner := st
			if v.Level >= 2 {
				inner.bold = true
				inner.color = strongColor
			} else {
				inner.italic = true
			}
			r.inlines(v, inner)
		case *ast.CodeSpan:
			inner := st
			inner.mono = true
			r.write(inner, plainText(v, r.src))
		case *ast.AutoLink:
			r.write(st, string(v.Label(r.src)))
		case *ast.RawHTML:
			// skipped
		default:
			r.inlines(v, st)
		}
	}
}
