// Package extractor pulls text and images back out of parsed documents. The
// redaction tests lean on it: content removed from a page must also be gone
// from everything this package can recover.
package extractor

import (
	"fmt"
	"strings"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

// TextSpan is one shown string with its page footprint.
type TextSpan struct {
	Page int
	Text string
	Box  semantic.Rectangle
}

type Extractor struct {
	doc *semantic.Document
}

func New(doc *semantic.Document) *Extractor {
	return &Extractor{doc: doc}
}

// Spans returns every text show operation in the document, decoded and
// located.
func (e *Extractor) Spans() ([]TextSpan, error) {
	var spans []TextSpan
	for _, page := range e.doc.Pages {
		pageSpans, err := e.pageSpans(page)
		if err != nil {
			return nil, err
		}
		spans = append(spans, pageSpans...)
	}
	return spans, nil
}

// PageText linearizes the text of one page, top line first.
func (e *Extractor) PageText(pageIndex int) (string, error) {
	if pageIndex < 0 || pageIndex >= len(e.doc.Pages) {
		return "", fmt.Errorf("extractor: page %d out of range", pageIndex)
	}
	page := e.doc.Pages[pageIndex]
	prog, err := contentstream.PageProgram(page)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writePageText(&sb, prog.Ops, page.Resources)
	return strings.TrimRight(sb.String(), "\n"), nil
}

// Text linearizes the whole document, pages separated by form feeds.
func (e *Extractor) Text() (string, error) {
	parts := make([]string, 0, len(e.doc.Pages))
	for i := range e.doc.Pages {
		text, err := e.PageText(i)
		if err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\f"), nil
}

func (e *Extractor) pageSpans(page *semantic.Page) ([]TextSpan, error) {
	prog, err := contentstream.PageProgram(page)
	if err != nil {
		return nil, err
	}
	boxes := contentstream.NewTracer(page.Resources).Trace(prog.Ops, page.MediaBox)
	byIndex := make(map[int]semantic.Rectangle, len(boxes))
	for _, b := range boxes {
		if b.Kind == contentstream.KindText {
			byIndex[b.Index] = b.Box
		}
	}
	var spans []TextSpan
	dec := newTextDecoder(page.Resources)
	for i, op := range prog.Ops {
		dec.observe(op)
		text := dec.shownText(op)
		if text == "" {
			continue
		}
		spans = append(spans, TextSpan{
			Page: page.Index,
			Text: text,
			Box:  byIndex[i],
		})
	}
	return spans, nil
}

func writePageText(sb *strings.Builder, ops []semantic.Operation, res *semantic.Resources) {
	dec := newTextDecoder(res)
	lineBreak := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	for _, op := range ops {
		dec.observe(op)
		switch op.Operator {
		case "Td", "TD", "T*", "Tm", "'", "\"":
			lineBreak()
		}
		if text := dec.shownText(op); text != "" {
			sb.WriteString(text)
		}
	}
	lineBreak()
}

// textDecoder tracks the active font and decodes show-operator strings.
type textDecoder struct {
	res  *semantic.Resources
	font *fontDecoder
	// cache per font name
	cache map[string]*fontDecoder
}

func newTextDecoder(res *semantic.Resources) *textDecoder {
	return &textDecoder{res: res, cache: make(map[string]*fontDecoder)}
}

func (d *textDecoder) observe(op semantic.Operation) {
	if op.Operator != "Tf" || len(op.Operands) < 2 {
		return
	}
	name, ok := op.Operands[len(op.Operands)-2].(semantic.NameOperand)
	if !ok {
		return
	}
	if fd, ok := d.cache[string(name)]; ok {
		d.font = fd
		return
	}
	var font *semantic.Font
	if d.res != nil {
		font = d.res.Fonts[string(name)]
	}
	fd := newFontDecoder(font)
	d.cache[string(name)] = fd
	d.font = fd
}

// shownText decodes the string painted by op, if any.
func (d *textDecoder) shownText(op semantic.Operation) string {
	switch op.Operator {
	case "Tj", "'", "\"":
		if len(op.Operands) == 0 {
			return ""
		}
		if s, ok := op.Operands[len(op.Operands)-1].(semantic.StringOperand); ok {
			return d.decode([]byte(s))
		}
	case "TJ":
		if len(op.Operands) == 0 {
			return ""
		}
		arr, ok := op.Operands[len(op.Operands)-1].(semantic.ArrayOperand)
		if !ok {
			return ""
		}
		var sb strings.Builder
		for _, item := range arr {
			if s, ok := item.(semantic.StringOperand); ok {
				sb.WriteString(d.decode([]byte(s)))
			}
		}
		return sb.String()
	}
	return ""
}

func (d *textDecoder) decode(raw []byte) string {
	if d.font == nil {
		return latin1(raw)
	}
	return d.font.decode(raw)
}

func latin1(raw []byte) string {
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}
