// Package builder assembles documents in memory: existing pages can be
// re-sequenced and new pages composed from drawing primitives.
package builder

import (
	"fmt"
	"image"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

// DocumentBuilder accumulates pages and produces a semantic document.
type DocumentBuilder struct {
	pages   []*semantic.Page
	pending []*PageBuilder
	err     error
}

func New() *DocumentBuilder {
	return &DocumentBuilder{}
}

// AddPage appends an existing page, typically one parsed from another
// document. The page keeps its origin so its resources copy through on
// write.
func (b *DocumentBuilder) AddPage(p *semantic.Page) *DocumentBuilder {
	b.pages = append(b.pages, p)
	b.pending = append(b.pending, nil)
	return b
}

// NewPage starts a blank page of the given size in points.
func (b *DocumentBuilder) NewPage(width, height float64) *PageBuilder {
	pb := &PageBuilder{
		builder: b,
		page: &semantic.Page{
			MediaBox: semantic.Rectangle{URX: width, URY: height},
			Resources: &semantic.Resources{
				XObjects: make(map[string]*semantic.XObject),
				Fonts:    make(map[string]*semantic.Font),
			},
		},
	}
	b.pages = append(b.pages, pb.page)
	b.pending = append(b.pending, pb)
	return pb
}

// Build finalizes page order and content streams.
func (b *DocumentBuilder) Build() (*semantic.Document, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.pages) == 0 {
		return nil, fmt.Errorf("builder: document has no pages")
	}
	doc := &semantic.Document{Version: "1.7"}
	for i, page := range b.pages {
		if pb := b.pending[i]; pb != nil {
			page.Contents = []*semantic.ContentStream{{
				Operations: pb.ops,
				Dirty:      true,
			}}
		}
		page.Index = i
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}

func (b *DocumentBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// PageBuilder composes one page as a sequence of drawing operations.
type PageBuilder struct {
	builder   *DocumentBuilder
	page      *semantic.Page
	ops       []semantic.Operation
	numImages int
}

func num(v float64) semantic.Operand { return semantic.NumberOperand(v) }

// DrawRectangle fills an axis-aligned rectangle with an opaque RGB color.
func (pb *PageBuilder) DrawRectangle(x, y, w, h float64, r, g, b float64) *PageBuilder {
	pb.ops = append(pb.ops,
		semantic.Operation{Operator: "q"},
		semantic.Operation{Operator: "rg", Operands: []semantic.Operand{num(r), num(g), num(b)}},
		semantic.Operation{Operator: "re", Operands: []semantic.Operand{num(x), num(y), num(w), num(h)}},
		semantic.Operation{Operator: "f"},
		semantic.Operation{Operator: "Q"},
	)
	return pb
}

// DrawImage places img scaled into the box (x, y, w, h).
func (pb *PageBuilder) DrawImage(img image.Image, x, y, w, h float64) *PageBuilder {
	xo, err := FromImage(img)
	if err != nil {
		pb.builder.fail(fmt.Errorf("builder: embed image: %w", err))
		return pb
	}
	name := fmt.Sprintf("Im%d", pb.numImages)
	pb.numImages++
	xo.Name = name
	pb.page.Resources.XObjects[name] = xo
	pb.ops = append(pb.ops,
		semantic.Operation{Operator: "q"},
		semantic.Operation{Operator: "cm", Operands: []semantic.Operand{
			num(w), num(0), num(0), num(h), num(x), num(y),
		}},
		semantic.Operation{Operator: "Do", Operands: []semantic.Operand{semantic.NameOperand(name)}},
		semantic.Operation{Operator: "Q"},
	)
	return pb
}

// helveticaFont is the standard font every built page with text shares.
// Base-14 fonts need no embedded program.
const helveticaFont = "F1"

// DrawText places a line of text with its baseline at (x, y).
func (pb *PageBuilder) DrawText(text string, x, y, size float64) *PageBuilder {
	if _, ok := pb.page.Resources.Fonts[helveticaFont]; !ok {
		pb.page.Resources.Fonts[helveticaFont] = &semantic.Font{
			Name:     helveticaFont,
			Subtype:  "Type1",
			BaseFont: "Helvetica",
		}
	}
	pb.ops = append(pb.ops,
		semantic.Operation{Operator: "BT"},
		semantic.Operation{Operator: "Tf", Operands: []semantic.Operand{
			semantic.NameOperand(helveticaFont), num(size),
		}},
		semantic.Operation{Operator: "Td", Operands: []semantic.Operand{num(x), num(y)}},
		semantic.Operation{Operator: "Tj", Operands: []semantic.Operand{
			semantic.StringOperand(encodeWinAnsi(text)),
		}},
		semantic.Operation{Operator: "ET"},
	)
	return pb
}

// Page exposes the page under construction.
func (pb *PageBuilder) Page() *semantic.Page { return pb.page }

// Operations returns the drawing program accumulated so far, serialized.
// Mostly useful in tests.
func (pb *PageBuilder) Operations() []byte {
	return contentstream.Serialize(pb.ops)
}

// encodeWinAnsi maps text to the single-byte encoding used for unembedded
// standard fonts. Characters outside Latin-1 degrade to '?'.
func encodeWinAnsi(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if r < 0x100 {
			out = append(out, byte(r))
		} else {
			out = append(out, '?')
		}
	}
	return out
}
