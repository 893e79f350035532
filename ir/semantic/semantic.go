// Package semantic models a document the way operations consume it: pages
// with boxes, resources and content streams, independent of file layout.
package semantic

import "github.com/fileskadis/fileskadis/ir/raw"

// Document is an ordered page list. Pages parsed from a file keep a handle
// to their raw object graph so unmodified resources copy through verbatim on
// write; pages assembled by the builder have no origin.
type Document struct {
	Version string
	Pages   []*Page
}

// Rectangle is an axis-aligned box in page space, origin bottom-left.
type Rectangle struct {
	LLX, LLY, URX, URY float64
}

func (r Rectangle) Width() float64  { return r.URX - r.LLX }
func (r Rectangle) Height() float64 { return r.URY - r.LLY }

// Normalize orders the corners so LL is really lower-left.
func (r Rectangle) Normalize() Rectangle {
	if r.LLX > r.URX {
		r.LLX, r.URX = r.URX, r.LLX
	}
	if r.LLY > r.URY {
		r.LLY, r.URY = r.URY, r.LLY
	}
	return r
}

func (r Rectangle) IsEmpty() bool {
	return r.URX <= r.LLX || r.URY <= r.LLY
}

func (r Rectangle) Intersects(o Rectangle) bool {
	return r.LLX < o.URX && o.LLX < r.URX && r.LLY < o.URY && o.LLY < r.URY
}

// Intersect clips r to o; the result may be empty.
func (r Rectangle) Intersect(o Rectangle) Rectangle {
	out := r
	if o.LLX > out.LLX {
		out.LLX = o.LLX
	}
	if o.LLY > out.LLY {
		out.LLY = o.LLY
	}
	if o.URX < out.URX {
		out.URX = o.URX
	}
	if o.URY < out.URY {
		out.URY = o.URY
	}
	return out
}

// Union expands r to cover o.
func (r Rectangle) Union(o Rectangle) Rectangle {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	out := r
	if o.LLX < out.LLX {
		out.LLX = o.LLX
	}
	if o.LLY < out.LLY {
		out.LLY = o.LLY
	}
	if o.URX > out.URX {
		out.URX = o.URX
	}
	if o.URY > out.URY {
		out.URY = o.URY
	}
	return out
}

func (r Rectangle) Contains(o Rectangle) bool {
	return o.LLX >= r.LLX && o.LLY >= r.LLY && o.URX <= r.URX && o.URY <= r.URY
}

// Page is one sheet of a document. Index is assigned when the page joins a
// Document and is zero based.
type Page struct {
	Index     int
	MediaBox  Rectangle
	Rotate    int
	Resources *Resources
	Contents  []*ContentStream

	// Origin is the raw object graph the page was parsed from, nil for
	// pages assembled in memory.
	Origin *raw.Document
	// RawResources is the original resource dictionary, used for verbatim
	// graph copying on output. Nil for assembled pages.
	RawResources raw.Dict
}

// Resources holds the page-level named resources the library interprets.
// Entries the library does not model (patterns, shadings, graphics states)
// survive through RawResources.
type Resources struct {
	XObjects map[string]*XObject
	Fonts    map[string]*Font
}

// Font is the subset of a font dictionary needed for text extraction.
type Font struct {
	Name      string
	Subtype   string
	BaseFont  string
	ToUnicode []byte
	Ref       raw.Ref
}

// XObject is an external object, usually an image. Data holds the payload
// after all supported filters are undone; Filters lists codecs still applied
// to Data (for example DCTDecode for JPEG images).
type XObject struct {
	Name             string
	Subtype          string
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       string
	Filters          []string
	Data             []byte
	SMask            *XObject

	// Ref and Dict tie a parsed XObject back to its raw object; both are
	// zero for images assembled by the builder.
	Ref  raw.Ref
	Dict raw.Dict
	// Replaced marks pixel data rewritten by redaction. The writer then
	// serializes from Data instead of copying the original stream.
	Replaced bool
}

// ContentStream is a page description. Raw holds decoded bytes; Operations
// is populated on demand by the contentstream package. Dirty marks edited
// operation lists that must be re-serialized on write.
type ContentStream struct {
	Raw        []byte
	Operations []Operation
	Dirty      bool
}

// Operation is one content-stream operator with its operands.
type Operation struct {
	Operator string
	Operands []Operand
}

// Operand is the union of content-stream operand types.
type Operand interface {
	isOperand()
}

type NumberOperand float64

type NameOperand string

type StringOperand []byte

type BoolOperand bool

type NullOperand struct{}

type ArrayOperand []Operand

type DictOperand map[string]Operand

// InlineImageOperand carries a BI..ID..EI image verbatim.
type InlineImageOperand struct {
	Dict DictOperand
	Data []byte
}

func (NumberOperand) isOperand()      {}
func (NameOperand) isOperand()        {}
func (StringOperand) isOperand()      {}
func (BoolOperand) isOperand()        {}
func (NullOperand) isOperand()        {}
func (ArrayOperand) isOperand()       {}
func (DictOperand) isOperand()        {}
func (InlineImageOperand) isOperand() {}

// Num returns the float value of a numeric operand.
func Num(op Operand) (float64, bool) {
	n, ok := op.(NumberOperand)
	return float64(n), ok
}
