// Package detect scans documents for payment card numbers so callers can
// turn the findings into redaction regions. Text is scanned through the
// extractor; raster images can be scanned through an OCR engine when one is
// supplied.
package detect

import (
	"context"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/coords"
	"github.com/fileskadis/fileskadis/extractor"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/masker"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/ocr"
)

// Hit is one card number candidate with its page footprint.
type Hit struct {
	Page   int
	Digits string
	Box    semantic.Rectangle
}

// Region converts the hit's footprint into a redaction region.
func (h Hit) Region() masker.Region {
	return masker.Region{
		X:      h.Box.LLX,
		Y:      h.Box.LLY,
		Width:  h.Box.Width(),
		Height: h.Box.Height(),
	}
}

type Detector struct {
	logger observability.Logger
	engine ocr.Engine
	langs  []string
}

type Option func(*Detector)

func WithLogger(l observability.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithOCR enables scanning of page images through the given engine.
func WithOCR(engine ocr.Engine, languages ...string) Option {
	return func(d *Detector) {
		d.engine = engine
		d.langs = languages
	}
}

func New(opts ...Option) *Detector {
	d := &Detector{logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CardNumbers finds Luhn-valid card number candidates in the document's
// text, and in its images when an OCR engine is configured.
func (d *Detector) CardNumbers(ctx context.Context, doc *semantic.Document) ([]Hit, error) {
	ex := extractor.New(doc)
	spans, err := ex.Spans()
	if err != nil {
		return nil, err
	}
	var hits []Hit
	for _, span := range spans {
		for _, c := range candidates(span.Text) {
			hits = append(hits, Hit{
				Page:   span.Page,
				Digits: c.digits,
				Box:    subBox(span.Box, span.Text, c.start, c.end),
			})
		}
	}
	if d.engine != nil {
		imageHits, err := d.scanImages(ctx, doc, ex)
		if err != nil {
			return nil, err
		}
		hits = append(hits, imageHits...)
	}
	d.logger.Info("card number scan finished", observability.Int("hits", len(hits)))
	return hits, nil
}

func (d *Detector) scanImages(ctx context.Context, doc *semantic.Document, ex *extractor.Extractor) ([]Hit, error) {
	var hits []Hit
	for _, asset := range ex.Images() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, err := ocr.InputFromAsset(asset, ocr.WithLanguages(d.langs...))
		if err != nil {
			d.logger.Warn("image skipped", observability.String("name", asset.Name), observability.Error("err", err))
			continue
		}
		res, err := d.engine.Recognize(ctx, in)
		if err != nil {
			return nil, err
		}
		placements := imagePlacements(doc, asset)
		for _, word := range res.Words {
			for _, c := range candidates(word.Text) {
				for _, ctm := range placements {
					hits = append(hits, Hit{
						Page:   asset.Page,
						Digits: c.digits,
						Box:    pixelBoxToPage(word.Bounds, asset.XObject, ctm),
					})
				}
			}
		}
	}
	return hits, nil
}

// imagePlacements returns the placement matrix of every Do of the asset's
// resource name on its page.
func imagePlacements(doc *semantic.Document, asset extractor.ImageAsset) []coords.Matrix {
	if asset.Page < 0 || asset.Page >= len(doc.Pages) {
		return nil
	}
	page := doc.Pages[asset.Page]
	prog, err := contentstream.PageProgram(page)
	if err != nil {
		return nil
	}
	var out []coords.Matrix
	for _, b := range contentstream.NewTracer(page.Resources).Trace(prog.Ops, page.MediaBox) {
		if b.Kind == contentstream.KindImage && b.XObject == asset.Name {
			out = append(out, b.CTM)
		}
	}
	return out
}

// pixelBoxToPage maps an OCR word's pixel bounds, origin top-left, through
// the image placement matrix into page space.
func pixelBoxToPage(b ocr.Region, xo *semantic.XObject, ctm coords.Matrix) semantic.Rectangle {
	w, h := float64(xo.Width), float64(xo.Height)
	if w == 0 || h == 0 {
		return semantic.Rectangle{}
	}
	// Unit space: u right, v up.
	u0 := b.X / w
	u1 := (b.X + b.Width) / w
	v0 := 1 - (b.Y+b.Height)/h
	v1 := 1 - b.Y/h
	pts := []coords.Point{
		ctm.Transform(coords.Point{X: u0, Y: v0}),
		ctm.Transform(coords.Point{X: u1, Y: v0}),
		ctm.Transform(coords.Point{X: u1, Y: v1}),
		ctm.Transform(coords.Point{X: u0, Y: v1}),
	}
	rect := semantic.Rectangle{LLX: pts[0].X, LLY: pts[0].Y, URX: pts[0].X, URY: pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < rect.LLX {
			rect.LLX = p.X
		}
		if p.Y < rect.LLY {
			rect.LLY = p.Y
		}
		if p.X > rect.URX {
			rect.URX = p.X
		}
		if p.Y > rect.URY {
			rect.URY = p.Y
		}
	}
	return rect
}

// subBox estimates the footprint of characters [start, end) within a span
// by slicing its box proportionally.
func subBox(box semantic.Rectangle, text string, start, end int) semantic.Rectangle {
	n := len(text)
	if n == 0 || box.IsEmpty() {
		return box
	}
	w := box.Width()
	return semantic.Rectangle{
		LLX: box.LLX + w*float64(start)/float64(n),
		LLY: box.LLY,
		URX: box.LLX + w*float64(end)/float64(n),
		URY: box.URY,
	}
}

type candidate struct {
	digits     string
	start, end int
}

// candidates finds runs of 13 to 19 digits, allowing single spaces or
// hyphens between groups, that pass the Luhn check.
func candidates(text string) []candidate {
	var out []candidate
	for i := 0; i < len(text); {
		if !isDigit(text[i]) {
			i++
			continue
		}
		start := i
		var digits []byte
		j := i
		for j < len(text) {
			if isDigit(text[j]) {
				digits = append(digits, text[j])
				j++
				continue
			}
			if (text[j] == ' ' || text[j] == '-') && j+1 < len(text) && isDigit(text[j+1]) {
				j++
				continue
			}
			break
		}
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(string(digits)) {
			out = append(out, candidate{digits: string(digits), start: start, end: j})
		}
		i = j
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// luhnValid implements the standard checksum used by payment card numbers.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
