// Package masker irreversibly redacts rectangular page regions. Content
// painted inside a region is deleted from the content stream; raster images
// that extend past a region have the covered pixels destructively
// overwritten. The output never contains the original bytes of redacted
// content.
package masker

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/contentstream/editor"
	"github.com/fileskadis/fileskadis/ir"
	"github.com/fileskadis/fileskadis/ir/raw"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/safeio"
	"github.com/fileskadis/fileskadis/source"
	"github.com/fileskadis/fileskadis/writer"
)

// Region is a rectangle in page coordinate space, origin bottom-left.
type Region struct {
	X, Y, Width, Height float64
}

// Mode selects how redacted areas look in the output.
type Mode int

const (
	// ModeSolid paints an opaque rectangle over each region.
	ModeSolid Mode = iota
	// ModeBlur replaces covered image pixels with a Gaussian blur. Vector
	// and text content has no pixels to blur, so it is removed and covered
	// with a solid fill instead.
	ModeBlur
)

// Fill selects the solid fill color.
type Fill int

const (
	FillBlack Fill = iota
	FillWhite
)

// InvalidRegionError reports a redaction request that cannot be applied.
type InvalidRegionError struct {
	Page   int
	Region Region
	Reason string
}

func (e *InvalidRegionError) Error() string {
	return fmt.Sprintf("invalid redaction region on page %d: %s", e.Page, e.Reason)
}

type Masker struct {
	pipeline    *ir.Pipeline
	writer      *writer.Writer
	editor      *editor.Editor
	logger      observability.Logger
	compression int
	fill        Fill
	blurRadius  int
}

type Option func(*Masker)

func WithLogger(l observability.Logger) Option {
	return func(m *Masker) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCompression sets the flate level for output streams, 0 stores them
// uncompressed.
func WithCompression(level int) Option {
	return func(m *Masker) { m.compression = level }
}

// WithFill selects the solid fill color, black by default.
func WithFill(f Fill) Option {
	return func(m *Masker) { m.fill = f }
}

// WithBlurRadius sets the Gaussian kernel radius in pixels for ModeBlur.
func WithBlurRadius(r int) Option {
	return func(m *Masker) {
		if r > 0 {
			m.blurRadius = r
		}
	}
}

const defaultBlurRadius = 30

func New(opts ...Option) *Masker {
	m := &Masker{
		logger:      observability.NopLogger{},
		compression: 6,
		blurRadius:  defaultBlurRadius,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.pipeline = ir.NewDefault(ir.WithLogger(m.logger))
	m.writer = writer.New(writer.WithLogger(m.logger))
	m.editor = editor.New(m.logger)
	return m
}

// Redact applies regions to one page, zero indexed, and writes the result to
// destPath. The source file is not touched.
func (m *Masker) Redact(ctx context.Context, sourcePath string, page int, regions []Region, mode Mode, destPath string) error {
	return m.RedactMap(ctx, sourcePath, map[int][]Region{page: regions}, mode, destPath)
}

// RedactMap applies regions to several pages in one pass. Page keys are zero
// indexed. All pages and regions are validated before anything is modified,
// so a bad request produces no output at all.
func (m *Masker) RedactMap(ctx context.Context, sourcePath string, pageRegions map[int][]Region, mode Mode, destPath string) error {
	data, err := source.ReadPDF(sourcePath)
	if err != nil {
		return err
	}
	doc, err := m.pipeline.Parse(ctx, data)
	if err != nil {
		return fmt.Errorf("masker: parse %s: %w", sourcePath, err)
	}

	pages := make([]int, 0, len(pageRegions))
	for p := range pageRegions {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	for _, p := range pages {
		if p < 0 || p >= len(doc.Pages) {
			return &InvalidRegionError{Page: p, Reason: fmt.Sprintf("page outside document of %d pages", len(doc.Pages))}
		}
		if len(pageRegions[p]) == 0 {
			return &InvalidRegionError{Page: p, Reason: "no regions given"}
		}
		for _, r := range pageRegions[p] {
			if r.Width <= 0 || r.Height <= 0 {
				return &InvalidRegionError{Page: p, Region: r, Reason: "width and height must be positive"}
			}
		}
	}

	removedXO := make(map[raw.Ref]*semantic.XObject)
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.redactPage(doc.Pages[p], pageRegions[p], mode, removedXO); err != nil {
			return err
		}
	}
	if err := scrubRemovedXObjects(doc, removedXO); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := m.writer.Write(ctx, doc, &buf, writer.Config{Compression: m.compression}); err != nil {
		return err
	}
	return safeio.WriteFile(destPath, buf.Bytes(), 0o644)
}

func (m *Masker) redactPage(page *semantic.Page, regions []Region, mode Mode, removedXO map[raw.Ref]*semantic.XObject) error {
	rects := make([]semantic.Rectangle, 0, len(regions))
	for _, r := range regions {
		rect := semantic.Rectangle{LLX: r.X, LLY: r.Y, URX: r.X + r.Width, URY: r.Y + r.Height}
		rect = rect.Intersect(page.MediaBox)
		if !rect.IsEmpty() {
			rects = append(rects, rect)
		}
	}
	if len(rects) == 0 {
		return nil
	}

	plan, err := m.planPixelEdits(page, rects)
	if err != nil {
		return err
	}

	// Editable images stay in the stream; their covered pixels are
	// destroyed below. Everything else painting into a region is deleted.
	keep := func(b contentstream.OpBox) bool {
		if b.Kind != contentstream.KindImage || page.Resources == nil {
			return false
		}
		xo := page.Resources.XObjects[b.XObject]
		return xo != nil && editable(xo)
	}

	// Survey what the removal pass will delete before it runs: the clipped
	// footprints feed the blur fallback fill, and any XObject losing its
	// placement is recorded so its stream can be wiped from the output.
	prog, err := contentstream.PageProgram(page)
	if err != nil {
		return fmt.Errorf("masker: %w", err)
	}
	boxes := contentstream.NewTracer(page.Resources).Trace(prog.Ops, page.MediaBox)
	ix := editor.NewIndex(page.MediaBox, boxes)
	var footprints []semantic.Rectangle
	for _, rect := range rects {
		for _, hit := range ix.Query(rect) {
			if keep(hit) {
				continue
			}
			if hit.XObject != "" && page.Resources != nil {
				if xo := page.Resources.XObjects[hit.XObject]; xo != nil && xo.Ref != (raw.Ref{}) {
					removedXO[xo.Ref] = xo
				}
			}
			clipped := hit.Box.Intersect(rect)
			if !clipped.IsEmpty() {
				footprints = append(footprints, clipped)
			}
		}
	}

	var fillBoxes []semantic.Rectangle
	switch mode {
	case ModeSolid:
		fillBoxes = rects
	case ModeBlur:
		// Removed vector and text content cannot be blurred; its footprint
		// gets a solid fill so nothing shows through, while blurred images
		// stay visible.
		fillBoxes = footprints
	}

	removed := 0
	for _, rect := range rects {
		n, err := m.editor.RemoveRectFunc(page, rect, keep)
		if err != nil {
			return err
		}
		removed += n
	}

	if err := plan.apply(mode, m.fill, m.blurRadius); err != nil {
		return err
	}
	if err := appendFills(page, fillBoxes, m.fill); err != nil {
		return err
	}

	m.logger.Info("page redacted",
		observability.Int("page", page.Index),
		observability.Int("regions", len(rects)),
		observability.Int(observability.MetricOpsRemoved, removed))
	return nil
}

// scrubRemovedXObjects wipes the stream of every XObject whose placements
// were all deleted. Removing a Do alone is not enough: the object graph still
// reaches the stream through the copied resource dictionary, and the original
// payload would survive in the output file. An XObject still placed somewhere
// in the document keeps its data, since that data remains visible anyway.
func scrubRemovedXObjects(doc *semantic.Document, removed map[raw.Ref]*semantic.XObject) error {
	if len(removed) == 0 {
		return nil
	}
	inUse := make(map[raw.Ref]bool)
	for _, page := range doc.Pages {
		if page.Resources == nil {
			continue
		}
		prog, err := contentstream.PageProgram(page)
		if err != nil {
			return fmt.Errorf("masker: %w", err)
		}
		for _, op := range prog.Ops {
			if op.Operator != "Do" || len(op.Operands) == 0 {
				continue
			}
			name, ok := op.Operands[len(op.Operands)-1].(semantic.NameOperand)
			if !ok {
				continue
			}
			if xo := page.Resources.XObjects[string(name)]; xo != nil && xo.Ref != (raw.Ref{}) {
				inUse[xo.Ref] = true
			}
		}
	}
	for ref, xo := range removed {
		if inUse[ref] {
			continue
		}
		xo.Subtype = "Image"
		xo.Width = 1
		xo.Height = 1
		xo.BitsPerComponent = 8
		xo.ColorSpace = "DeviceGray"
		xo.Filters = nil
		xo.Data = []byte{0}
		xo.SMask = nil
		xo.Replaced = true
	}
	return nil
}

// appendFills paints opaque rectangles over the given boxes at the end of
// the page's content.
func appendFills(page *semantic.Page, boxes []semantic.Rectangle, fill Fill) error {
	if len(boxes) == 0 {
		return nil
	}
	level := 0.0
	if fill == FillWhite {
		level = 1.0
	}
	num := func(v float64) semantic.Operand { return semantic.NumberOperand(v) }
	if len(page.Contents) == 0 {
		page.Contents = []*semantic.ContentStream{{}}
	}
	cs := page.Contents[len(page.Contents)-1]
	// The stream may still be in raw form; marking it dirty without its
	// parsed operations would drop the original content.
	if err := contentstream.Parse(cs); err != nil {
		return err
	}
	for _, b := range boxes {
		cs.Operations = append(cs.Operations,
			semantic.Operation{Operator: "q"},
			semantic.Operation{Operator: "rg", Operands: []semantic.Operand{num(level), num(level), num(level)}},
			semantic.Operation{Operator: "re", Operands: []semantic.Operand{
				num(b.LLX), num(b.LLY), num(b.Width()), num(b.Height()),
			}},
			semantic.Operation{Operator: "f"},
			semantic.Operation{Operator: "Q"},
		)
	}
	cs.Dirty = true
	return nil
}
