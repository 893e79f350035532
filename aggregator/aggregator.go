// Package aggregator merges documents and raster images into one output.
// Inputs contribute pages in the order given: a PDF contributes all of its
// pages, an image becomes a single page sized to the image at 72 dpi.
package aggregator

import (
	"bytes"
	"context"
	"fmt"

	"github.com/fileskadis/fileskadis/builder"
	"github.com/fileskadis/fileskadis/ir"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/safeio"
	"github.com/fileskadis/fileskadis/source"
	"github.com/fileskadis/fileskadis/writer"
)

type Aggregator struct {
	pipeline    *ir.Pipeline
	writer      *writer.Writer
	logger      observability.Logger
	compression int
}

type Option func(*Aggregator)

func WithLogger(l observability.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCompression sets the flate level for output streams, 0 stores them
// uncompressed.
func WithCompression(level int) Option {
	return func(a *Aggregator) { a.compression = level }
}

func New(opts ...Option) *Aggregator {
	a := &Aggregator{logger: observability.NopLogger{}, compression: 6}
	for _, opt := range opts {
		opt(a)
	}
	a.pipeline = ir.NewDefault(ir.WithLogger(a.logger))
	a.writer = writer.New(writer.WithLogger(a.logger))
	return a
}

// Merge combines inputs into destPath. Every input is classified before any
// page is collected, so an unsupported or missing input fails the whole
// operation without producing output.
func (a *Aggregator) Merge(ctx context.Context, inputs []string, destPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("aggregator: no inputs")
	}
	kinds := make([]source.Kind, len(inputs))
	for i, path := range inputs {
		kind, err := source.Classify(path)
		if err != nil {
			return err
		}
		kinds[i] = kind
	}

	b := builder.New()
	total := 0
	for i, path := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch kinds[i] {
		case source.KindPDF:
			n, err := a.appendPDF(ctx, b, path)
			if err != nil {
				return err
			}
			total += n
		case source.KindImage:
			if err := a.appendImage(b, path); err != nil {
				return err
			}
			total++
		}
	}

	doc, err := b.Build()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := a.writer.Write(ctx, doc, &buf, writer.Config{Compression: a.compression}); err != nil {
		return err
	}
	a.logger.Info("documents merged",
		observability.Int("inputs", len(inputs)),
		observability.Int(observability.MetricPagesMerged, total),
		observability.String("dest", destPath))
	return safeio.WriteFile(destPath, buf.Bytes(), 0o644)
}

func (a *Aggregator) appendPDF(ctx context.Context, b *builder.DocumentBuilder, path string) (int, error) {
	data, err := source.ReadPDF(path)
	if err != nil {
		return 0, err
	}
	doc, err := a.pipeline.Parse(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("aggregator: parse %s: %w", path, err)
	}
	for _, page := range doc.Pages {
		b.AddPage(page)
	}
	return len(doc.Pages), nil
}

// appendImage places the image on a page of its own natural size, one pixel
// per point.
func (a *Aggregator) appendImage(b *builder.DocumentBuilder, path string) error {
	img, err := source.DecodeImage(path)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if w <= 0 || h <= 0 {
		return &source.UnsupportedFormatError{Path: path}
	}
	b.NewPage(w, h).DrawImage(img, 0, 0, w, h)
	return nil
}
