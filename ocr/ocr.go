// Package ocr defines the recognition contract for finding text inside
// raster images. Scanned documents carry their text as pixels, so redaction
// scans need an engine that can read images; the tesseract subpackage
// provides the default implementation.
package ocr

import (
	"bytes"
	"context"
	"fmt"

	"github.com/fileskadis/fileskadis/extractor"
)

// Region is a rectangle in image pixel coordinates, origin top-left.
type Region struct {
	X, Y, Width, Height float64
}

func (r Region) IsEmpty() bool { return r.Width <= 0 || r.Height <= 0 }

// Word is one recognized token with its pixel bounds.
type Word struct {
	Text       string
	Bounds     Region
	Confidence float64
}

// Input is a single encoded image submitted for recognition.
type Input struct {
	// ID is echoed back in the Result so batches stay correlated.
	ID string
	// Image holds the PNG-encoded payload.
	Image []byte
	// Page is the zero-based index of the page the image came from.
	Page int
	// Languages lists trained-data hints such as "eng". Empty means the
	// engine default.
	Languages []string
	// DPI is the effective resolution, zero when unknown.
	DPI int
}

// Result is the recognized content of one input.
type Result struct {
	InputID string
	Text    string
	Words   []Word
}

// Engine recognizes text in one image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// Option adjusts an Input built from an image asset.
type Option func(*Input)

func WithLanguages(langs ...string) Option {
	return func(in *Input) { in.Languages = append([]string(nil), langs...) }
}

func WithDPI(dpi int) Option {
	return func(in *Input) { in.DPI = dpi }
}

// InputFromAsset encodes a page image as PNG and wraps it for recognition.
// The ID combines page index and resource name so results map back to the
// placement that produced them.
func InputFromAsset(asset extractor.ImageAsset, opts ...Option) (Input, error) {
	var buf bytes.Buffer
	if err := asset.ToPNG(&buf); err != nil {
		return Input{}, fmt.Errorf("encode image: %w", err)
	}
	in := Input{
		ID:    fmt.Sprintf("page-%d-%s", asset.Page, asset.Name),
		Image: buf.Bytes(),
		Page:  asset.Page,
	}
	for _, opt := range opts {
		opt(&in)
	}
	return in, nil
}
