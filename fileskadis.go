// Package fileskadis manipulates PDF files: merge documents and images into
// one file, extract page ranges, and irreversibly redact page regions.
//
// The package-level functions cover the common cases with default settings.
// The aggregator, separator and masker packages expose the same operations
// with options for logging, compression, fill color and blur radius.
package fileskadis

import (
	"context"

	"github.com/fileskadis/fileskadis/aggregator"
	"github.com/fileskadis/fileskadis/masker"
	"github.com/fileskadis/fileskadis/safeio"
	"github.com/fileskadis/fileskadis/separator"
	"github.com/fileskadis/fileskadis/source"
)

// Region is a redaction rectangle in page coordinates, origin bottom-left.
type Region = masker.Region

// Mode selects the redaction style.
type Mode = masker.Mode

const (
	ModeSolid = masker.ModeSolid
	ModeBlur  = masker.ModeBlur
)

// Error types returned by the operations, usable with errors.As.
type (
	InvalidRangeError      = separator.InvalidRangeError
	InvalidRegionError     = masker.InvalidRegionError
	NotFoundError          = source.NotFoundError
	UnsupportedFormatError = source.UnsupportedFormatError
	WriteFailureError      = safeio.WriteFailureError
)

// Merge combines the inputs into one PDF at destPath. PDF inputs contribute
// all their pages in order; image inputs (png, jpeg, gif, bmp, tiff, webp)
// become one page each at their natural size.
func Merge(ctx context.Context, inputs []string, destPath string) error {
	return aggregator.New().Merge(ctx, inputs, destPath)
}

// Extract writes the pages of sourcePath selected by rangeExpr, for example
// "1-3,5,7-10", to destPath in ascending order.
func Extract(ctx context.Context, sourcePath, rangeExpr, destPath string) error {
	return separator.New().Extract(ctx, sourcePath, rangeExpr, destPath)
}

// ExtractEach writes one single-page PDF per selected page into destDir and
// returns the written paths.
func ExtractEach(ctx context.Context, sourcePath, rangeExpr, destDir string) ([]string, error) {
	return separator.New().ExtractEach(ctx, sourcePath, rangeExpr, destDir)
}

// PageCount reports the number of pages in the document at sourcePath.
func PageCount(ctx context.Context, sourcePath string) (int, error) {
	return separator.New().PageCount(ctx, sourcePath)
}

// Redact removes the content under regions on one zero-indexed page of
// sourcePath and writes the result to destPath. The redacted content is not
// recoverable from the output.
func Redact(ctx context.Context, sourcePath string, page int, regions []Region, mode Mode, destPath string) error {
	return masker.New().Redact(ctx, sourcePath, page, regions, mode, destPath)
}

// RedactMap redacts regions on several pages in one pass.
func RedactMap(ctx context.Context, sourcePath string, regions map[int][]Region, mode Mode, destPath string) error {
	return masker.New().RedactMap(ctx, sourcePath, regions, mode, destPath)
}
