// Package separator pulls pages out of a document. Page ranges use the
// familiar printer syntax: "1-3,5,7-10", one indexed, inclusive.
package separator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fileskadis/fileskadis/builder"
	"github.com/fileskadis/fileskadis/ir"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/safeio"
	"github.com/fileskadis/fileskadis/source"
	"github.com/fileskadis/fileskadis/writer"
)

// InvalidRangeError reports a page range expression that cannot be applied
// to the document. Token is the offending piece of the expression.
type InvalidRangeError struct {
	Expr   string
	Token  string
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid page range %q: token %q %s", e.Expr, e.Token, e.Reason)
}

type Separator struct {
	pipeline    *ir.Pipeline
	writer      *writer.Writer
	logger      observability.Logger
	compression int
}

type Option func(*Separator)

func WithLogger(l observability.Logger) Option {
	return func(s *Separator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCompression sets the flate level for output streams, 0 stores them
// uncompressed.
func WithCompression(level int) Option {
	return func(s *Separator) { s.compression = level }
}

func New(opts ...Option) *Separator {
	s := &Separator{logger: observability.NopLogger{}, compression: 6}
	for _, opt := range opts {
		opt(s)
	}
	s.pipeline = ir.NewDefault(ir.WithLogger(s.logger))
	s.writer = writer.New(writer.WithLogger(s.logger))
	return s
}

// ParsePageRange parses expr against a document of pageCount pages and
// returns the selected page numbers ascending with duplicates removed.
// Every token must be well formed and inside the document: a malformed
// token, a page below 1, a reversed interval, or a page beyond pageCount
// all fail with *InvalidRangeError rather than being clamped.
func ParsePageRange(expr string, pageCount int) ([]int, error) {
	fail := func(token, reason string) error {
		return &InvalidRangeError{Expr: expr, Token: token, Reason: reason}
	}
	if strings.TrimSpace(expr) == "" {
		return nil, fail("", "is empty")
	}
	selected := make(map[int]bool)
	for _, tok := range strings.Split(expr, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			return nil, fail(tok, "is empty")
		}
		lo, hi, err := parseToken(tok)
		if err != nil {
			return nil, fail(tok, err.Error())
		}
		if lo < 1 {
			return nil, fail(tok, "starts before page 1")
		}
		if hi < lo {
			return nil, fail(tok, "is a reversed interval")
		}
		if hi > pageCount {
			return nil, fail(tok, fmt.Sprintf("exceeds the document's %d pages", pageCount))
		}
		for p := lo; p <= hi; p++ {
			selected[p] = true
		}
	}
	pages := make([]int, 0, len(selected))
	for p := 1; p <= pageCount; p++ {
		if selected[p] {
			pages = append(pages, p)
		}
	}
	return pages, nil
}

func parseToken(tok string) (lo, hi int, err error) {
	if before, after, found := strings.Cut(tok, "-"); found {
		lo, err = parsePage(before)
		if err != nil {
			return 0, 0, err
		}
		hi, err = parsePage(after)
		if err != nil {
			return 0, 0, err
		}
		return lo, hi, nil
	}
	lo, err = parsePage(tok)
	return lo, lo, err
}

func parsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("is missing a bound")
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("is not a page number")
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			return 0, fmt.Errorf("is out of range")
		}
	}
	return n, nil
}

// Extract writes the pages selected by rangeExpr, ascending, to destPath.
func (s *Separator) Extract(ctx context.Context, sourcePath, rangeExpr, destPath string) error {
	doc, err := s.load(ctx, sourcePath)
	if err != nil {
		return err
	}
	pages, err := ParsePageRange(rangeExpr, len(doc.Pages))
	if err != nil {
		return err
	}
	b := builder.New()
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.AddPage(doc.Pages[p-1])
	}
	out, err := b.Build()
	if err != nil {
		return err
	}
	s.logger.Info("pages extracted",
		observability.String("source", sourcePath),
		observability.Int("pages", len(pages)))
	return s.emit(ctx, out, destPath)
}

// ExtractEach writes one single-page file per selected page into destDir,
// creating the directory if needed. Files are named <stem>_page_N.pdf after
// the source file. The written paths are returned in page order.
func (s *Separator) ExtractEach(ctx context.Context, sourcePath, rangeExpr, destDir string) ([]string, error) {
	doc, err := s.load(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	pages, err := ParsePageRange(rangeExpr, len(doc.Pages))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &safeio.WriteFailureError{Path: destDir, Err: err}
	}
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	var written []string
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		b := builder.New()
		b.AddPage(doc.Pages[p-1])
		out, err := b.Build()
		if err != nil {
			return written, err
		}
		dest := filepath.Join(destDir, fmt.Sprintf("%s_page_%d.pdf", stem, p))
		if err := s.emit(ctx, out, dest); err != nil {
			return written, err
		}
		written = append(written, dest)
	}
	return written, nil
}

// PageCount reports how many pages the document at sourcePath has.
func (s *Separator) PageCount(ctx context.Context, sourcePath string) (int, error) {
	doc, err := s.load(ctx, sourcePath)
	if err != nil {
		return 0, err
	}
	return len(doc.Pages), nil
}

func (s *Separator) load(ctx context.Context, path string) (*semantic.Document, error) {
	data, err := source.ReadPDF(path)
	if err != nil {
		return nil, err
	}
	return s.pipeline.Parse(ctx, data)
}

func (s *Separator) emit(ctx context.Context, doc *semantic.Document, dest string) error {
	var buf bytes.Buffer
	if err := s.writer.Write(ctx, doc, &buf, writer.Config{Compression: s.compression}); err != nil {
		return err
	}
	return safeio.WriteFile(dest, buf.Bytes(), 0o644)
}
