// Package writer serializes semantic documents to PDF. Output is
// deterministic: object numbering follows a fixed traversal, dictionary keys
// sort, and the file identifier derives from the body bytes. Identical
// inputs therefore produce byte-identical files.
package writer

import (
	"context"
	"io"

	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/observability"
)

// Version selects the header version of the output file.
type Version string

const (
	PDF14 Version = "1.4"
	PDF17 Version = "1.7"
)

// Config controls output encoding. Compression is the flate level for
// content streams and rebuilt images: 0 stores uncompressed, 1 through 9
// trade speed for size.
type Config struct {
	Version     Version
	Compression int
}

type Writer struct {
	logger observability.Logger
}

type Option func(*Writer)

func WithLogger(l observability.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

func New(opts ...Option) *Writer {
	w := &Writer{logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write serializes doc to out. Pages parsed from a source document carry
// their resource graphs over verbatim; pages and images built in memory are
// serialized from their semantic form.
func (w *Writer) Write(ctx context.Context, doc *semantic.Document, out io.Writer, cfg Config) error {
	if cfg.Version == "" {
		cfg.Version = PDF17
	}
	s := newSerializer(cfg, w.logger)
	data, err := s.run(ctx, doc)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
