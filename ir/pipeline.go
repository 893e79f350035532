// Package ir wires the three-stage parse pipeline: raw objects, decoded
// streams, semantic pages.
package ir

import (
	"context"
	"fmt"
	"os"

	"github.com/fileskadis/fileskadis/filters"
	"github.com/fileskadis/fileskadis/ir/decoded"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/observability"
	"github.com/fileskadis/fileskadis/parser"
)

type Pipeline struct {
	logger  observability.Logger
	filters *filters.Pipeline
	workers int
}

type Option func(*Pipeline)

func WithLogger(l observability.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithFilters(f *filters.Pipeline) Option {
	return func(p *Pipeline) {
		if f != nil {
			p.filters = f
		}
	}
}

// WithWorkers caps the stream-decoding concurrency.
func WithWorkers(n int) Option {
	return func(p *Pipeline) { p.workers = n }
}

// NewDefault builds a pipeline with the full filter set and no logging.
func NewDefault(opts ...Option) *Pipeline {
	p := &Pipeline{logger: observability.NopLogger{}, filters: filters.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse runs the full pipeline over an in-memory file.
func (p *Pipeline) Parse(ctx context.Context, data []byte) (*semantic.Document, error) {
	rawDoc, err := parser.New(p.logger).Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	decDoc, err := decoded.Decode(ctx, rawDoc, p.filters, p.workers, p.logger)
	if err != nil {
		return nil, err
	}
	return semantic.Build(ctx, decDoc, p.logger)
}

// ParseFile loads and parses a file from disk.
func (p *Pipeline) ParseFile(ctx context.Context, path string) (*semantic.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ir: read %s: %w", path, err)
	}
	return p.Parse(ctx, data)
}
