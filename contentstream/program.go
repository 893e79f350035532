package contentstream

import (
	"fmt"

	"github.com/fileskadis/fileskadis/ir/semantic"
)

// Program is a page's content streams concatenated into the single operation
// list they form when rendered. Graphics state set in one stream carries into
// the next, so tracing or editing must see the streams as one program, never
// one stream at a time.
type Program struct {
	Ops []semantic.Operation

	streams []*semantic.ContentStream
	starts  []int
}

// PageProgram parses every content stream of the page and concatenates their
// operations in order.
func PageProgram(page *semantic.Page) (*Program, error) {
	p := &Program{}
	for si, cs := range page.Contents {
		if err := Parse(cs); err != nil {
			return nil, fmt.Errorf("contentstream: stream %d: %w", si, err)
		}
		p.streams = append(p.streams, cs)
		p.starts = append(p.starts, len(p.Ops))
		p.Ops = append(p.Ops, cs.Operations...)
	}
	return p, nil
}

// Locate maps a program operation index back to the stream holding it and
// the index within that stream.
func (p *Program) Locate(index int) (*semantic.ContentStream, int) {
	for i := len(p.starts) - 1; i >= 0; i-- {
		if index < p.starts[i] {
			continue
		}
		local := index - p.starts[i]
		if local >= len(p.streams[i].Operations) {
			return nil, -1
		}
		return p.streams[i], local
	}
	return nil, -1
}
