// Package editor performs spatial edits on page content: deleting the
// operations whose painted footprint intersects a rectangle. Deletion is the
// redaction primitive; removed operations leave no trace in the output
// stream.
package editor

import (
	"fmt"
	"sort"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/ir/semantic"
	"github.com/fileskadis/fileskadis/observability"
)

// Index is a per-stream spatial index over traced operations.
type Index struct {
	tree *quadTree
}

// NewIndex builds an index of boxes within the page bounds.
func NewIndex(bounds semantic.Rectangle, boxes []contentstream.OpBox) *Index {
	tree := newQuadTree(bounds)
	for _, b := range boxes {
		tree.insert(b)
	}
	return &Index{tree: tree}
}

// Query returns every indexed operation whose box intersects rect.
func (ix *Index) Query(rect semantic.Rectangle) []contentstream.OpBox {
	return ix.tree.query(rect, nil)
}

// KeepFunc lets a caller exempt operations from removal. Returning true
// keeps the operation in the stream.
type KeepFunc func(contentstream.OpBox) bool

type Editor struct {
	logger observability.Logger
}

func New(logger observability.Logger) *Editor {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Editor{logger: logger}
}

// RemoveRect deletes every operation on the page that paints inside rect.
// It returns the number of operations removed.
func (e *Editor) RemoveRect(page *semantic.Page, rect semantic.Rectangle) (int, error) {
	return e.RemoveRectFunc(page, rect, nil)
}

// RemoveRectFunc deletes operations painting inside rect, except those the
// keep callback claims. The page's streams are traced as one program, so a
// transform set in an earlier stream places later operations correctly.
// Edited streams are marked dirty so the writer re-serializes them from their
// operation list.
func (e *Editor) RemoveRectFunc(page *semantic.Page, rect semantic.Rectangle, keep KeepFunc) (int, error) {
	rect = rect.Normalize()
	if rect.IsEmpty() {
		return 0, nil
	}
	prog, err := contentstream.PageProgram(page)
	if err != nil {
		return 0, fmt.Errorf("editor: %w", err)
	}
	boxes := contentstream.NewTracer(page.Resources).Trace(prog.Ops, page.MediaBox)
	hits := NewIndex(page.MediaBox, boxes).Query(rect)
	drop := make(map[*semantic.ContentStream]map[int]bool)
	for _, h := range hits {
		if keep != nil && keep(h) {
			continue
		}
		cs, local := prog.Locate(h.Index)
		if cs == nil {
			continue
		}
		if drop[cs] == nil {
			drop[cs] = make(map[int]bool)
		}
		drop[cs][local] = true
	}
	removed := 0
	for cs, set := range drop {
		indices := make([]int, 0, len(set))
		for i := range set {
			indices = append(indices, i)
		}
		sort.Sort(sort.Reverse(sort.IntSlice(indices)))
		for _, i := range indices {
			cs.Operations = append(cs.Operations[:i], cs.Operations[i+1:]...)
		}
		cs.Dirty = true
		removed += len(indices)
	}
	if removed > 0 {
		e.logger.Debug("removed operations",
			observability.Int("page", page.Index),
			observability.Int("count", removed))
	}
	return removed, nil
}
