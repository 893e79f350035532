package editor

import (
	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

const (
	nodeCapacity = 8
	maxDepth     = 8
)

// quadTree partitions page space so rectangle queries touch only the
// operations near the query box instead of the whole stream.
type quadTree struct {
	bounds   semantic.Rectangle
	depth    int
	items    []contentstream.OpBox
	children *[4]*quadTree
}

func newQuadTree(bounds semantic.Rectangle) *quadTree {
	return &quadTree{bounds: bounds}
}

func (qt *quadTree) insert(item contentstream.OpBox) {
	if qt.children != nil {
		if child := qt.childFor(item.Box); child != nil {
			child.insert(item)
			return
		}
		qt.items = append(qt.items, item)
		return
	}
	qt.items = append(qt.items, item)
	if len(qt.items) > nodeCapacity && qt.depth < maxDepth {
		qt.subdivide()
	}
}

func (qt *quadTree) subdivide() {
	midX := (qt.bounds.LLX + qt.bounds.URX) / 2
	midY := (qt.bounds.LLY + qt.bounds.URY) / 2
	qt.children = &[4]*quadTree{
		{bounds: semantic.Rectangle{LLX: qt.bounds.LLX, LLY: midY, URX: midX, URY: qt.bounds.URY}, depth: qt.depth + 1},
		{bounds: semantic.Rectangle{LLX: midX, LLY: midY, URX: qt.bounds.URX, URY: qt.bounds.URY}, depth: qt.depth + 1},
		{bounds: semantic.Rectangle{LLX: qt.bounds.LLX, LLY: qt.bounds.LLY, URX: midX, URY: midY}, depth: qt.depth + 1},
		{bounds: semantic.Rectangle{LLX: midX, LLY: qt.bounds.LLY, URX: qt.bounds.URX, URY: midY}, depth: qt.depth + 1},
	}
	kept := qt.items[:0]
	for _, item := range qt.items {
		if child := qt.childFor(item.Box); child != nil {
			child.insert(item)
		} else {
			kept = append(kept, item)
		}
	}
	qt.items = kept
}

// childFor returns the quadrant fully containing box, or nil when the box
// straddles quadrants and must stay at this level.
func (qt *quadTree) childFor(box semantic.Rectangle) *quadTree {
	for _, child := range qt.children {
		if child.bounds.Contains(box) {
			return child
		}
	}
	return nil
}

func (qt *quadTree) query(rect semantic.Rectangle, out []contentstream.OpBox) []contentstream.OpBox {
	for _, item := range qt.items {
		if item.Box.Intersects(rect) {
			out = append(out, item)
		}
	}
	if qt.children != nil {
		for _, child := range qt.children {
			if child.bounds.Intersects(rect) {
				out = child.query(rect, out)
			}
		}
	}
	return out
}
