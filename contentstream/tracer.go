package contentstream

import (
	"math"

	"github.com/fileskadis/fileskadis/coords"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

// OpKind classifies what a traced operation paints.
type OpKind int

const (
	KindOther OpKind = iota
	KindText
	KindPath
	KindImage
	KindForm
	KindInline
)

// OpBox is the device-space footprint of one operation. For XObject
// placements the graphics state matrix at the Do is recorded, so a region
// can be mapped back into image pixel space.
type OpBox struct {
	Index   int
	Kind    OpKind
	Box     semantic.Rectangle
	XObject string
	CTM     coords.Matrix
}

// Glyph metrics are not loaded. The cursor advances half an em per byte, a
// typical proportional average, while the painted extent assumes a full em
// per byte: hit tests built on these boxes must err wide, never narrow, or a
// string drawn in a wide face could paint past its box into a redaction
// region.
const (
	avgGlyphWidth = 0.5
	maxGlyphWidth = 1.0
	ascent        = 1.0
	descent       = 0.3
)

// Tracer walks a parsed operation list and reports where each operation
// paints on the page.
type Tracer struct {
	resources *semantic.Resources
}

func NewTracer(res *semantic.Resources) *Tracer {
	return &Tracer{resources: res}
}

// Trace computes footprints for the given operations. pageBox bounds
// operations whose true extent cannot be known, such as form XObjects and
// shading fills.
func (t *Tracer) Trace(ops []semantic.Operation, pageBox semantic.Rectangle) []OpBox {
	var out []OpBox
	st := newGraphicsState()
	var stack stateStack
	var textMatrix, lineMatrix coords.Matrix

	var pathPts []coords.Point
	var pathOps []int

	addPathPoint := func(x, y float64) {
		pathPts = append(pathPts, st.CTM.Transform(coords.Point{X: x, Y: y}))
	}
	nums := func(op semantic.Operation, n int) ([]float64, bool) {
		if len(op.Operands) < n {
			return nil, false
		}
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			v, ok := semantic.Num(op.Operands[len(op.Operands)-n+i])
			if !ok {
				return nil, false
			}
			vals[i] = v
		}
		return vals, true
	}

	for i, op := range ops {
		switch op.Operator {
		case "q":
			stack.push(st)
		case "Q":
			if prev, ok := stack.pop(); ok {
				st = prev
			}
		case "cm":
			if v, ok := nums(op, 6); ok {
				m := coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
				st.CTM = m.Multiply(st.CTM)
			}
		case "BT":
			textMatrix = coords.Identity()
			lineMatrix = coords.Identity()
		case "ET":
		case "Tf":
			if len(op.Operands) >= 2 {
				if name, ok := op.Operands[len(op.Operands)-2].(semantic.NameOperand); ok {
					st.Font = string(name)
				}
				if size, ok := semantic.Num(op.Operands[len(op.Operands)-1]); ok {
					st.FontSize = size
				}
			}
		case "TL":
			if v, ok := nums(op, 1); ok {
				st.Leading = v[0]
			}
		case "Td":
			if v, ok := nums(op, 2); ok {
				lineMatrix = coords.Translate(v[0], v[1]).Multiply(lineMatrix)
				textMatrix = lineMatrix
			}
		case "TD":
			if v, ok := nums(op, 2); ok {
				st.Leading = -v[1]
				lineMatrix = coords.Translate(v[0], v[1]).Multiply(lineMatrix)
				textMatrix = lineMatrix
			}
		case "Tm":
			if v, ok := nums(op, 6); ok {
				textMatrix = coords.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
				lineMatrix = textMatrix
			}
		case "T*":
			lineMatrix = coords.Translate(0, -st.Leading).Multiply(lineMatrix)
			textMatrix = lineMatrix
		case "Tj", "'", "\"":
			if op.Operator != "Tj" {
				lineMatrix = coords.Translate(0, -st.Leading).Multiply(lineMatrix)
				textMatrix = lineMatrix
			}
			var shown []byte
			if len(op.Operands) > 0 {
				if s, ok := op.Operands[len(op.Operands)-1].(semantic.StringOperand); ok {
					shown = []byte(s)
				}
			}
			box, advance := t.textBox(shown, textMatrix, st)
			out = append(out, OpBox{Index: i, Kind: KindText, Box: box, CTM: st.CTM})
			textMatrix = coords.Translate(advance, 0).Multiply(textMatrix)
		case "TJ":
			if len(op.Operands) == 0 {
				break
			}
			arr, ok := op.Operands[len(op.Operands)-1].(semantic.ArrayOperand)
			if !ok {
				break
			}
			total := semantic.Rectangle{LLX: math.Inf(1), LLY: math.Inf(1), URX: math.Inf(-1), URY: math.Inf(-1)}
			painted := false
			for _, item := range arr {
				switch v := item.(type) {
				case semantic.StringOperand:
					box, advance := t.textBox([]byte(v), textMatrix, st)
					total = total.Union(box)
					painted = true
					textMatrix = coords.Translate(advance, 0).Multiply(textMatrix)
				case semantic.NumberOperand:
					adj := -float64(v) / 1000 * st.FontSize
					textMatrix = coords.Translate(adj, 0).Multiply(textMatrix)
				}
			}
			if painted {
				out = append(out, OpBox{Index: i, Kind: KindText, Box: total, CTM: st.CTM})
			}
		case "m", "l":
			if v, ok := nums(op, 2); ok {
				addPathPoint(v[0], v[1])
				pathOps = append(pathOps, i)
			}
		case "c":
			if v, ok := nums(op, 6); ok {
				addPathPoint(v[0], v[1])
				addPathPoint(v[2], v[3])
				addPathPoint(v[4], v[5])
				pathOps = append(pathOps, i)
			}
		case "v", "y":
			if v, ok := nums(op, 4); ok {
				addPathPoint(v[0], v[1])
				addPathPoint(v[2], v[3])
				pathOps = append(pathOps, i)
			}
		case "re":
			if v, ok := nums(op, 4); ok {
				addPathPoint(v[0], v[1])
				addPathPoint(v[0]+v[2], v[1])
				addPathPoint(v[0]+v[2], v[1]+v[3])
				addPathPoint(v[0], v[1]+v[3])
				pathOps = append(pathOps, i)
			}
		case "h":
			pathOps = append(pathOps, i)
		case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "n":
			if len(pathPts) > 0 {
				box := pointsBox(pathPts)
				for _, idx := range pathOps {
					out = append(out, OpBox{Index: idx, Kind: KindPath, Box: box, CTM: st.CTM})
				}
				out = append(out, OpBox{Index: i, Kind: KindPath, Box: box, CTM: st.CTM})
			}
			pathPts = pathPts[:0]
			pathOps = pathOps[:0]
		case "sh":
			// Shading paints the whole clip region; without clip tracking
			// the page is the bound.
			out = append(out, OpBox{Index: i, Kind: KindOther, Box: pageBox, CTM: st.CTM})
		case "Do":
			if len(op.Operands) == 0 {
				break
			}
			name, ok := op.Operands[len(op.Operands)-1].(semantic.NameOperand)
			if !ok {
				break
			}
			kind := KindForm
			box := pageBox
			if t.resources != nil {
				if xo, found := t.resources.XObjects[string(name)]; found && xo.Subtype == "Image" {
					kind = KindImage
					box = unitSquareBox(st.CTM)
				}
			}
			out = append(out, OpBox{Index: i, Kind: kind, Box: box, XObject: string(name), CTM: st.CTM})
		case "BI":
			out = append(out, OpBox{Index: i, Kind: KindInline, Box: unitSquareBox(st.CTM), CTM: st.CTM})
		}
	}
	return out
}

// textBox estimates the device-space extent and text-space advance of shown
// bytes.
func (t *Tracer) textBox(shown []byte, textMatrix coords.Matrix, st GraphicsState) (semantic.Rectangle, float64) {
	size := st.FontSize
	if size == 0 {
		size = 12
	}
	advance := float64(len(shown)) * avgGlyphWidth * size
	extent := float64(len(shown)) * maxGlyphWidth * size
	corners := []coords.Point{
		{X: 0, Y: -descent * size},
		{X: extent, Y: -descent * size},
		{X: extent, Y: ascent * size},
		{X: 0, Y: ascent * size},
	}
	trm := textMatrix.Multiply(st.CTM)
	device := make([]coords.Point, len(corners))
	for i, c := range corners {
		device[i] = trm.Transform(c)
	}
	return pointsBox(device), advance
}

func unitSquareBox(m coords.Matrix) semantic.Rectangle {
	pts := []coords.Point{
		m.Transform(coords.Point{X: 0, Y: 0}),
		m.Transform(coords.Point{X: 1, Y: 0}),
		m.Transform(coords.Point{X: 1, Y: 1}),
		m.Transform(coords.Point{X: 0, Y: 1}),
	}
	return pointsBox(pts)
}

func pointsBox(pts []coords.Point) semantic.Rectangle {
	box := semantic.Rectangle{
		LLX: math.Inf(1), LLY: math.Inf(1),
		URX: math.Inf(-1), URY: math.Inf(-1),
	}
	for _, p := range pts {
		box.LLX = math.Min(box.LLX, p.X)
		box.LLY = math.Min(box.LLY, p.Y)
		box.URX = math.Max(box.URX, p.X)
		box.URY = math.Max(box.URY, p.Y)
	}
	return box
}
