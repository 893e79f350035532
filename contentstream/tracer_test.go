package contentstream_test

import (
	"testing"

	"github.com/fileskadis/fileskadis/contentstream"
	"github.com/fileskadis/fileskadis/coords"
	"github.com/fileskadis/fileskadis/ir/semantic"
)

var letterBox = semantic.Rectangle{URX: 612, URY: 792}

func trace(t *testing.T, src string, res *semantic.Resources) ([]semantic.Operation, []contentstream.OpBox) {
	t.Helper()
	ops, err := contentstream.Tokenize([]byte(src))
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	return ops, contentstream.NewTracer(res).Trace(ops, letterBox)
}

func TestTraceRectangle(t *testing.T) {
	_, boxes := trace(t, "10 20 100 50 re f\n", nil)
	if len(boxes) != 2 {
		t.Fatalf("boxes = %#v", boxes)
	}
	for _, b := range boxes {
		if b.Kind != contentstream.KindPath {
			t.Errorf("kind = %v", b.Kind)
		}
		want := semantic.Rectangle{LLX: 10, LLY: 20, URX: 110, URY: 70}
		if b.Box != want {
			t.Errorf("box = %+v, want %+v", b.Box, want)
		}
	}
}

func TestTraceRectangleUnderCM(t *testing.T) {
	_, boxes := trace(t, "q 2 0 0 2 5 5 cm 10 20 100 50 re f Q\n", nil)
	if len(boxes) != 2 {
		t.Fatalf("boxes = %#v", boxes)
	}
	want := semantic.Rectangle{LLX: 25, LLY: 45, URX: 225, URY: 145}
	if boxes[0].Box != want {
		t.Errorf("box = %+v, want %+v", boxes[0].Box, want)
	}
}

func TestTraceText(t *testing.T) {
	_, boxes := trace(t, "BT /F1 10 Tf 100 500 Td (Hello) Tj ET\n", nil)
	if len(boxes) != 1 || boxes[0].Kind != contentstream.KindText {
		t.Fatalf("boxes = %#v", boxes)
	}
	b := boxes[0].Box
	if b.LLX != 100 || b.LLY >= 500 || b.URY <= 500 {
		t.Errorf("text box = %+v", b)
	}
	// Five glyphs, boxed at a full em each.
	if b.URX != 150 {
		t.Errorf("URX = %v, want 150", b.URX)
	}
}

func TestTraceTextBoxOutrunsAverageAdvance(t *testing.T) {
	// A 20-byte string in a monospaced face paints roughly 0.6 em per
	// glyph, well past the half-em cursor estimate. The box must cover the
	// full possible extent or a hit test on its tail end misses.
	_, boxes := trace(t, "BT /F1 12 Tf 72 400 Td (AAAAAAAAAAAAAAAAAAAA) Tj ET\n", nil)
	if len(boxes) != 1 {
		t.Fatalf("boxes = %#v", boxes)
	}
	b := boxes[0].Box
	if b.URX < 72+20*0.6*12 {
		t.Errorf("URX = %v, box too narrow for a wide face", b.URX)
	}
}

func TestTraceTextAdvanceAcrossShows(t *testing.T) {
	_, boxes := trace(t, "BT /F1 10 Tf 0 0 Td (AA) Tj (BB) Tj ET\n", nil)
	if len(boxes) != 2 {
		t.Fatalf("boxes = %#v", boxes)
	}
	if boxes[1].Box.LLX != 10 {
		t.Errorf("second show starts at %v, want 10", boxes[1].Box.LLX)
	}
}

func TestTraceImagePlacement(t *testing.T) {
	res := &semantic.Resources{XObjects: map[string]*semantic.XObject{
		"Im0": {Name: "Im0", Subtype: "Image", Width: 10, Height: 10},
	}}
	_, boxes := trace(t, "q 200 0 0 100 50 60 cm /Im0 Do Q\n", res)
	if len(boxes) != 1 {
		t.Fatalf("boxes = %#v", boxes)
	}
	b := boxes[0]
	if b.Kind != contentstream.KindImage || b.XObject != "Im0" {
		t.Errorf("box = %+v", b)
	}
	want := semantic.Rectangle{LLX: 50, LLY: 60, URX: 250, URY: 160}
	if b.Box != want {
		t.Errorf("image box = %+v, want %+v", b.Box, want)
	}
	// The recorded matrix maps the unit square onto the placement.
	if top := b.CTM.Transform(coords.Point{X: 1, Y: 1}); top.X != 250 || top.Y != 160 {
		t.Errorf("CTM corner = %+v", top)
	}
}

func TestTraceFormUsesPageBox(t *testing.T) {
	res := &semantic.Resources{XObjects: map[string]*semantic.XObject{
		"Fm0": {Name: "Fm0", Subtype: "Form"},
	}}
	_, boxes := trace(t, "/Fm0 Do\n", res)
	if len(boxes) != 1 || boxes[0].Kind != contentstream.KindForm {
		t.Fatalf("boxes = %#v", boxes)
	}
	if boxes[0].Box != letterBox {
		t.Errorf("form box = %+v", boxes[0].Box)
	}
}

func TestTraceRestoresStateOnQ(t *testing.T) {
	_, boxes := trace(t, "q 10 0 0 10 0 0 cm Q 1 1 2 2 re f\n", nil)
	want := semantic.Rectangle{LLX: 1, LLY: 1, URX: 3, URY: 3}
	if len(boxes) == 0 || boxes[0].Box != want {
		t.Fatalf("boxes = %#v", boxes)
	}
}
