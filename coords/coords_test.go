package coords_test

import (
	"math"
	"testing"

	"github.com/fileskadis/fileskadis/coords"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestTranslateThenScale(t *testing.T) {
	m := coords.Translate(10, 20).Multiply(coords.Scale(2, 3))
	got := m.Transform(coords.Point{X: 1, Y: 1})
	if !approx(got.X, 22) || !approx(got.Y, 63) {
		t.Errorf("Transform = (%v, %v), want (22, 63)", got.X, got.Y)
	}
}

func TestInverseRoundTrip(t *testing.T) {
	m := coords.Scale(2, 4).Multiply(coords.Translate(-7, 3))
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	p := coords.Point{X: 5.5, Y: -2.25}
	back := inv.Transform(m.Transform(p))
	if !approx(back.X, p.X) || !approx(back.Y, p.Y) {
		t.Errorf("round trip = (%v, %v), want (%v, %v)", back.X, back.Y, p.X, p.Y)
	}
}

func TestInverseSingular(t *testing.T) {
	if _, err := (coords.Matrix{0, 0, 0, 0, 1, 2}).Inverse(); err == nil {
		t.Fatal("expected error for singular matrix")
	}
}

func TestIdentityIsNeutral(t *testing.T) {
	m := coords.Rotate(math.Pi / 2).Multiply(coords.Identity())
	got := m.Transform(coords.Point{X: 1, Y: 0})
	if !approx(got.X, 0) || !approx(got.Y, 1) {
		t.Errorf("rotate 90 = (%v, %v), want (0, 1)", got.X, got.Y)
	}
}
