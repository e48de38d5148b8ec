package coords

import (
	"math"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMultiplyAppliesLeftFirst(t *testing.T) {
	m := Scale(2, 2).Multiply(Translate(10, 0))
	p := m.Transform(Point{1, 1})
	if !approx(p.X, 12) || !approx(p.Y, 2) {
		t.Fatalf("unexpected point %+v", p)
	}
}

func TestInverse(t *testing.T) {
	m := Matrix{0, 1, -1, 0, 30, 40}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatalf("inverse: %v", err)
	}
	p := inv.Transform(m.Transform(Point{3, 7}))
	if !approx(p.X, 3) || !approx(p.Y, 7) {
		t.Fatalf("roundtrip failed: %+v", p)
	}
	if _, err := (Matrix{1, 2, 2, 4, 0, 0}).Inverse(); err == nil {
		t.Fatalf("expected singular matrix error")
	}
}

func TestTransformRectBoundingBox(t *testing.T) {
	r := Rotate(math.Pi / 2).TransformRect(Rect{0, 0, 10, 20})
	if !approx(r.X0, -20) || !approx(r.X1, 0) || !approx(r.Y0, 0) || !approx(r.Y1, 10) {
		t.Fatalf("unexpected rect %+v", r)
	}
}

func TestRectIntersect(t *testing.T) {
	a := Rect{0, 0, 10, 10}
	if got := a.Intersect(Rect{5, 5, 20, 20}); got != (Rect{5, 5, 10, 10}) {
		t.Fatalf("unexpected intersection %+v", got)
	}
	if got := a.Intersect(Rect{11, 11, 20, 20}); !got.IsEmpty() {
		t.Fatalf("disjoint rects should give empty rect, got %+v", got)
	}
}

func TestRectFromArray(t *testing.T) {
	r, ok := RectFromArray([]float64{612, 792, 0, 0})
	if !ok || r != (Rect{0, 0, 612, 792}) {
		t.Fatalf("unexpected rect %+v", r)
	}
	if _, ok := RectFromArray([]float64{1, 2}); ok {
		t.Fatalf("short arrays must be rejected")
	}
}
