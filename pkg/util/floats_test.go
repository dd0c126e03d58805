package util

import "testing"

func TestArgMax(t *testing.T) {
	if got := ArgMax([]float64{0.1, 0.7, 0.2}); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := ArgMax([]float64{0.5, 0.5}); got != 0 {
		t.Fatalf("ties should resolve to first, got %d", got)
	}
	if got := ArgMax(nil); got != -1 {
		t.Fatalf("expected -1 for empty, got %d", got)
	}
}

func TestApproxEqual(t *testing.T) {
	if !ApproxEqual(1.0, 1.0000001, 1e-6) {
		t.Fatalf("expected approx equal")
	}
	if ApproxEqual(1.0, 1.1, 1e-6) {
		t.Fatalf("expected not equal")
	}
}

func TestSumFloats(t *testing.T) {
	if got := SumFloats([]float64{0.25, 0.5, 0.25}); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}
