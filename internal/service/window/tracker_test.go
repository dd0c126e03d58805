package window

import "testing"

func vecOf(dim int, v float64) []float64 {
	out := make([]float64, dim)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestTrackerFillsToLength(t *testing.T) {
	tr, err := NewTracker(3, 2)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}

	for i := 0; i < 2; i++ {
		full, err := tr.Push("ETH-USD", vecOf(2, float64(i)))
		if err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
		if full {
			t.Fatalf("full after %d pushes", i+1)
		}
	}
	if tr.Full("ETH-USD") {
		t.Fatal("Full before window length reached")
	}
	if _, ok := tr.Window("ETH-USD"); ok {
		t.Fatal("Window available before full")
	}

	full, err := tr.Push("ETH-USD", vecOf(2, 2))
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !full {
		t.Fatal("expected full after third push")
	}

	w, ok := tr.Window("ETH-USD")
	if !ok {
		t.Fatal("Window not available after full")
	}
	for i, row := range w {
		if row[0] != float64(i) {
			t.Errorf("row %d = %v, want %v", i, row[0], float64(i))
		}
	}
}

func TestTrackerEvictsOldest(t *testing.T) {
	tr, _ := NewTracker(3, 1)
	for i := 0; i < 5; i++ {
		if _, err := tr.Push("X", []float64{float64(i)}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	w, ok := tr.Window("X")
	if !ok {
		t.Fatal("window missing")
	}
	want := []float64{2, 3, 4}
	for i := range want {
		if w[i][0] != want[i] {
			t.Errorf("w[%d] = %v, want %v", i, w[i][0], want[i])
		}
	}
}

func TestTrackerCopiesInput(t *testing.T) {
	tr, _ := NewTracker(1, 2)
	in := []float64{1, 2}
	if _, err := tr.Push("X", in); err != nil {
		t.Fatalf("Push: %v", err)
	}
	in[0] = 99

	w, _ := tr.Window("X")
	if w[0][0] != 1 {
		t.Errorf("stored vector mutated: %v", w[0][0])
	}

	// Mutating the returned window must not touch the ring either.
	w[0][1] = 77
	w2, _ := tr.Window("X")
	if w2[0][1] != 2 {
		t.Errorf("ring mutated through returned window: %v", w2[0][1])
	}
}

func TestTrackerWidthMismatch(t *testing.T) {
	tr, _ := NewTracker(2, 3)
	if _, err := tr.Push("X", []float64{1}); err == nil {
		t.Fatal("expected width error")
	}
}

func TestTrackerReset(t *testing.T) {
	tr, _ := NewTracker(2, 1)
	_, _ = tr.Push("X", []float64{1})
	_, _ = tr.Push("X", []float64{2})
	if !tr.Full("X") {
		t.Fatal("expected full")
	}
	tr.Reset("X")
	if tr.Len("X") != 0 {
		t.Errorf("Len after reset = %d", tr.Len("X"))
	}
}

func TestTrackerInvalidConfig(t *testing.T) {
	if _, err := NewTracker(0, 1); err == nil {
		t.Error("length 0 accepted")
	}
	if _, err := NewTracker(1, 0); err == nil {
		t.Error("dim 0 accepted")
	}
}
