package fi2010

import (
	"errors"
	"math"
	"testing"
)

// syntheticRaw builds a raw fold with 40 feature rows and 5 label rows over
// the given number of time steps. Feature channel f at step t holds
// f*1000+t, so transposition is checkable. Label row h at step t holds
// 1+(t+h)%3, always inside {1,2,3}.
func syntheticRaw(steps int) *Matrix {
	m := NewMatrix(NumFeatureRows+NumLabelRows, steps)
	for f := 0; f < NumFeatureRows; f++ {
		for t := 0; t < steps; t++ {
			m.Set(f, t, float64(f*1000+t))
		}
	}
	for h := 0; h < NumLabelRows; h++ {
		for t := 0; t < steps; t++ {
			m.Set(NumFeatureRows+h, t, float64(1+(t+h)%3))
		}
	}
	return m
}

func TestExtractFeatures(t *testing.T) {
	raw := syntheticRaw(150)
	x, err := ExtractFeatures(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.Rows() != 150 || x.Cols() != NumFeatureRows {
		t.Fatalf("unexpected shape %dx%d", x.Rows(), x.Cols())
	}
	// x[t,f] must equal raw[f,t]
	if x.At(17, 3) != 3017 {
		t.Fatalf("transpose mismatch: got %v", x.At(17, 3))
	}
	if x.At(0, 39) != 39000 {
		t.Fatalf("transpose mismatch: got %v", x.At(0, 39))
	}
}

func TestExtractFeaturesTooFewRows(t *testing.T) {
	_, err := ExtractFeatures(NewMatrix(39, 10))
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestExtractLabels(t *testing.T) {
	raw := syntheticRaw(150)
	y, err := ExtractLabels(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y.Rows() != 150 || y.Cols() != NumLabelRows {
		t.Fatalf("unexpected shape %dx%d", y.Rows(), y.Cols())
	}
	for h := 0; h < NumLabelRows; h++ {
		for _, step := range []int{0, 73, 149} {
			want := float64(1 + (step+h)%3)
			if y.At(step, h) != want {
				t.Fatalf("label at step %d horizon %d: got %v, want %v",
					step, h, y.At(step, h), want)
			}
		}
	}
}

func TestExtractLabelsTooFewRows(t *testing.T) {
	_, err := ExtractLabels(NewMatrix(44, 10))
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestWindowize(t *testing.T) {
	raw := syntheticRaw(150)
	x, err := ExtractFeatures(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	y, err := ExtractLabels(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	set, err := Windowize(x, y, 100, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 51 {
		t.Fatalf("expected 51 samples, got %d", set.Len())
	}
	if shape := set.WindowShape(); shape != [3]int{100, 40, 1} {
		t.Fatalf("unexpected window shape %v", shape)
	}

	// Sample i's window must equal feature rows [i, i+100).
	for _, i := range []int{0, 25, 50} {
		for _, step := range []int{0, 99} {
			for _, f := range []int{0, 39} {
				if got, want := set.At(i, step, f), x.At(i+step, f); got != want {
					t.Fatalf("sample %d step %d feature %d: got %v, want %v",
						i, step, f, got, want)
				}
			}
		}
	}

	// Sample 0's label comes from label row 99, horizon column 3.
	wantClass := int(y.At(99, 3)) - 1
	if set.Class(0) != wantClass {
		t.Fatalf("sample 0 class: got %d, want %d", set.Class(0), wantClass)
	}
	for i := 0; i < set.Len(); i++ {
		if got, want := set.Class(i), int(y.At(i+99, 3))-1; got != want {
			t.Fatalf("sample %d class: got %d, want %d", i, got, want)
		}
	}
}

func TestWindowizeOneHot(t *testing.T) {
	raw := syntheticRaw(150)
	x, _ := ExtractFeatures(raw)
	y, _ := ExtractLabels(raw)
	set, err := Windowize(x, y, 100, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < set.Len(); i++ {
		label := set.Label(i)
		if len(label) != NumClasses {
			t.Fatalf("sample %d: label length %d", i, len(label))
		}
		sum := 0.0
		for _, v := range label {
			if v != 0 && v != 1 {
				t.Fatalf("sample %d: non-binary component %v", i, v)
			}
			sum += v
		}
		if sum != 1 {
			t.Fatalf("sample %d: one-hot sums to %v", i, sum)
		}
		if label[set.Class(i)] != 1 {
			t.Fatalf("sample %d: hot position does not match class %d", i, set.Class(i))
		}
	}
}

func TestWindowizeStationaryLabel(t *testing.T) {
	// A raw label value of 2 must one-hot encode as [0,1,0].
	x := NewMatrix(3, 2)
	y := NewMatrix(3, NumHorizons)
	for r := 0; r < 3; r++ {
		for h := 0; h < NumHorizons; h++ {
			y.Set(r, h, 2)
		}
	}
	set, err := Windowize(x, y, 3, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	label := set.Label(0)
	if label[0] != 0 || label[1] != 1 || label[2] != 0 {
		t.Fatalf("expected [0,1,0], got %v", label)
	}
	if set.Class(0) != ClassStationary {
		t.Fatalf("expected stationary class, got %d", set.Class(0))
	}
}

func TestWindowizeFullLength(t *testing.T) {
	// T == N yields exactly one sample.
	raw := syntheticRaw(100)
	x, _ := ExtractFeatures(raw)
	y, _ := ExtractLabels(raw)
	set, err := Windowize(x, y, 100, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 sample, got %d", set.Len())
	}
	if got, want := set.Class(0), int(y.At(99, 3))-1; got != want {
		t.Fatalf("class: got %d, want %d", got, want)
	}
}

func TestWindowizeErrors(t *testing.T) {
	raw := syntheticRaw(50)
	x, _ := ExtractFeatures(raw)
	y, _ := ExtractLabels(raw)

	cases := []struct {
		name    string
		length  int
		horizon int
		want    error
	}{
		{"window longer than steps", 51, 3, ErrInvalidWindow},
		{"zero window", 0, 3, ErrInvalidWindow},
		{"negative window", -1, 3, ErrInvalidWindow},
		{"horizon too high", 100, 5, ErrInvalidHorizon},
		{"negative horizon", 100, -1, ErrInvalidHorizon},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Windowize(x, y, tc.length, tc.horizon)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestWindowizeRejectsBadLabels(t *testing.T) {
	x := NewMatrix(5, 2)
	mk := func(v float64) *Matrix {
		y := NewMatrix(5, NumHorizons)
		for r := 0; r < 5; r++ {
			for h := 0; h < NumHorizons; h++ {
				y.Set(r, h, 1)
			}
		}
		y.Set(4, 0, v)
		return y
	}
	for _, v := range []float64{0, 4, -1, 1.5, math.NaN()} {
		if _, err := Windowize(x, mk(v), 5, 0); !errors.Is(err, ErrInvalidLabel) {
			t.Fatalf("label %v: expected ErrInvalidLabel, got %v", v, err)
		}
	}
}

func TestWindowizeDeterministic(t *testing.T) {
	raw := syntheticRaw(150)
	x, _ := ExtractFeatures(raw)
	y, _ := ExtractLabels(raw)

	a, err := Windowize(x, y, 100, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Windowize(x, y, 100, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Len() != b.Len() {
		t.Fatalf("lengths differ: %d vs %d", a.Len(), b.Len())
	}
	for i := 0; i < a.Len(); i++ {
		sa, sb := a.Sample(i), b.Sample(i)
		for j := range sa {
			if sa[j] != sb[j] {
				t.Fatalf("sample %d diverges at offset %d", i, j)
			}
		}
		if a.Class(i) != b.Class(i) {
			t.Fatalf("class %d diverges", i)
		}
	}
}
