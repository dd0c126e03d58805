package fi2010

import (
	"fmt"
	"math"
)

// FI-2010 layout constants. Each raw fold stacks 40 order-book feature
// channels (10 levels x ask/bid x price/volume) above 5 label rows, one per
// prediction horizon.
const (
	NumFeatureRows = 40
	NumLabelRows   = 5
	NumHorizons    = 5
	NumClasses     = 3
)

// Movement classes after the {1,2,3} -> {0,1,2} remap.
const (
	ClassDown = iota
	ClassStationary
	ClassUp
)

// ExtractFeatures transposes the first 40 rows of a raw fold into an
// (N time steps, 40 features) matrix.
func ExtractFeatures(raw *Matrix) (*Matrix, error) {
	if raw == nil || raw.Rows() < NumFeatureRows {
		return nil, fmt.Errorf("%w: need at least %d feature rows, got %d",
			ErrInvalidShape, NumFeatureRows, rowsOf(raw))
	}
	out := NewMatrix(raw.Cols(), NumFeatureRows)
	for f := 0; f < NumFeatureRows; f++ {
		row := raw.Row(f)
		for t, v := range row {
			out.Set(t, f, v)
		}
	}
	return out, nil
}

// ExtractLabels transposes the last 5 rows of a raw fold into an
// (N time steps, 5 horizons) matrix.
func ExtractLabels(raw *Matrix) (*Matrix, error) {
	if raw == nil || raw.Rows() < NumFeatureRows+NumLabelRows {
		return nil, fmt.Errorf("%w: need at least %d rows for labels, got %d",
			ErrInvalidShape, NumFeatureRows+NumLabelRows, rowsOf(raw))
	}
	first := raw.Rows() - NumLabelRows
	out := NewMatrix(raw.Cols(), NumLabelRows)
	for h := 0; h < NumLabelRows; h++ {
		row := raw.Row(first + h)
		for t, v := range row {
			out.Set(t, h, v)
		}
	}
	return out, nil
}

func rowsOf(m *Matrix) int {
	if m == nil {
		return 0
	}
	return m.Rows()
}

// WindowSet holds sliding-window samples ready for training. Samples are
// stored flattened sample-major; each window has shape (T, D, 1) with the
// trailing unit channel axis carried in WindowShape.
type WindowSet struct {
	length   int
	features int
	samples  []float64
	labels   []float64
	classes  []int
}

// Len reports the number of samples.
func (s *WindowSet) Len() int { return len(s.classes) }

// WindowShape reports the per-sample tensor shape (T, D, 1).
func (s *WindowSet) WindowShape() [3]int {
	return [3]int{s.length, s.features, 1}
}

// Sample returns sample i flattened to T*D values, sharing the backing
// array. Callers must not mutate it.
func (s *WindowSet) Sample(i int) []float64 {
	n := s.length * s.features
	return s.samples[i*n : (i+1)*n]
}

// At returns the value at time step t, feature d of sample i.
func (s *WindowSet) At(i, t, d int) float64 {
	return s.samples[(i*s.length+t)*s.features+d]
}

// Label returns sample i's one-hot class vector of length 3.
func (s *WindowSet) Label(i int) []float64 {
	return s.labels[i*NumClasses : (i+1)*NumClasses]
}

// Class returns sample i's class index (0 down, 1 stationary, 2 up).
func (s *WindowSet) Class(i int) int { return s.classes[i] }

// Windowize slides a length-T window over the feature matrix X (N x D) and
// pairs each window with the label at its final time step for the chosen
// horizon column of Y (N x 5). Window i covers X rows [i, i+T); its label is
// Y[i+T-1, horizon]. Raw labels {1,2,3} are remapped to classes {0,1,2} and
// one-hot encoded. The transform is pure and deterministic.
func Windowize(x, y *Matrix, length, horizon int) (*WindowSet, error) {
	if x == nil || y == nil {
		return nil, fmt.Errorf("%w: nil input matrix", ErrInvalidShape)
	}
	if y.Cols() != NumHorizons {
		return nil, fmt.Errorf("%w: label matrix has %d columns, expected %d",
			ErrInvalidShape, y.Cols(), NumHorizons)
	}
	if x.Rows() != y.Rows() {
		return nil, fmt.Errorf("%w: features have %d rows, labels have %d",
			ErrInvalidShape, x.Rows(), y.Rows())
	}
	if horizon < 0 || horizon >= NumHorizons {
		return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrInvalidHorizon, horizon, NumHorizons)
	}
	steps := x.Rows()
	if length < 1 || length > steps {
		return nil, fmt.Errorf("%w: length %d with %d time steps", ErrInvalidWindow, length, steps)
	}

	n := steps - length + 1
	d := x.Cols()
	set := &WindowSet{
		length:   length,
		features: d,
		samples:  make([]float64, n*length*d),
		labels:   make([]float64, n*NumClasses),
		classes:  make([]int, n),
	}
	for i := 0; i < n; i++ {
		base := i * length * d
		for t := 0; t < length; t++ {
			copy(set.samples[base+t*d:base+(t+1)*d], x.Row(i+t))
		}
		class, err := classOf(y.At(i+length-1, horizon))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		set.classes[i] = class
		set.labels[i*NumClasses+class] = 1
	}
	return set, nil
}

// classOf validates a raw label and remaps {1,2,3} to {0,1,2}. Anything
// else, including non-integral values, is rejected.
func classOf(raw float64) (int, error) {
	if raw != math.Trunc(raw) {
		return 0, fmt.Errorf("%w: %v is not integral", ErrInvalidLabel, raw)
	}
	class := int(raw) - 1
	if class < 0 || class >= NumClasses {
		return 0, fmt.Errorf("%w: %v outside {1,2,3}", ErrInvalidLabel, raw)
	}
	return class, nil
}
