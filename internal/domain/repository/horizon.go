package repository

import "fmt"

// Horizon is a prediction horizon measured in order book events. The label
// block carries one row per horizon, in this order.
type Horizon int

const (
	Horizon10  Horizon = 10
	Horizon20  Horizon = 20
	Horizon30  Horizon = 30
	Horizon50  Horizon = 50
	Horizon100 Horizon = 100
)

// Horizons returns all supported horizons in label row order.
func Horizons() []Horizon {
	return []Horizon{Horizon10, Horizon20, Horizon30, Horizon50, Horizon100}
}

// IsValidHorizon reports whether h is supported.
func IsValidHorizon(h Horizon) bool {
	switch h {
	case Horizon10, Horizon20, Horizon30, Horizon50, Horizon100:
		return true
	default:
		return false
	}
}

// DefaultHorizon is the 50-event horizon used by the reference setup.
func DefaultHorizon() Horizon { return Horizon50 }

// NormalizeHorizon converts a raw event count to a valid horizon,
// falling back to the default.
func NormalizeHorizon(n int) Horizon {
	h := Horizon(n)
	if IsValidHorizon(h) {
		return h
	}
	return DefaultHorizon()
}

// LabelColumn returns the index of this horizon inside the label block.
func (h Horizon) LabelColumn() int {
	for i, v := range Horizons() {
		if v == h {
			return i
		}
	}
	return DefaultHorizon().LabelColumn()
}

// HorizonFromColumn maps a label column index back to its horizon.
func HorizonFromColumn(idx int) (Horizon, error) {
	all := Horizons()
	if idx < 0 || idx >= len(all) {
		return 0, fmt.Errorf("label column out of range: %d", idx)
	}
	return all[idx], nil
}
