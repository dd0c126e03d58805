package models

import "time"

// Movement classes, in label order: the head emits probabilities for
// down, stationary, up.
const (
	ClassDown       = 0
	ClassStationary = 1
	ClassUp         = 2
)

// Prediction is one scored window: a probability per movement class plus
// the argmax class.
type Prediction struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id,omitempty"`
	Horizon    int       `json:"horizon"`

	Probabilities []float64 `json:"probabilities"`
	Class         int       `json:"class"`
	Confidence    float64   `json:"confidence"`

	Source string `json:"source,omitempty"` // "model" or "cache"
}

// ClassName maps a class index to its label.
func ClassName(class int) string {
	switch class {
	case ClassDown:
		return "down"
	case ClassStationary:
		return "stationary"
	case ClassUp:
		return "up"
	default:
		return "unknown"
	}
}

// ClassName returns the label of the predicted class.
func (p *Prediction) ClassName() string {
	return ClassName(p.Class)
}
