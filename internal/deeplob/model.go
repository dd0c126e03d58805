package deeplob

import (
	"encoding/json"
	"fmt"
)

// Architectural constants of the DeepLOB network. The assembler reproduces
// the reference topology exactly; nothing here is tunable at runtime except
// window length, feature count and recurrent units.
const (
	// NumClasses is the size of the output distribution
	// (down / stationary / up).
	NumClasses = 3

	// ConvFilters is the channel count throughout the convolutional stack.
	ConvFilters = 32

	// InceptionFilters is the channel count of each inception branch.
	InceptionFilters = 64

	// LeakySlope is the negative slope of every leaky rectifier.
	LeakySlope = 0.01

	// WidthKernel and WidthStride halve the spatial width in the first
	// two convolutional stages.
	WidthKernel = 2
	WidthStride = 2

	// TimeKernel is the length of the same-padded time convolutions that
	// follow each width reduction.
	TimeKernel = 4

	// InceptionSmallKernel and InceptionLargeKernel are the time extents
	// of the two convolutional inception branches; InceptionPool is the
	// pooling extent of the third.
	InceptionSmallKernel = 3
	InceptionLargeKernel = 5
	InceptionPool        = 3

	// ConvStages is the number of width-reducing stages in the stack.
	ConvStages = 3

	// DefaultRecurrentUnits is the LSTM width used when a run does not
	// override it.
	DefaultRecurrentUnits = 64
)

// Adam hyperparameters fixed by the reference training setup.
const (
	OptimizerName    = "adam"
	AdamStepSize     = 0.001
	AdamBeta1        = 0.9
	AdamBeta2        = 0.999
	AdamEpsilon      = 1.0
	LossCategoricalX = "categorical_crossentropy"
	MetricAccuracy   = "accuracy"
)

// Model is the assembled architecture descriptor: an input shape, an
// ordered layer list, and the shape propagated after each layer. It is a
// pure declaration; weights live in the tensor runtime.
type Model struct {
	InputShape Shape
	Layers     []Layer

	shapes []Shape
}

// LayerShape pairs a layer kind with its propagated output shape, for
// summaries and audits.
type LayerShape struct {
	Kind  string `json:"kind"`
	Shape Shape  `json:"output_shape"`
}

// Build assembles the DeepLOB graph for a (windowLength, numFeatures, 1)
// input: three width-reducing convolutional stages, an inception block, a
// width collapse, one LSTM and a softmax head. Shapes are propagated
// through every layer at assembly time, so an impossible configuration
// fails here rather than in the runtime.
func Build(windowLength, numFeatures, recurrentUnits int) (*Model, error) {
	if windowLength < 1 {
		return nil, fmt.Errorf("%w: window length %d", ErrInvalidArchitectureParam, windowLength)
	}
	if numFeatures < 1 {
		return nil, fmt.Errorf("%w: feature count %d", ErrInvalidArchitectureParam, numFeatures)
	}
	if recurrentUnits < 1 {
		return nil, fmt.Errorf("%w: recurrent units %d", ErrInvalidArchitectureParam, recurrentUnits)
	}

	m := &Model{InputShape: Shape{windowLength, numFeatures, 1}}
	cur := m.InputShape

	add := func(l Layer) error {
		out, err := l.OutShape(cur)
		if err != nil {
			return fmt.Errorf("%w: layer %d (%s): %v",
				ErrInvalidArchitectureParam, len(m.Layers), l.Kind(), err)
		}
		m.Layers = append(m.Layers, l)
		m.shapes = append(m.shapes, out)
		cur = out
		return nil
	}

	// Convolutional stack. Stages 1 and 2 halve the width with a strided
	// (1,2) kernel; stage 3 collapses whatever width remains with a valid
	// (1,w) kernel. Every stage follows with two same-padded time
	// convolutions, and every convolution gets a leaky rectifier.
	for stage := 0; stage < ConvStages; stage++ {
		reduce := Conv2D{
			Filters: ConvFilters,
			Kernel:  [2]int{1, WidthKernel},
			Stride:  [2]int{1, WidthStride},
		}
		if stage == ConvStages-1 {
			reduce = Conv2D{Filters: ConvFilters, Kernel: [2]int{1, cur[1]}}
		}
		stageLayers := []Layer{
			reduce,
			LeakyReLU{Slope: LeakySlope},
			Conv2D{Filters: ConvFilters, Kernel: [2]int{TimeKernel, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
			Conv2D{Filters: ConvFilters, Kernel: [2]int{TimeKernel, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
		}
		for _, l := range stageLayers {
			if err := add(l); err != nil {
				return nil, err
			}
		}
	}

	inception := Inception{Branches: [][]Layer{
		{
			Conv2D{Filters: InceptionFilters, Kernel: [2]int{1, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
			Conv2D{Filters: InceptionFilters, Kernel: [2]int{InceptionSmallKernel, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
		},
		{
			Conv2D{Filters: InceptionFilters, Kernel: [2]int{1, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
			Conv2D{Filters: InceptionFilters, Kernel: [2]int{InceptionLargeKernel, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
		},
		{
			MaxPool2D{Pool: [2]int{InceptionPool, 1}, Stride: [2]int{1, 1}, Same: true},
			Conv2D{Filters: InceptionFilters, Kernel: [2]int{1, 1}, Same: true},
			LeakyReLU{Slope: LeakySlope},
		},
	}}

	tail := []Layer{
		inception,
		CollapseWidth{},
		LSTM{Units: recurrentUnits},
		Dense{Units: NumClasses, Activation: "softmax"},
	}
	for _, l := range tail {
		if err := add(l); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OutputShape reports the shape after the final layer.
func (m *Model) OutputShape() Shape {
	if len(m.shapes) == 0 {
		return nil
	}
	return m.shapes[len(m.shapes)-1]
}

// ShapeAfter reports the propagated shape after layer i.
func (m *Model) ShapeAfter(i int) Shape { return m.shapes[i] }

// Summary lists every layer with its propagated output shape.
func (m *Model) Summary() []LayerShape {
	out := make([]LayerShape, len(m.Layers))
	for i, l := range m.Layers {
		out[i] = LayerShape{Kind: l.Kind(), Shape: m.shapes[i]}
	}
	return out
}

// Optimizer describes the adaptive gradient optimizer attached at compile
// time.
type Optimizer struct {
	Name     string  `json:"name"`
	StepSize float64 `json:"step_size"`
	Beta1    float64 `json:"beta1"`
	Beta2    float64 `json:"beta2"`
	Epsilon  float64 `json:"epsilon"`
}

// Compiled couples a model with its training configuration. This is the
// complete descriptor shipped to the tensor runtime.
type Compiled struct {
	Model     *Model
	Optimizer Optimizer
	Loss      string
	Metrics   []string
}

// Compile attaches the fixed Adam optimizer, categorical cross-entropy loss
// and accuracy metric.
func (m *Model) Compile() *Compiled {
	return &Compiled{
		Model: m,
		Optimizer: Optimizer{
			Name:     OptimizerName,
			StepSize: AdamStepSize,
			Beta1:    AdamBeta1,
			Beta2:    AdamBeta2,
			Epsilon:  AdamEpsilon,
		},
		Loss:    LossCategoricalX,
		Metrics: []string{MetricAccuracy},
	}
}

// MarshalJSON emits the runtime wire form: input shape, tagged layer list,
// optimizer and loss.
func (c *Compiled) MarshalJSON() ([]byte, error) {
	layers := make([]json.RawMessage, len(c.Model.Layers))
	for i, l := range c.Model.Layers {
		raw, err := marshalLayer(l)
		if err != nil {
			return nil, fmt.Errorf("marshaling layer %d (%s): %w", i, l.Kind(), err)
		}
		layers[i] = raw
	}
	return json.Marshal(struct {
		InputShape  Shape             `json:"input_shape"`
		Layers      []json.RawMessage `json:"layers"`
		OutputShape Shape             `json:"output_shape"`
		Optimizer   Optimizer         `json:"optimizer"`
		Loss        string            `json:"loss"`
		Metrics     []string          `json:"metrics"`
	}{
		InputShape:  c.Model.InputShape,
		Layers:      layers,
		OutputShape: c.Model.OutputShape(),
		Optimizer:   c.Optimizer,
		Loss:        c.Loss,
		Metrics:     c.Metrics,
	})
}
