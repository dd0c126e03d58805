package deeplob

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidArchitectureParam reports model parameters that cannot produce
// a valid graph: non-positive sizes, or a stage whose input is narrower
// than its kernel. Raised before any descriptor is handed out.
var ErrInvalidArchitectureParam = errors.New("deeplob: invalid architecture parameter")

// Shape is a tensor shape without the batch axis. Convolutional layers see
// rank 3 (time, width, channels); the recurrent stage sees rank 2
// (time, features); the head sees rank 1.
type Shape []int

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s Shape) String() string {
	b, _ := json.Marshal([]int(s))
	return string(b)
}

// Layer is one node of the architecture descriptor. Layers are declarative:
// they carry hyperparameters and know how shapes flow through them, while
// the tensor runtime owns the actual math.
type Layer interface {
	Kind() string
	OutShape(in Shape) (Shape, error)
}

// Conv2D is a 2D convolution over (time, width). A zero Stride means 1x1.
// Same pads to preserve spatial dims under stride 1; otherwise padding is
// valid and the input must cover the kernel.
type Conv2D struct {
	Filters int    `json:"filters"`
	Kernel  [2]int `json:"kernel"`
	Stride  [2]int `json:"stride,omitempty"`
	Same    bool   `json:"same,omitempty"`
}

func (Conv2D) Kind() string { return "conv2d" }

func (l Conv2D) OutShape(in Shape) (Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("conv2d: rank %d input, need 3", len(in))
	}
	if l.Filters < 1 || l.Kernel[0] < 1 || l.Kernel[1] < 1 {
		return nil, fmt.Errorf("conv2d: non-positive filters or kernel")
	}
	t, err := slideDim(in[0], l.Kernel[0], strideOr1(l.Stride[0]), l.Same)
	if err != nil {
		return nil, fmt.Errorf("conv2d time axis: %w", err)
	}
	w, err := slideDim(in[1], l.Kernel[1], strideOr1(l.Stride[1]), l.Same)
	if err != nil {
		return nil, fmt.Errorf("conv2d width axis: %w", err)
	}
	return Shape{t, w, l.Filters}, nil
}

// LeakyReLU applies a leaky rectifier with the given negative slope.
type LeakyReLU struct {
	Slope float64 `json:"slope"`
}

func (LeakyReLU) Kind() string { return "leaky_relu" }

func (l LeakyReLU) OutShape(in Shape) (Shape, error) {
	return in, nil
}

// MaxPool2D pools over (time, width) windows.
type MaxPool2D struct {
	Pool   [2]int `json:"pool"`
	Stride [2]int `json:"stride,omitempty"`
	Same   bool   `json:"same,omitempty"`
}

func (MaxPool2D) Kind() string { return "max_pool2d" }

func (l MaxPool2D) OutShape(in Shape) (Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("max_pool2d: rank %d input, need 3", len(in))
	}
	if l.Pool[0] < 1 || l.Pool[1] < 1 {
		return nil, fmt.Errorf("max_pool2d: non-positive pool size")
	}
	t, err := slideDim(in[0], l.Pool[0], strideOr1(l.Stride[0]), l.Same)
	if err != nil {
		return nil, fmt.Errorf("max_pool2d time axis: %w", err)
	}
	w, err := slideDim(in[1], l.Pool[1], strideOr1(l.Stride[1]), l.Same)
	if err != nil {
		return nil, fmt.Errorf("max_pool2d width axis: %w", err)
	}
	return Shape{t, w, in[2]}, nil
}

// Inception runs branches in parallel on the same input and concatenates
// their outputs along the channel axis. Branches must agree on the spatial
// dims.
type Inception struct {
	Branches [][]Layer
}

func (Inception) Kind() string { return "inception" }

func (l Inception) OutShape(in Shape) (Shape, error) {
	if len(l.Branches) == 0 {
		return nil, fmt.Errorf("inception: no branches")
	}
	var spatial Shape
	channels := 0
	for i, branch := range l.Branches {
		shape := in
		var err error
		for _, layer := range branch {
			shape, err = layer.OutShape(shape)
			if err != nil {
				return nil, fmt.Errorf("inception branch %d: %w", i, err)
			}
		}
		if len(shape) != 3 {
			return nil, fmt.Errorf("inception branch %d: rank %d output, need 3", i, len(shape))
		}
		if spatial == nil {
			spatial = Shape{shape[0], shape[1]}
		} else if spatial[0] != shape[0] || spatial[1] != shape[1] {
			return nil, fmt.Errorf("inception branch %d: spatial dims %dx%d differ from %dx%d",
				i, shape[0], shape[1], spatial[0], spatial[1])
		}
		channels += shape[2]
	}
	return Shape{spatial[0], spatial[1], channels}, nil
}

func (l Inception) MarshalJSON() ([]byte, error) {
	branches := make([][]json.RawMessage, len(l.Branches))
	for i, branch := range l.Branches {
		for _, layer := range branch {
			raw, err := marshalLayer(layer)
			if err != nil {
				return nil, err
			}
			branches[i] = append(branches[i], raw)
		}
	}
	return json.Marshal(struct {
		Branches [][]json.RawMessage `json:"branches"`
	}{branches})
}

// CollapseWidth folds the spatial width into the channel axis, turning a
// (time, width, channels) tensor into a (time, width*channels) sequence for
// the recurrent stage.
type CollapseWidth struct{}

func (CollapseWidth) Kind() string { return "collapse_width" }

func (CollapseWidth) OutShape(in Shape) (Shape, error) {
	if len(in) != 3 {
		return nil, fmt.Errorf("collapse_width: rank %d input, need 3", len(in))
	}
	return Shape{in[0], in[1] * in[2]}, nil
}

// LSTM consumes a (time, features) sequence and emits its final hidden
// state.
type LSTM struct {
	Units int `json:"units"`
}

func (LSTM) Kind() string { return "lstm" }

func (l LSTM) OutShape(in Shape) (Shape, error) {
	if len(in) != 2 {
		return nil, fmt.Errorf("lstm: rank %d input, need 2", len(in))
	}
	if l.Units < 1 {
		return nil, fmt.Errorf("lstm: non-positive units")
	}
	return Shape{l.Units}, nil
}

// Dense is a fully connected projection with an optional activation.
type Dense struct {
	Units      int    `json:"units"`
	Activation string `json:"activation,omitempty"`
}

func (Dense) Kind() string { return "dense" }

func (l Dense) OutShape(in Shape) (Shape, error) {
	if len(in) != 1 {
		return nil, fmt.Errorf("dense: rank %d input, need 1", len(in))
	}
	if l.Units < 1 {
		return nil, fmt.Errorf("dense: non-positive units")
	}
	return Shape{l.Units}, nil
}

// slideDim computes the output length of a kernel slid over one axis.
func slideDim(in, kernel, stride int, same bool) (int, error) {
	if stride < 1 {
		return 0, fmt.Errorf("non-positive stride %d", stride)
	}
	if same {
		return (in + stride - 1) / stride, nil
	}
	if in < kernel {
		return 0, fmt.Errorf("input %d narrower than kernel %d", in, kernel)
	}
	return (in-kernel)/stride + 1, nil
}

func strideOr1(s int) int {
	if s == 0 {
		return 1
	}
	return s
}

// marshalLayer wraps a layer's parameters with its kind tag, producing the
// wire form consumed by the tensor runtime.
func marshalLayer(l Layer) (json.RawMessage, error) {
	params, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(params, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]json.RawMessage{}
	}
	kind, _ := json.Marshal(l.Kind())
	fields["kind"] = kind
	return json.Marshal(fields)
}
