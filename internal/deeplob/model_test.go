package deeplob

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestBuildShapes(t *testing.T) {
	m, err := Build(100, 40, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.InputShape.Equal(Shape{100, 40, 1}) {
		t.Fatalf("unexpected input shape %v", m.InputShape)
	}
	if len(m.Layers) != 22 {
		t.Fatalf("expected 22 layers, got %d", len(m.Layers))
	}

	// Width halves twice and then collapses: 40 -> 20 -> 10 -> 1.
	checks := []struct {
		layer int
		want  Shape
	}{
		{0, Shape{100, 20, ConvFilters}},
		{5, Shape{100, 20, ConvFilters}},
		{11, Shape{100, 10, ConvFilters}},
		{17, Shape{100, 1, ConvFilters}},
		{18, Shape{100, 1, 3 * InceptionFilters}},
		{19, Shape{100, 3 * InceptionFilters}},
		{20, Shape{64}},
		{21, Shape{NumClasses}},
	}
	for _, c := range checks {
		if got := m.ShapeAfter(c.layer); !got.Equal(c.want) {
			t.Fatalf("layer %d: got shape %v, want %v", c.layer, got, c.want)
		}
	}
	if !m.OutputShape().Equal(Shape{3}) {
		t.Fatalf("output shape %v, want [3]", m.OutputShape())
	}
}

func TestBuildRecurrentUnits(t *testing.T) {
	m, err := Build(50, 40, 32)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shapes := m.Summary()
	lstm := shapes[len(shapes)-2]
	if lstm.Kind != "lstm" || !lstm.Shape.Equal(Shape{32}) {
		t.Fatalf("unexpected lstm summary %+v", lstm)
	}
}

func TestBuildInvalidParams(t *testing.T) {
	cases := []struct {
		name                 string
		length, feats, units int
	}{
		{"zero window", 0, 40, 64},
		{"negative window", -5, 40, 64},
		{"zero features", 100, 0, 64},
		{"zero units", 100, 40, 0},
		{"negative units", 100, 40, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.length, tc.feats, tc.units); !errors.Is(err, ErrInvalidArchitectureParam) {
				t.Fatalf("got %v, want ErrInvalidArchitectureParam", err)
			}
		})
	}
}

func TestBuildWidthTooNarrow(t *testing.T) {
	// 2 and 3 features survive one halving but not the second.
	for _, feats := range []int{2, 3} {
		if _, err := Build(100, feats, 64); !errors.Is(err, ErrInvalidArchitectureParam) {
			t.Fatalf("features=%d: got %v, want ErrInvalidArchitectureParam", feats, err)
		}
	}
}

func TestSummaryOrder(t *testing.T) {
	m, err := Build(100, 40, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kinds := make([]string, 0, len(m.Layers))
	for _, s := range m.Summary() {
		kinds = append(kinds, s.Kind)
	}
	// Three conv stages of six layers, then the tail.
	for stage := 0; stage < ConvStages; stage++ {
		base := stage * 6
		want := []string{"conv2d", "leaky_relu", "conv2d", "leaky_relu", "conv2d", "leaky_relu"}
		for i, k := range want {
			if kinds[base+i] != k {
				t.Fatalf("layer %d: got %s, want %s", base+i, kinds[base+i], k)
			}
		}
	}
	tail := []string{"inception", "collapse_width", "lstm", "dense"}
	for i, k := range tail {
		if kinds[18+i] != k {
			t.Fatalf("layer %d: got %s, want %s", 18+i, kinds[18+i], k)
		}
	}
}

func TestCompile(t *testing.T) {
	m, err := Build(100, 40, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := m.Compile()
	if c.Optimizer.Name != "adam" {
		t.Fatalf("unexpected optimizer %q", c.Optimizer.Name)
	}
	if c.Optimizer.StepSize != 0.001 || c.Optimizer.Beta1 != 0.9 || c.Optimizer.Beta2 != 0.999 {
		t.Fatalf("unexpected optimizer params %+v", c.Optimizer)
	}
	if c.Optimizer.Epsilon != 1 {
		t.Fatalf("epsilon %v, want 1", c.Optimizer.Epsilon)
	}
	if c.Loss != "categorical_crossentropy" {
		t.Fatalf("unexpected loss %q", c.Loss)
	}
	if len(c.Metrics) != 1 || c.Metrics[0] != "accuracy" {
		t.Fatalf("unexpected metrics %v", c.Metrics)
	}
}

func TestCompiledWireForm(t *testing.T) {
	m, err := Build(100, 40, 64)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	raw, err := json.Marshal(m.Compile())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		InputShape  []int             `json:"input_shape"`
		Layers      []json.RawMessage `json:"layers"`
		OutputShape []int             `json:"output_shape"`
		Optimizer   Optimizer         `json:"optimizer"`
		Loss        string            `json:"loss"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.InputShape) != 3 || decoded.InputShape[0] != 100 || decoded.InputShape[1] != 40 {
		t.Fatalf("unexpected input shape %v", decoded.InputShape)
	}
	if len(decoded.Layers) != 22 {
		t.Fatalf("expected 22 layer specs, got %d", len(decoded.Layers))
	}
	if len(decoded.OutputShape) != 1 || decoded.OutputShape[0] != 3 {
		t.Fatalf("unexpected output shape %v", decoded.OutputShape)
	}

	var first struct {
		Kind    string `json:"kind"`
		Filters int    `json:"filters"`
		Kernel  []int  `json:"kernel"`
		Stride  []int  `json:"stride"`
	}
	if err := json.Unmarshal(decoded.Layers[0], &first); err != nil {
		t.Fatalf("unmarshal first layer: %v", err)
	}
	if first.Kind != "conv2d" || first.Filters != ConvFilters {
		t.Fatalf("unexpected first layer %+v", first)
	}
	if first.Kernel[0] != 1 || first.Kernel[1] != WidthKernel {
		t.Fatalf("unexpected first kernel %v", first.Kernel)
	}
	if !strings.Contains(string(decoded.Layers[18]), "branches") {
		t.Fatalf("inception spec missing branches: %s", decoded.Layers[18])
	}
}

func TestLayerShapeMath(t *testing.T) {
	cases := []struct {
		name  string
		layer Layer
		in    Shape
		want  Shape
	}{
		{"valid strided conv", Conv2D{Filters: 8, Kernel: [2]int{1, 2}, Stride: [2]int{1, 2}}, Shape{10, 6, 1}, Shape{10, 3, 8}},
		{"same conv keeps dims", Conv2D{Filters: 8, Kernel: [2]int{4, 1}, Same: true}, Shape{10, 6, 3}, Shape{10, 6, 8}},
		{"same pool keeps dims", MaxPool2D{Pool: [2]int{3, 1}, Stride: [2]int{1, 1}, Same: true}, Shape{10, 6, 3}, Shape{10, 6, 3}},
		{"collapse width", CollapseWidth{}, Shape{10, 2, 16}, Shape{10, 32}},
		{"lstm", LSTM{Units: 7}, Shape{10, 32}, Shape{7}},
		{"dense", Dense{Units: 3}, Shape{7}, Shape{3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.layer.OutShape(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConvNarrowerThanKernel(t *testing.T) {
	c := Conv2D{Filters: 8, Kernel: [2]int{1, 10}}
	if _, err := c.OutShape(Shape{10, 4, 1}); err == nil {
		t.Fatalf("expected error for narrow input")
	}
}
