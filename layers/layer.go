package layers

import (
	"fmt"
	"strings"

	"github.com/tsawler/go-vaegan/tensor"
)

// LayerType represents the type of neural network layer
type LayerType int

const (
	Linear LayerType = iota
	Conv2D
	Deconv2D
	BatchNorm
	LabelConcat
)

func (lt LayerType) String() string {
	switch lt {
	case Linear:
		return "Linear"
	case Conv2D:
		return "Conv2D"
	case Deconv2D:
		return "Deconv2D"
	case BatchNorm:
		return "BatchNorm"
	case LabelConcat:
		return "LabelConcat"
	default:
		return "Unknown"
	}
}

// LayerSpec describes a built layer for architecture summaries.
type LayerSpec struct {
	Type       LayerType              `json:"type"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`

	// Shape information, filled in on the first forward pass
	InputShape  []int `json:"input_shape,omitempty"`
	OutputShape []int `json:"output_shape,omitempty"`

	ParameterShapes [][]int `json:"parameter_shapes,omitempty"`
	ParameterCount  int64   `json:"parameter_count,omitempty"`
}

// ModelSpec is the ordered list of layers registered in a ParameterSet.
type ModelSpec struct {
	Layers          []*LayerSpec `json:"layers"`
	TotalParameters int64        `json:"total_parameters"`
}

func (ms *ModelSpec) add(spec *LayerSpec) {
	for _, s := range spec.ParameterShapes {
		n := int64(1)
		for _, d := range s {
			n *= int64(d)
		}
		spec.ParameterCount += n
	}
	ms.Layers = append(ms.Layers, spec)
	ms.TotalParameters += spec.ParameterCount
}

// Prefixed returns the layers whose name starts with prefix.
func (ms *ModelSpec) Prefixed(prefix string) []*LayerSpec {
	var out []*LayerSpec
	for _, l := range ms.Layers {
		if strings.HasPrefix(l.Name, prefix) {
			out = append(out, l)
		}
	}
	return out
}

func (ms *ModelSpec) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model Summary:\n")
	fmt.Fprintf(&b, "Total Parameters: %d\n", ms.TotalParameters)
	fmt.Fprintf(&b, "Layers: %d\n\n", len(ms.Layers))
	for i, layer := range ms.Layers {
		fmt.Fprintf(&b, "Layer %d: %s (%s)\n", i+1, layer.Name, layer.Type)
		fmt.Fprintf(&b, "  Input:  %v\n", layer.InputShape)
		fmt.Fprintf(&b, "  Output: %v\n", layer.OutputShape)
		fmt.Fprintf(&b, "  Params: %d\n", layer.ParameterCount)
		if len(layer.Parameters) > 0 {
			fmt.Fprintf(&b, "  Config: %v\n", layer.Parameters)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// observe records the shapes seen by a layer the first time it runs.
func (l *LayerSpec) observe(in, out []int) {
	if l.OutputShape != nil {
		return
	}
	l.InputShape = append([]int(nil), in...)
	l.OutputShape = append([]int(nil), out...)
}

// ShapeString renders the recorded output shape, or "?" before the first
// forward pass.
func (l *LayerSpec) ShapeString() string {
	if l.OutputShape == nil {
		return "?"
	}
	return tensor.FormatShape(l.OutputShape)
}
