package layers

import (
	"github.com/tsawler/go-vaegan/autograd"
)

// Kernel geometry shared by the convolutional layers.
const (
	KernelSize = 5
	Stride     = 2
)

// ConvOutSizeSame returns the spatial size after a SAME-padded strided
// convolution: ceil(size/stride).
func ConvOutSizeSame(size, stride int) int {
	return (size + stride - 1) / stride
}

// ConvLayer is a 5x5 stride-2 SAME convolution with bias.
type ConvLayer struct {
	W      *Parameter
	Biases *Parameter
	spec   *LayerSpec
}

// NewConv2D creates name/w [5,5,in,out] drawn from a truncated normal and
// zero name/biases [out].
func NewConv2D(ps *ParameterSet, name string, in, out int, stddev float32) (*ConvLayer, error) {
	w, err := ps.Create(name+"/w", []int{KernelSize, KernelSize, in, out}, TruncatedNormalInit(stddev), true)
	if err != nil {
		return nil, err
	}
	b, err := ps.Create(name+"/biases", []int{out}, ZerosInit(), true)
	if err != nil {
		return nil, err
	}
	spec := &LayerSpec{
		Type: Conv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"input_channels":  in,
			"output_channels": out,
			"kernel_size":     KernelSize,
			"stride":          Stride,
		},
	}
	ps.register(spec, w, b)
	return &ConvLayer{W: w, Biases: b, spec: spec}, nil
}

// Forward applies the convolution to x [N,H,W,in].
func (l *ConvLayer) Forward(s *Session, x *autograd.Var) *autograd.Var {
	y := autograd.Add(autograd.Conv2D(x, s.Bind(l.W), Stride), s.Bind(l.Biases))
	l.spec.observe(x.Shape(), y.Shape())
	return y
}

// DeconvLayer is a 5x5 stride-2 transposed convolution with bias.
type DeconvLayer struct {
	W      *Parameter
	Biases *Parameter
	spec   *LayerSpec
}

// NewDeconv2D creates name/w [5,5,out,in] drawn from N(0, stddev^2) and
// zero name/biases [out].
func NewDeconv2D(ps *ParameterSet, name string, in, out int, stddev float32) (*DeconvLayer, error) {
	w, err := ps.Create(name+"/w", []int{KernelSize, KernelSize, out, in}, NormalInit(stddev), true)
	if err != nil {
		return nil, err
	}
	b, err := ps.Create(name+"/biases", []int{out}, ZerosInit(), true)
	if err != nil {
		return nil, err
	}
	spec := &LayerSpec{
		Type: Deconv2D,
		Name: name,
		Parameters: map[string]interface{}{
			"input_channels":  in,
			"output_channels": out,
			"kernel_size":     KernelSize,
			"stride":          Stride,
		},
	}
	ps.register(spec, w, b)
	return &DeconvLayer{W: w, Biases: b, spec: spec}, nil
}

// Forward upsamples x [N,h,w,in] to [N, outH, outW, out].
func (l *DeconvLayer) Forward(s *Session, x *autograd.Var, outH, outW int) *autograd.Var {
	outShape := []int{x.Shape()[0], outH, outW, l.W.Value.Shape[2]}
	y := autograd.Add(autograd.Conv2DTranspose(x, s.Bind(l.W), outShape, Stride), s.Bind(l.Biases))
	l.spec.observe(x.Shape(), y.Shape())
	return y
}
