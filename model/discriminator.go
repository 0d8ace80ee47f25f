package model

import (
	"fmt"

	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/layers"
)

// Discriminator scores images as real or generated. Without batch
// normalization it acts as a Wasserstein critic.
type Discriminator struct {
	cfg       Config
	batchNorm bool
	convs     []*layers.ConvLayer
	linears   []*layers.LinearLayer
	// norms[i] follows convs[i+1] (unconditional) or the hidden layers
	// (conditional); nil entries when batch norm is off.
	norms []*layers.BatchNormLayer
}

// NewDiscriminator creates the discriminator parameters in ps.
func NewDiscriminator(ps *layers.ParameterSet, cfg Config, batchNorm bool) (*Discriminator, error) {
	d := &Discriminator{cfg: cfg, batchNorm: batchNorm}
	var err error
	if cfg.Conditional() {
		err = d.buildConditional(ps)
	} else {
		err = d.buildUnconditional(ps)
	}
	if err != nil {
		return nil, fmt.Errorf("discriminator: %w", err)
	}
	return d, nil
}

func (d *Discriminator) newNorm(ps *layers.ParameterSet, name string, channels int) error {
	if !d.batchNorm {
		d.norms = append(d.norms, nil)
		return nil
	}
	bn, err := layers.NewBatchNorm(ps, name, channels)
	if err != nil {
		return err
	}
	d.norms = append(d.norms, bn)
	return nil
}

func (d *Discriminator) buildUnconditional(ps *layers.ParameterSet) error {
	cfg := d.cfg
	in := cfg.Channels
	h, w := cfg.OutputHeight, cfg.OutputWidth
	for i := 0; i < 4; i++ {
		out := cfg.DFDim << i
		conv, err := layers.NewConv2D(ps, fmt.Sprintf("d_h%d_conv", i), in, out, layers.DefaultStddev)
		if err != nil {
			return err
		}
		d.convs = append(d.convs, conv)
		if i > 0 {
			if err := d.newNorm(ps, fmt.Sprintf("d_bn%d", i), out); err != nil {
				return err
			}
		}
		in = out
		h, w = layers.ConvOutSizeSame(h, layers.Stride), layers.ConvOutSizeSame(w, layers.Stride)
	}
	lin, err := layers.NewLinear(ps, "d_h4_lin", h*w*in, 1, layers.DefaultStddev)
	if err != nil {
		return err
	}
	d.linears = []*layers.LinearLayer{lin}
	return nil
}

func (d *Discriminator) buildConditional(ps *layers.ParameterSet) error {
	cfg := d.cfg
	c0 := cfg.Channels + cfg.YDim
	c1 := cfg.DFDim + cfg.YDim
	h0, err := layers.NewConv2D(ps, "d_h0_conv", c0, c0, layers.DefaultStddev)
	if err != nil {
		return err
	}
	h1, err := layers.NewConv2D(ps, "d_h1_conv", c0+cfg.YDim, c1, layers.DefaultStddev)
	if err != nil {
		return err
	}
	d.convs = []*layers.ConvLayer{h0, h1}
	if err := d.newNorm(ps, "d_bn1", c1); err != nil {
		return err
	}

	h := layers.ConvOutSizeSame(layers.ConvOutSizeSame(cfg.OutputHeight, layers.Stride), layers.Stride)
	w := layers.ConvOutSizeSame(layers.ConvOutSizeSame(cfg.OutputWidth, layers.Stride), layers.Stride)
	h2, err := layers.NewLinear(ps, "d_h2_lin", h*w*c1+cfg.YDim, cfg.DFCDim, layers.DefaultStddev)
	if err != nil {
		return err
	}
	if err := d.newNorm(ps, "d_bn2", cfg.DFCDim); err != nil {
		return err
	}
	h3, err := layers.NewLinear(ps, "d_h3_lin", cfg.DFCDim+cfg.YDim, 1, layers.DefaultStddev)
	if err != nil {
		return err
	}
	d.linears = []*layers.LinearLayer{h2, h3}
	return nil
}

func (d *Discriminator) norm(s *layers.Session, i int, x *autograd.Var) *autograd.Var {
	if d.norms[i] == nil {
		return x
	}
	return d.norms[i].Forward(s, x)
}

// Forward scores x [N,H,W,C]. y [N, y_dim] is required in conditional
// mode. It returns sigmoid(logits) and logits [N,1] when batch norm is on;
// otherwise prob is nil and logits has shape [N].
func (d *Discriminator) Forward(s *layers.Session, x, y *autograd.Var) (prob, logits *autograd.Var) {
	if d.cfg.Conditional() {
		logits = d.forwardConditional(s, x, y)
	} else {
		logits = d.forwardUnconditional(s, x)
	}
	if !d.batchNorm {
		return nil, autograd.Reshape(logits, []int{-1})
	}
	return autograd.Sigmoid(logits), logits
}

func (d *Discriminator) forwardUnconditional(s *layers.Session, x *autograd.Var) *autograd.Var {
	h := layers.LReLU(d.convs[0].Forward(s, x))
	for i, conv := range d.convs[1:] {
		h = layers.LReLU(d.norm(s, i, conv.Forward(s, h)))
	}
	return d.linears[0].Forward(s, autograd.Flatten(h))
}

func (d *Discriminator) forwardConditional(s *layers.Session, x, y *autograd.Var) *autograd.Var {
	h := layers.ConcatLabelMap(x, y)
	h = layers.LReLU(d.convs[0].Forward(s, h))
	h = layers.ConcatLabelMap(h, y)
	h = layers.LReLU(d.norm(s, 0, d.convs[1].Forward(s, h)))
	h = autograd.Concat(autograd.Flatten(h), y)
	h = layers.LReLU(d.norm(s, 1, d.linears[0].Forward(s, h)))
	h = autograd.Concat(h, y)
	return d.linears[1].Forward(s, h)
}
