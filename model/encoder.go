package model

import (
	"fmt"

	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/layers"
)

// Encoder maps images to the mean and log variance of a diagonal
// Gaussian over the latent space.
type Encoder struct {
	convs      [4]*layers.ConvLayer
	hidden     *layers.LinearLayer
	mean       *layers.LinearLayer
	logSigmaSq *layers.LinearLayer
}

// NewEncoder creates the encoder parameters in ps.
func NewEncoder(ps *layers.ParameterSet, cfg Config) (*Encoder, error) {
	e := &Encoder{}
	in := cfg.Channels
	h, w := cfg.OutputHeight, cfg.OutputWidth
	for i := range e.convs {
		out := cfg.DFDim << i
		conv, err := layers.NewConv2D(ps, fmt.Sprintf("e_h%d_conv", i), in, out, layers.DefaultStddev)
		if err != nil {
			return nil, fmt.Errorf("encoder: %w", err)
		}
		e.convs[i] = conv
		in = out
		h, w = layers.ConvOutSizeSame(h, layers.Stride), layers.ConvOutSizeSame(w, layers.Stride)
	}
	var err error
	if e.hidden, err = layers.NewLinear(ps, "e_h4_lin", h*w*in, cfg.HiddenDim, layers.DefaultStddev); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	heads := layers.XavierUniformInit(cfg.HiddenDim, cfg.ZDim, 1)
	if e.mean, err = layers.NewDense(ps, "e_out_mean", "e_weight_out_mean", "e_bias_out_mean", cfg.HiddenDim, cfg.ZDim, heads); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	if e.logSigmaSq, err = layers.NewDense(ps, "e_out_log_sigma", "e_weight_out_log_sigma", "e_bias_out_log_sigma", cfg.HiddenDim, cfg.ZDim, heads); err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	return e, nil
}

// Forward encodes x [N,H,W,C] into mean and log_sigma_sq, each [N, z_dim].
func (e *Encoder) Forward(s *layers.Session, x *autograd.Var) (mean, logSigmaSq *autograd.Var) {
	h := x
	for _, conv := range e.convs {
		h = autograd.ReLU(conv.Forward(s, h))
	}
	h = e.hidden.Forward(s, autograd.Flatten(h))
	return e.mean.Forward(s, h), e.logSigmaSq.Forward(s, h)
}
