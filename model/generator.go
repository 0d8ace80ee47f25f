package model

import (
	"fmt"

	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/layers"
)

// Generator decodes latent vectors (and labels, when conditional) into
// images.
type Generator struct {
	cfg      Config
	linears  []*layers.LinearLayer
	deconvs  []*layers.DeconvLayer
	norms    []*layers.BatchNormLayer
	heights  []int
	widths   []int
	channels []int
}

// NewGenerator creates the generator parameters in ps.
func NewGenerator(ps *layers.ParameterSet, cfg Config) (*Generator, error) {
	g := &Generator{cfg: cfg}
	var err error
	if cfg.Conditional() {
		err = g.buildConditional(ps)
	} else {
		err = g.buildUnconditional(ps)
	}
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	return g, nil
}

func (g *Generator) buildUnconditional(ps *layers.ParameterSet) error {
	cfg := g.cfg
	hs, ws := StageSizes(cfg.OutputHeight), StageSizes(cfg.OutputWidth)
	// Deconvs run from the coarsest stage back up to the output size.
	g.heights = []int{hs[3], hs[2], hs[1], hs[0]}
	g.widths = []int{ws[3], ws[2], ws[1], ws[0]}
	g.channels = []int{cfg.GFDim * 8, cfg.GFDim * 4, cfg.GFDim * 2, cfg.GFDim, cfg.Channels}

	lin, err := layers.NewLinear(ps, "g_h0_lin", cfg.ZDim, g.channels[0]*hs[4]*ws[4], layers.DefaultStddev)
	if err != nil {
		return err
	}
	g.linears = []*layers.LinearLayer{lin}
	for i := 0; i < 4; i++ {
		bn, err := layers.NewBatchNorm(ps, fmt.Sprintf("g_bn%d", i), g.channels[i])
		if err != nil {
			return err
		}
		g.norms = append(g.norms, bn)
		d, err := layers.NewDeconv2D(ps, fmt.Sprintf("g_h%d", i+1), g.channels[i], g.channels[i+1], layers.DefaultStddev)
		if err != nil {
			return err
		}
		g.deconvs = append(g.deconvs, d)
	}
	return nil
}

func (g *Generator) buildConditional(ps *layers.ParameterSet) error {
	cfg := g.cfg
	h2, h4 := cfg.OutputHeight/2, cfg.OutputHeight/4
	w2, w4 := cfg.OutputWidth/2, cfg.OutputWidth/4
	g.heights = []int{h2, cfg.OutputHeight}
	g.widths = []int{w2, cfg.OutputWidth}
	g.channels = []int{cfg.GFDim * 2, cfg.GFDim * 2, cfg.Channels}

	h0, err := layers.NewLinear(ps, "g_h0_lin", cfg.ZDim+cfg.YDim, cfg.GFCDim, layers.DefaultStddev)
	if err != nil {
		return err
	}
	h1, err := layers.NewLinear(ps, "g_h1_lin", cfg.GFCDim+cfg.YDim, cfg.GFDim*2*h4*w4, layers.DefaultStddev)
	if err != nil {
		return err
	}
	g.linears = []*layers.LinearLayer{h0, h1}

	for i, ch := range []int{cfg.GFCDim, cfg.GFDim * 2 * h4 * w4, cfg.GFDim * 2} {
		bn, err := layers.NewBatchNorm(ps, fmt.Sprintf("g_bn%d", i), ch)
		if err != nil {
			return err
		}
		g.norms = append(g.norms, bn)
	}

	d2, err := layers.NewDeconv2D(ps, "g_h2", cfg.GFDim*2+cfg.YDim, cfg.GFDim*2, layers.DefaultStddev)
	if err != nil {
		return err
	}
	d3, err := layers.NewDeconv2D(ps, "g_h3", cfg.GFDim*2+cfg.YDim, cfg.Channels, layers.DefaultStddev)
	if err != nil {
		return err
	}
	g.deconvs = []*layers.DeconvLayer{d2, d3}
	return nil
}

// Forward generates images from z [N, z_dim]. y [N, y_dim] is required in
// conditional mode and ignored otherwise. The session's mode selects
// batch or moving statistics.
func (g *Generator) Forward(s *layers.Session, z, y *autograd.Var) *autograd.Var {
	if g.cfg.Conditional() {
		return g.forwardConditional(s, z, y)
	}

	cfg := g.cfg
	hs, ws := StageSizes(cfg.OutputHeight), StageSizes(cfg.OutputWidth)
	h := g.linears[0].Forward(s, z)
	h = autograd.Reshape(h, []int{-1, hs[4], ws[4], g.channels[0]})
	for i, d := range g.deconvs {
		h = autograd.ReLU(g.norms[i].Forward(s, h))
		h = d.Forward(s, h, g.heights[i], g.widths[i])
	}
	return autograd.Tanh(h)
}

func (g *Generator) forwardConditional(s *layers.Session, z, y *autograd.Var) *autograd.Var {
	cfg := g.cfg
	h4, w4 := cfg.OutputHeight/4, cfg.OutputWidth/4

	h := autograd.ReLU(g.norms[0].Forward(s, g.linears[0].Forward(s, autograd.Concat(z, y))))
	h = autograd.Concat(h, y)
	h = autograd.ReLU(g.norms[1].Forward(s, g.linears[1].Forward(s, h)))
	h = autograd.Reshape(h, []int{-1, h4, w4, g.channels[0]})
	h = layers.ConcatLabelMap(h, y)

	h = g.deconvs[0].Forward(s, h, g.heights[0], g.widths[0])
	h = autograd.ReLU(g.norms[2].Forward(s, h))
	h = layers.ConcatLabelMap(h, y)
	return autograd.Sigmoid(g.deconvs[1].Forward(s, h, g.heights[1], g.widths[1]))
}
