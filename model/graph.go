package model

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/layers"
	"github.com/tsawler/go-vaegan/tensor"
)

// Model owns the networks and their shared parameter set. It is not safe
// for concurrent use.
type Model struct {
	Config        Config
	Regime        Regime
	Params        *layers.ParameterSet
	Encoder       *Encoder // nil in conditional mode
	Generator     *Generator
	Discriminator *Discriminator

	rng *rand.Rand
}

// New validates cfg and regime and creates freshly initialized networks.
func New(cfg Config, regime Regime) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model configuration: %w", err)
	}
	if err := validateRegime(regime); err != nil {
		return nil, fmt.Errorf("invalid regime: %w", err)
	}

	ps := layers.NewParameterSet(cfg.Seed)
	m := &Model{Config: cfg, Regime: regime, Params: ps, rng: ps.Rand()}
	var err error
	if !cfg.Conditional() {
		if m.Encoder, err = NewEncoder(ps, cfg); err != nil {
			return nil, err
		}
	}
	if m.Generator, err = NewGenerator(ps, cfg); err != nil {
		return nil, err
	}
	if m.Discriminator, err = NewDiscriminator(ps, cfg, regime.DiscriminatorBatchNorm()); err != nil {
		return nil, err
	}

	prefixes := make([]string, 0, 3)
	for _, p := range m.Partitions() {
		prefixes = append(prefixes, p.Prefix())
	}
	if err := ps.ValidatePartitions(prefixes...); err != nil {
		return nil, err
	}
	return m, nil
}

// Partitions returns the partitions that own trainable parameters.
func (m *Model) Partitions() []Partition {
	if m.Config.Conditional() {
		return []Partition{PartitionGenerator, PartitionDiscriminator}
	}
	return []Partition{PartitionEncoder, PartitionGenerator, PartitionDiscriminator}
}

// OutputRange is the value range of generated images: tanh output for the
// autoencoding generator, sigmoid output for the conditional one.
func (m *Model) OutputRange() (low, high float32) {
	if m.Config.Conditional() {
		return 0, 1
	}
	return -1, 1
}

// Noise draws n latent vectors from N(0, 1).
func (m *Model) Noise(n int) (*tensor.Tensor, error) {
	return tensor.RandomNormal([]int{n, m.Config.ZDim}, 0, 1, m.rng)
}

// Batch is the input to one graph build.
type Batch struct {
	Images *tensor.Tensor // [N,H,W,C]
	Labels *tensor.Tensor // [N,y_dim], conditional mode only
	Z      *tensor.Tensor // [N,z_dim]
}

func (m *Model) checkBatch(b Batch) error {
	cfg := m.Config
	if b.Images == nil || b.Z == nil {
		return errors.New("batch needs images and z")
	}
	want := cfg.ImageShape()
	want[0] = b.Images.Dim(0)
	if !tensor.ShapesEqual(b.Images.Shape, want) {
		return fmt.Errorf("%w: images %v, want %v", autograd.ErrShape, b.Images.Shape, want)
	}
	if want := []int{want[0], cfg.ZDim}; !tensor.ShapesEqual(b.Z.Shape, want) {
		return fmt.Errorf("%w: z %v, want %v", autograd.ErrShape, b.Z.Shape, want)
	}
	if cfg.Conditional() {
		if b.Labels == nil {
			return errors.New("conditional batch needs labels")
		}
		if want := []int{want[0], cfg.YDim}; !tensor.ShapesEqual(b.Labels.Shape, want) {
			return fmt.Errorf("%w: labels %v, want %v", autograd.ErrShape, b.Labels.Shape, want)
		}
	}
	return nil
}

// BuildOptions configures a graph build.
type BuildOptions struct {
	Mode layers.Mode
	// UpdateStats folds training-mode batch statistics into the moving
	// averages while the graph is built.
	UpdateStats bool
}

// Scores holds a discriminator output. Prob is nil for a critic.
type Scores struct {
	Prob   *autograd.Var
	Logits *autograd.Var
}

// Graph is the result of one forward build: every activation and loss
// computed from a batch with the parameters as they were at build time.
// Fields are nil when the mode or regime does not produce them. A Graph is
// never modified after Build returns.
type Graph struct {
	Regime Regime
	Mode   layers.Mode

	Inputs *autograd.Var
	Labels *autograd.Var
	Z      *autograd.Var

	Mean           *autograd.Var
	LogSigmaSq     *autograd.Var
	Latent         *autograd.Var
	Reconstruction *autograd.Var
	Fake           *autograd.Var

	DReal  Scores
	DFake  Scores
	DRecon Scores

	// Per-sample terms, shaped [N].
	ReconstructionLoss *autograd.Var
	KL                 *autograd.Var

	DLoss *autograd.Var
	GLoss *autograd.Var
	ELoss *autograd.Var

	DLossReal       *autograd.Var
	DLossFake       *autograd.Var
	WDistance       *autograd.Var
	GradientPenalty *autograd.Var

	session *layers.Session
	params  map[Partition][]*layers.Parameter
}

// Loss returns the objective minimized by partition p.
func (g *Graph) Loss(p Partition) *autograd.Var {
	switch p {
	case PartitionEncoder:
		return g.ELoss
	case PartitionGenerator:
		return g.GLoss
	case PartitionDiscriminator:
		return g.DLoss
	}
	return nil
}

// Params returns the trainable parameters of partition p.
func (g *Graph) Params(p Partition) []*layers.Parameter {
	return g.params[p]
}

// Grads differentiates the partition's loss with respect to each of its
// parameters, in Params order.
func (g *Graph) Grads(p Partition) ([]*tensor.Tensor, error) {
	loss := g.Loss(p)
	if loss == nil {
		return nil, fmt.Errorf("no loss for partition %s", p)
	}
	params := g.params[p]
	grads, err := autograd.Grad(loss, g.session.Vars(params), autograd.GradOptions{})
	if err != nil {
		return nil, fmt.Errorf("gradients for %s: %w", p, err)
	}
	out := make([]*tensor.Tensor, len(grads))
	for i, v := range grads {
		out[i] = v.Value()
	}
	return out, nil
}

// Scalars returns every scalar loss the graph holds, keyed by its log name.
func (g *Graph) Scalars() map[string]float32 {
	out := map[string]float32{}
	add := func(name string, v *autograd.Var) {
		if v != nil {
			out[name] = v.Item()
		}
	}
	add("d_loss", g.DLoss)
	add("g_loss", g.GLoss)
	add("e_loss", g.ELoss)
	add("d_loss_real", g.DLossReal)
	add("d_loss_fake", g.DLossFake)
	add("w_distance", g.WDistance)
	add("gradient_penalty", g.GradientPenalty)
	if g.ReconstructionLoss != nil {
		add("reconstruction_loss", autograd.Mean(g.ReconstructionLoss))
	}
	return out
}

// Build runs every network on the batch and assembles the regime's
// losses. Fresh reparameterization noise and interpolation weights are
// drawn for each build.
func (m *Model) Build(b Batch, opts BuildOptions) (*Graph, error) {
	if err := m.checkBatch(b); err != nil {
		return nil, err
	}
	s := layers.NewSession(opts.Mode, opts.UpdateStats)
	g := &Graph{
		Regime:  m.Regime,
		Mode:    opts.Mode,
		session: s,
		params:  map[Partition][]*layers.Parameter{},
	}
	for _, p := range m.Partitions() {
		g.params[p] = m.Params.Trainable(p.Prefix())
	}

	bld := &builder{m: m, s: s, g: g}
	var buildErr error
	if err := autograd.Try(func() { buildErr = bld.forward(b) }); err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	if buildErr != nil {
		return nil, fmt.Errorf("build graph: %w", buildErr)
	}
	if err := autograd.Try(func() { buildErr = m.Regime.buildLosses(bld) }); err != nil {
		return nil, fmt.Errorf("build losses: %w", err)
	}
	if buildErr != nil {
		return nil, fmt.Errorf("build losses: %w", buildErr)
	}
	return g, nil
}

type builder struct {
	m *Model
	s *layers.Session
	g *Graph
}

func (b *builder) discriminate(x *autograd.Var) Scores {
	prob, logits := b.m.Discriminator.Forward(b.s, x, b.g.Labels)
	return Scores{Prob: prob, Logits: logits}
}

// critic returns the discriminator logits as a function of its input.
func (b *builder) critic(x *autograd.Var) *autograd.Var {
	return b.discriminate(x).Logits
}

func (b *builder) forward(batch Batch) error {
	m, s, g := b.m, b.s, b.g
	g.Inputs = autograd.Constant(batch.Images)
	g.Z = autograd.Constant(batch.Z)
	if m.Config.Conditional() {
		g.Labels = autograd.Constant(batch.Labels)
	}

	if !m.Config.Conditional() {
		g.Mean, g.LogSigmaSq = m.Encoder.Forward(s, g.Inputs)
		eps, err := tensor.RandomNormal(g.Mean.Shape(), 0, 1, m.rng)
		if err != nil {
			return err
		}
		g.Latent = Reparameterize(g.Mean, g.LogSigmaSq, autograd.Constant(eps))
		g.Reconstruction = m.Generator.Forward(s, g.Latent, nil)
	}
	g.Fake = m.Generator.Forward(s, g.Z, g.Labels)

	g.DReal = b.discriminate(g.Inputs)
	if g.Reconstruction != nil {
		g.DRecon = b.discriminate(g.Reconstruction)
		g.ReconstructionLoss = ReconstructionLoss(g.Inputs, g.Reconstruction)
		g.KL = KLDivergence(g.Mean, g.LogSigmaSq)
	}
	g.DFake = b.discriminate(g.Fake)
	return nil
}

func (b *builder) meanReconstruction() *autograd.Var {
	return autograd.Mean(b.g.ReconstructionLoss)
}

func (Classic) buildLosses(b *builder) error {
	g, gamma := b.g, b.m.Config.Gamma
	g.DLossReal = SigmoidLoss(g.DReal.Logits, 1)
	g.DLossFake = SigmoidLoss(g.DFake.Logits, 0)
	g.GLoss = SigmoidLoss(g.DFake.Logits, 1)
	if g.Reconstruction != nil {
		g.DLossFake = autograd.Add(g.DLossFake, SigmoidLoss(g.DRecon.Logits, 0))
		g.GLoss = autograd.Add(
			autograd.Add(g.GLoss, SigmoidLoss(g.DRecon.Logits, 1)),
			autograd.Scale(b.meanReconstruction(), gamma),
		)
		g.ELoss = autograd.Mean(autograd.Add(g.ReconstructionLoss, g.KL))
	}
	g.DLoss = autograd.Add(g.DLossReal, g.DLossFake)
	return nil
}

func (w Wasserstein) buildLosses(b *builder) error {
	if !autograd.GradEnabled() {
		return errors.New("gradient penalty needs gradient recording")
	}
	g, gamma := b.g, b.m.Config.Gamma
	inputs := g.Inputs.Value()
	alpha, err := tensor.RandomUniform([]int{inputs.Dim(0), 1, 1, 1}, 0, 1, b.m.rng)
	if err != nil {
		return err
	}
	fakeMean := autograd.Mean(g.DFake.Logits)
	realMean := autograd.Mean(g.DReal.Logits)

	penalty, err := GradientPenalty(b.critic, inputs, g.Fake.Value(), alpha)
	if err != nil {
		return err
	}
	if g.Reconstruction == nil {
		g.WDistance = autograd.Sub(fakeMean, realMean)
		g.GLoss = autograd.Neg(fakeMean)
	} else {
		reconMean := autograd.Mean(g.DRecon.Logits)
		// Both penalties share alpha.
		reconPenalty, err := GradientPenalty(b.critic, inputs, g.Reconstruction.Value(), alpha)
		if err != nil {
			return err
		}
		penalty = autograd.Add(reconPenalty, penalty)
		g.WDistance = autograd.Add(
			autograd.Sub(autograd.Scale(fakeMean, 0.5), realMean),
			autograd.Scale(reconMean, 0.5),
		)
		g.GLoss = autograd.Add(
			autograd.Scale(autograd.Add(fakeMean, reconMean), -0.5),
			autograd.Scale(b.meanReconstruction(), gamma),
		)
		g.ELoss = autograd.Scale(autograd.Mean(autograd.Add(g.ReconstructionLoss, g.KL)), gamma)
	}
	g.GradientPenalty = penalty
	g.DLoss = autograd.Add(g.WDistance, autograd.Scale(penalty, w.Lambda))
	return nil
}

// Sample runs the generator with moving batch-norm statistics and without
// recording gradients. labels is ignored in unconditional mode.
func (m *Model) Sample(z, labels *tensor.Tensor) (*tensor.Tensor, error) {
	s := layers.NewSession(layers.Inference, false)
	var out *tensor.Tensor
	err := autograd.Try(func() {
		autograd.NoGrad(func() {
			var y *autograd.Var
			if m.Config.Conditional() {
				if labels == nil {
					panic(&autograd.OpError{Op: "sample", Err: errors.New("conditional sampling needs labels")})
				}
				y = autograd.Constant(labels)
			}
			out = m.Generator.Forward(s, autograd.Constant(z), y).Value()
		})
	})
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	return out, nil
}

// Encode returns the latent mean and log variance of x.
func (m *Model) Encode(x *tensor.Tensor) (mean, logSigmaSq *tensor.Tensor, err error) {
	if m.Encoder == nil {
		return nil, nil, errors.New("encode: conditional model has no encoder")
	}
	s := layers.NewSession(layers.Inference, false)
	err = autograd.Try(func() {
		autograd.NoGrad(func() {
			mu, lss := m.Encoder.Forward(s, autograd.Constant(x))
			mean, logSigmaSq = mu.Value(), lss.Value()
		})
	})
	if err != nil {
		return nil, nil, fmt.Errorf("encode: %w", err)
	}
	return mean, logSigmaSq, nil
}

// Reconstruct encodes x, draws a latent with fresh noise and decodes it
// with the inference generator.
func (m *Model) Reconstruct(x *tensor.Tensor) (*tensor.Tensor, error) {
	mean, lss, err := m.Encode(x)
	if err != nil {
		return nil, err
	}
	eps, err := tensor.RandomNormal(mean.Shape, 0, 1, m.rng)
	if err != nil {
		return nil, err
	}
	var latent *tensor.Tensor
	autograd.NoGrad(func() {
		latent = Reparameterize(autograd.Constant(mean), autograd.Constant(lss), autograd.Constant(eps)).Value()
	})
	return m.Sample(latent, nil)
}
