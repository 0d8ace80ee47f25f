package model

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/layers"
	"github.com/tsawler/go-vaegan/tensor"
)

func smallConfig(conditional bool) Config {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.OutputHeight, cfg.OutputWidth = 16, 16
	cfg.Channels = 1
	cfg.ZDim = 4
	cfg.GFDim, cfg.DFDim = 2, 2
	cfg.GFCDim, cfg.DFCDim = 8, 8
	cfg.HiddenDim = 6
	if conditional {
		cfg.YDim = 3
	}
	return cfg
}

func smallBatch(t *testing.T, m *Model) Batch {
	t.Helper()
	cfg := m.Config
	images, err := tensor.RandomUniform(cfg.ImageShape(), -1, 1, m.Params.Rand())
	require.NoError(t, err)
	z, err := m.Noise(cfg.BatchSize)
	require.NoError(t, err)
	b := Batch{Images: images, Z: z}
	if cfg.Conditional() {
		labels, err := tensor.Zeros([]int{cfg.BatchSize, cfg.YDim})
		require.NoError(t, err)
		for i := 0; i < cfg.BatchSize; i++ {
			labels.Data[i*cfg.YDim+i%cfg.YDim] = 1
		}
		b.Labels = labels
	}
	return b
}

func TestStageSizes(t *testing.T) {
	tests := []struct {
		size int
		want [5]int
	}{
		{64, [5]int{64, 32, 16, 8, 4}},
		{28, [5]int{28, 14, 7, 4, 2}},
		{108, [5]int{108, 54, 27, 14, 7}},
		{33, [5]int{33, 17, 9, 5, 3}},
	}
	for _, tt := range tests {
		if got := StageSizes(tt.size); got != tt.want {
			t.Errorf("StageSizes(%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
}

func TestGeneratorRoundTripsOutputSize(t *testing.T) {
	for _, size := range [][2]int{{16, 16}, {28, 28}, {33, 20}} {
		cfg := smallConfig(false)
		cfg.OutputHeight, cfg.OutputWidth = size[0], size[1]
		m, err := New(cfg, Classic{})
		require.NoError(t, err)

		z, err := m.Noise(cfg.BatchSize)
		require.NoError(t, err)
		out, err := m.Sample(z, nil)
		require.NoError(t, err)
		if diff := cmp.Diff(cfg.ImageShape(), out.Shape); diff != "" {
			t.Errorf("size %v: sample shape mismatch (-want +got):\n%s", size, diff)
		}
		for _, v := range out.Data {
			if v < -1 || v > 1 {
				t.Fatalf("size %v: tanh output %v outside [-1,1]", size, v)
			}
		}
	}
}

func TestConditionalGeneratorShape(t *testing.T) {
	m, err := New(smallConfig(true), Classic{})
	require.NoError(t, err)
	b := smallBatch(t, m)
	out, err := m.Sample(b.Z, b.Labels)
	require.NoError(t, err)
	if diff := cmp.Diff(m.Config.ImageShape(), out.Shape); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	for _, v := range out.Data {
		if v < 0 || v > 1 {
			t.Fatalf("sigmoid output %v outside [0,1]", v)
		}
	}

	_, err = m.Sample(b.Z, nil)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Channels = 2
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ZDim = 0
	require.Error(t, bad.Validate())

	bad = smallConfig(true)
	bad.OutputHeight = 18
	require.Error(t, bad.Validate())

	ok := smallConfig(true)
	ok.OutputHeight, ok.OutputWidth = 28, 28
	require.NoError(t, ok.Validate())
}

func TestKLDivergenceZeroAtPrior(t *testing.T) {
	zeros := autograd.Constant(tensor.MustNew([]int{3, 5}, make([]float32, 15)))
	kl := KLDivergence(zeros, zeros)
	if diff := cmp.Diff([]int{3}, kl.Shape()); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	for i, v := range kl.Value().Data {
		if v != 0 {
			t.Errorf("KL[%d] = %v, want 0", i, v)
		}
	}

	mean := autograd.Constant(tensor.MustNew([]int{1, 2}, []float32{1, 0}))
	lss := autograd.Constant(tensor.MustNew([]int{1, 2}, []float32{0, 1}))
	// -0.5 * ((1+0-1-1) + (1+1-0-e))
	want := -0.5 * (-1 + 2 - math.E)
	require.InDelta(t, want, float64(KLDivergence(mean, lss).Value().Data[0]), 1e-5)
}

func TestReconstructionLoss(t *testing.T) {
	x := autograd.Constant(tensor.MustNew([]int{2, 1, 2, 1}, []float32{1, 2, 3, 4}))
	same := ReconstructionLoss(x, x)
	for i, v := range same.Value().Data {
		if v != 0 {
			t.Errorf("identical sample %d: loss %v, want 0", i, v)
		}
	}

	y := autograd.Constant(tensor.MustNew([]int{2, 1, 2, 1}, []float32{1, 2, 5, 4}))
	got := ReconstructionLoss(x, y).Value().Data
	if diff := cmp.Diff([]float32{0, 4}, got); diff != "" {
		t.Errorf("loss mismatch (-want +got):\n%s", diff)
	}
}

func TestReparameterizeDeterministic(t *testing.T) {
	mean := autograd.Constant(tensor.MustNew([]int{1, 3}, []float32{0, 1, -1}))
	lss := autograd.Constant(tensor.MustNew([]int{1, 3}, []float32{0, float32(math.Log(4)), 0}))
	eps := autograd.Constant(tensor.MustNew([]int{1, 3}, []float32{0.5, 0.5, -2}))

	a := Reparameterize(mean, lss, eps).Value()
	b := Reparameterize(mean, lss, eps).Value()
	if diff := cmp.Diff(a.Data, b.Data); diff != "" {
		t.Errorf("same eps gave different latents (-a +b):\n%s", diff)
	}
	want := tensor.MustNew([]int{1, 3}, []float32{0.5, 2, -3})
	if !tensor.AllClose(want, a, 1e-5, 1e-5) {
		t.Errorf("Reparameterize = %v, want %v", a.Data, want.Data)
	}
}

func TestPartitionsAreDisjoint(t *testing.T) {
	for _, regime := range []Regime{Classic{}, DefaultWasserstein()} {
		for _, conditional := range []bool{false, true} {
			m, err := New(smallConfig(conditional), regime)
			require.NoError(t, err)

			owner := map[string]Partition{}
			for _, p := range m.Partitions() {
				for _, param := range m.Params.Trainable(p.Prefix()) {
					if prev, ok := owner[param.Name]; ok {
						t.Errorf("%s: %q in both %s and %s", regime.Name(), param.Name, prev, p)
					}
					owner[param.Name] = p
				}
			}
			for _, param := range m.Params.All() {
				if _, ok := owner[param.Name]; param.Trainable && !ok {
					t.Errorf("%s: %q belongs to no partition", regime.Name(), param.Name)
				}
			}
			if conditional {
				require.Empty(t, m.Params.Trainable("e_"))
			}
		}
	}
}

func TestDiscriminatorBatchNormByRegime(t *testing.T) {
	classic, err := New(smallConfig(false), Classic{})
	require.NoError(t, err)
	_, ok := classic.Params.Get("d_bn3/gamma")
	require.True(t, ok)

	wgan, err := New(smallConfig(false), DefaultWasserstein())
	require.NoError(t, err)
	for _, p := range wgan.Params.All() {
		if strings.HasPrefix(p.Name, "d_bn") {
			t.Errorf("critic has batch-norm parameter %q", p.Name)
		}
	}
}

func TestSchedules(t *testing.T) {
	names := func(ps []Partition) string {
		var b strings.Builder
		for _, p := range ps {
			b.WriteString(p.String())
		}
		return b.String()
	}
	w := Wasserstein{CriticSteps: 3, Lambda: 10, AdamBeta2: 0.9}
	tests := []struct {
		regime      Regime
		conditional bool
		want        string
	}{
		{Classic{}, false, "EGGD"},
		{Classic{}, true, "DGG"},
		{w, false, "DDDEG"},
		{w, true, "DDDG"},
	}
	for _, tt := range tests {
		if got := names(tt.regime.Schedule(tt.conditional)); got != tt.want {
			t.Errorf("%s conditional=%v: schedule %s, want %s", tt.regime.Name(), tt.conditional, got, tt.want)
		}
	}
	if (Classic{}).Beta2() != 0.999 || w.Beta2() != 0.9 {
		t.Error("unexpected beta2")
	}
}

func TestWassersteinValidate(t *testing.T) {
	require.NoError(t, DefaultWasserstein().Validate())
	require.Error(t, Wasserstein{CriticSteps: 0, Lambda: 10, AdamBeta2: 0.9}.Validate())
	require.Error(t, Wasserstein{CriticSteps: 1, Lambda: -1, AdamBeta2: 0.9}.Validate())
	_, err := New(smallConfig(false), nil)
	require.Error(t, err)
}

func linearCritic(t *testing.T, w []float32) func(*autograd.Var) *autograd.Var {
	t.Helper()
	weights := autograd.Variable(tensor.MustNew([]int{len(w), 1}, w), "d_w")
	return func(x *autograd.Var) *autograd.Var {
		return autograd.Reshape(autograd.MatMul(autograd.Flatten(x), weights), []int{-1})
	}
}

func TestGradientPenaltyUnitNormCritic(t *testing.T) {
	inputs := tensor.MustNew([]int{2, 1, 2, 1}, []float32{0, 1, 2, 3})
	fake := tensor.MustNew([]int{2, 1, 2, 1}, []float32{4, 5, 6, 7})
	alpha := tensor.MustNew([]int{2, 1, 1, 1}, []float32{0.25, 0.75})

	gp, err := GradientPenalty(linearCritic(t, []float32{0.6, 0.8}), inputs, fake, alpha)
	require.NoError(t, err)
	require.InDelta(t, 0, gp.Item(), 1e-6)

	// Gradient norm 2 everywhere gives (2-1)^2.
	gp, err = GradientPenalty(linearCritic(t, []float32{1.2, 1.6}), inputs, fake, alpha)
	require.NoError(t, err)
	require.InDelta(t, 1, gp.Item(), 1e-5)
}

func TestGradientPenaltyNonNegative(t *testing.T) {
	m, err := New(smallConfig(false), DefaultWasserstein())
	require.NoError(t, err)
	g, err := m.Build(smallBatch(t, m), BuildOptions{Mode: layers.Train, UpdateStats: true})
	require.NoError(t, err)
	if g.GradientPenalty.Item() < 0 {
		t.Errorf("gradient penalty %v < 0", g.GradientPenalty.Item())
	}
	// Removing the penalties leaves the Wasserstein distance.
	lambda := DefaultWasserstein().Lambda
	require.InDelta(t, g.DLoss.Item(), g.WDistance.Item()+lambda*g.GradientPenalty.Item(), 1e-4)
}

func TestGradientPenaltyReachesCritic(t *testing.T) {
	w := []float32{1.2, 1.6}
	weights := autograd.Variable(tensor.MustNew([]int{2, 1}, w), "d_w")
	critic := func(x *autograd.Var) *autograd.Var {
		return autograd.Reshape(autograd.MatMul(autograd.Flatten(x), weights), []int{-1})
	}
	inputs := tensor.MustNew([]int{1, 1, 2, 1}, []float32{0, 1})
	fake := tensor.MustNew([]int{1, 1, 2, 1}, []float32{1, 0})
	alpha := tensor.MustNew([]int{1, 1, 1, 1}, []float32{0.5})

	gp, err := GradientPenalty(critic, inputs, fake, alpha)
	require.NoError(t, err)
	grads, err := autograd.Grad(gp, []*autograd.Var{weights}, autograd.GradOptions{})
	require.NoError(t, err)
	// d/dw (||w|| - 1)^2 = 2(||w|| - 1) w/||w|| = w when ||w|| = 2.
	want := tensor.MustNew([]int{2, 1}, []float32{1.2, 1.6})
	if !tensor.AllClose(want, grads[0].Value(), 1e-4, 1e-4) {
		t.Errorf("penalty gradient = %v, want %v", grads[0].Value().Data, want.Data)
	}
}

func TestBuildClassicUnconditional(t *testing.T) {
	m, err := New(smallConfig(false), Classic{})
	require.NoError(t, err)
	b := smallBatch(t, m)

	before := m.Params.Snapshot()
	g, err := m.Build(b, BuildOptions{Mode: layers.Train, UpdateStats: true})
	require.NoError(t, err)

	scalars := g.Scalars()
	for _, name := range []string{"d_loss", "g_loss", "e_loss", "d_loss_real", "d_loss_fake", "reconstruction_loss"} {
		v, ok := scalars[name]
		if !ok {
			t.Errorf("missing scalar %s", name)
			continue
		}
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			t.Errorf("%s = %v", name, v)
		}
	}
	require.InDelta(t, scalars["d_loss"], scalars["d_loss_real"]+scalars["d_loss_fake"], 1e-5)
	if _, ok := scalars["w_distance"]; ok {
		t.Error("classic graph has a Wasserstein distance")
	}

	for _, p := range m.Partitions() {
		grads, err := g.Grads(p)
		require.NoError(t, err)
		params := g.Params(p)
		require.Len(t, grads, len(params))
		for i, gr := range grads {
			if !tensor.ShapesEqual(gr.Shape, params[i].Value.Shape) {
				t.Errorf("%s: gradient shape %v for %s %v", p, gr.Shape, params[i].Name, params[i].Value.Shape)
			}
			if !gr.IsFinite() {
				t.Errorf("%s: non-finite gradient for %s", p, params[i].Name)
			}
		}
	}

	// Building updates the moving statistics but not the trainable values.
	after := m.Params.Snapshot()
	mm := "g_bn0/moving_mean"
	if cmp.Equal(before[mm].Data, after[mm].Data) {
		t.Errorf("%s unchanged after a training build", mm)
	}
	gw := "g_h0_lin/Matrix"
	if diff := cmp.Diff(before[gw].Data, after[gw].Data); diff != "" {
		t.Errorf("%s changed during build", gw)
	}
}

func TestBuildConditionalRegimes(t *testing.T) {
	for _, regime := range []Regime{Classic{}, DefaultWasserstein()} {
		m, err := New(smallConfig(true), regime)
		require.NoError(t, err)
		g, err := m.Build(smallBatch(t, m), BuildOptions{Mode: layers.Train, UpdateStats: true})
		require.NoError(t, err)
		require.Nil(t, g.ELoss)
		require.Nil(t, g.Reconstruction)

		_, err = g.Grads(PartitionEncoder)
		require.Error(t, err)
		for _, p := range m.Partitions() {
			grads, err := g.Grads(p)
			require.NoError(t, err)
			for _, gr := range grads {
				require.True(t, gr.IsFinite(), "%s %s gradient not finite", regime.Name(), p)
			}
		}
	}
}

func TestWassersteinLosses(t *testing.T) {
	m, err := New(smallConfig(false), DefaultWasserstein())
	require.NoError(t, err)
	g, err := m.Build(smallBatch(t, m), BuildOptions{Mode: layers.Train})
	require.NoError(t, err)
	require.Nil(t, g.DFake.Prob)
	if diff := cmp.Diff([]int{2}, g.DFake.Logits.Shape()); diff != "" {
		t.Errorf("critic output shape (-want +got):\n%s", diff)
	}

	fake := autograd.Mean(g.DFake.Logits).Item()
	recon := autograd.Mean(g.DRecon.Logits).Item()
	realMean := autograd.Mean(g.DReal.Logits).Item()
	require.InDelta(t, 0.5*fake-realMean+0.5*recon, g.WDistance.Item(), 1e-5)
	rec := autograd.Mean(g.ReconstructionLoss).Item()
	require.InDelta(t, -0.5*fake-0.5*recon+rec, g.GLoss.Item(), 1e-4)

	grads, err := g.Grads(PartitionDiscriminator)
	require.NoError(t, err)
	nonzero := false
	for _, gr := range grads {
		require.True(t, gr.IsFinite())
		for _, v := range gr.Data {
			if v != 0 {
				nonzero = true
			}
		}
	}
	require.True(t, nonzero, "critic gradients are all zero")
}

func TestBuildRejectsBadShapes(t *testing.T) {
	m, err := New(smallConfig(false), Classic{})
	require.NoError(t, err)
	b := smallBatch(t, m)
	b.Z = tensor.MustNew([]int{2, 5}, make([]float32, 10))
	_, err = m.Build(b, BuildOptions{})
	require.True(t, errors.Is(err, autograd.ErrShape), "got %v", err)

	b = smallBatch(t, m)
	b.Images = tensor.MustNew([]int{2, 8, 8, 1}, make([]float32, 128))
	_, err = m.Build(b, BuildOptions{})
	require.True(t, errors.Is(err, autograd.ErrShape), "got %v", err)
}

func TestInferenceDoesNotUpdateStats(t *testing.T) {
	m, err := New(smallConfig(false), Classic{})
	require.NoError(t, err)
	before := m.Params.Snapshot()

	b := smallBatch(t, m)
	_, err = m.Sample(b.Z, nil)
	require.NoError(t, err)
	recon, err := m.Reconstruct(b.Images)
	require.NoError(t, err)
	require.Equal(t, m.Config.ImageShape(), recon.Shape)

	after := m.Params.Snapshot()
	for name, v := range before {
		if diff := cmp.Diff(v.Data, after[name].Data); diff != "" {
			t.Errorf("%s changed during inference", name)
		}
	}
}
