package model

import (
	"github.com/tsawler/go-vaegan/autograd"
	"github.com/tsawler/go-vaegan/tensor"
)

// normEpsilon keeps the gradient of the slope norm finite at zero.
const normEpsilon = 1e-12

// Reparameterize returns mean + sqrt(exp(logSigmaSq)) * eps.
func Reparameterize(mean, logSigmaSq, eps *autograd.Var) *autograd.Var {
	return autograd.Add(mean, autograd.Mul(autograd.Sqrt(autograd.Exp(logSigmaSq)), eps))
}

// KLDivergence returns the per-sample divergence of N(mean, exp(logSigmaSq))
// from the standard normal, shaped [N].
func KLDivergence(mean, logSigmaSq *autograd.Var) *autograd.Var {
	inner := autograd.Sub(
		autograd.Sub(autograd.AddScalar(logSigmaSq, 1), autograd.Square(mean)),
		autograd.Exp(logSigmaSq),
	)
	kl := autograd.Scale(autograd.SumAxes(autograd.Flatten(inner), 1), -0.5)
	return autograd.Reshape(kl, []int{-1})
}

// ReconstructionLoss returns the per-sample sum of squared differences
// between x and its reconstruction, shaped [N].
func ReconstructionLoss(x, reconstruction *autograd.Var) *autograd.Var {
	diff := autograd.Flatten(autograd.Sub(x, reconstruction))
	return autograd.Reshape(autograd.SumAxes(autograd.Square(diff), 1), []int{-1})
}

// SigmoidLoss returns the mean cross entropy between sigmoid(logits) and a
// constant target.
func SigmoidLoss(logits *autograd.Var, target float32) *autograd.Var {
	labels := autograd.Constant(tensor.FullLike(logits.Value(), target))
	return autograd.Mean(autograd.SigmoidCrossEntropyWithLogits(logits, labels))
}

// Interpolate returns a + alpha*(b - a).
func Interpolate(a, b, alpha *tensor.Tensor) (*tensor.Tensor, error) {
	diff, err := tensor.Sub(b, a)
	if err != nil {
		return nil, err
	}
	step, err := tensor.Mul(alpha, diff)
	if err != nil {
		return nil, err
	}
	return tensor.Add(a, step)
}

// GradientPenalty returns mean((||grad critic(x̂)|| - 1)^2) over the
// points x̂ = real + alpha*(fake - real). The interpolates are a fresh
// leaf, so the penalty reaches the critic's parameters but not the
// networks that produced fake.
func GradientPenalty(critic func(*autograd.Var) *autograd.Var, real, fake, alpha *tensor.Tensor) (*autograd.Var, error) {
	points, err := Interpolate(real, fake, alpha)
	if err != nil {
		return nil, err
	}
	xhat := autograd.Variable(points, "interpolates")
	grads, err := autograd.Grad(critic(xhat), []*autograd.Var{xhat}, autograd.GradOptions{CreateGraph: true})
	if err != nil {
		return nil, err
	}
	slopes := autograd.RowNorm(grads[0], normEpsilon)
	return autograd.Mean(autograd.Square(autograd.AddScalar(slopes, -1))), nil
}
