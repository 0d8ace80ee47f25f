package autograd

// SigmoidCrossEntropyWithLogits returns the elementwise binary cross
// entropy between sigmoid(logits) and labels, computed as
// max(x, 0) - x*z + log(1 + exp(-|x|)).
func SigmoidCrossEntropyWithLogits(logits, labels *Var) *Var {
	return Add(
		Sub(ReLU(logits), Mul(logits, labels)),
		Log(AddScalar(Exp(Neg(Abs(logits))), 1)),
	)
}

// RowNorm returns the L2 norm of each sample of x over all non-leading
// axes, shaped [N]. eps is added under the square root.
func RowNorm(x *Var, eps float32) *Var {
	flat := Flatten(x)
	sq := SumAxes(Square(flat), 1)
	return Reshape(Sqrt(AddScalar(sq, eps)), []int{x.Shape()[0]})
}
