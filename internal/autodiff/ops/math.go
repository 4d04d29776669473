package ops

import "github.com/born-ml/sparsehyper/internal/tensor"

// ExpOp represents output = exp(x). Backward: grad_x = outputGrad * output.
type ExpOp struct{ base }

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward computes the gradient for exp.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// SigmoidOp represents the sigmoid activation operation: σ(x) = 1 / (1 + exp(-x)).
type SigmoidOp struct{ base }

// NewSigmoidOp creates a new sigmoid operation.
func NewSigmoidOp(x, output *tensor.RawTensor) *SigmoidOp {
	return &SigmoidOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward computes the gradient for sigmoid.
//
// dσ/dx = σ(x) * (1 - σ(x)), computed from the stored output.
func (op *SigmoidOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	oneMinus := backend.AddScalar(backend.MulScalar(op.output, -1), 1)
	derivative := backend.Mul(op.output, oneMinus)
	return []*tensor.RawTensor{backend.Mul(outputGrad, derivative)}
}

// SoftplusOp represents output = log(1 + exp(x)).
// Backward: grad_x = outputGrad * σ(x).
type SoftplusOp struct{ base }

// NewSoftplusOp creates a new SoftplusOp.
func NewSoftplusOp(x, output *tensor.RawTensor) *SoftplusOp {
	return &SoftplusOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward computes the gradient for softplus.
func (op *SoftplusOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, backend.Sigmoid(op.inputs[0]))}
}

// ClampOp represents output = min(max(x, lo), hi).
// The gradient passes where lo < x < hi and is zero elsewhere.
type ClampOp struct {
	base
	lo, hi float32
}

// NewClampOp creates a new ClampOp.
func NewClampOp(x, output *tensor.RawTensor, lo, hi float32) *ClampOp {
	return &ClampOp{base{[]*tensor.RawTensor{x}, output}, lo, hi}
}

// Backward computes the gradient for clamp.
func (op *ClampOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0]
	mask := filled(x.Shape(), 0, backend.Device())
	m := mask.AsFloat32()
	for i, v := range x.AsFloat32() {
		if v > op.lo && v < op.hi {
			m[i] = 1
		}
	}
	return []*tensor.RawTensor{backend.Mul(outputGrad, mask)}
}
