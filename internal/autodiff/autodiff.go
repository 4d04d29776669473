// Package autodiff implements automatic differentiation using the decorator pattern.
//
// AutodiffBackend wraps any Backend implementation and adds gradient tracking
// through a GradientTape.
//
// Architecture:
//   - Decorator pattern: AutodiffBackend[B] wraps any Backend implementation
//   - GradientTape: Records operations during forward pass
//   - Operation interface: Each op implements its backward pass
//   - Reverse-mode AD: Computes gradients using the chain rule
//
// Usage:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	x, _ := tensor.FromSlice([]float32{2.0}, tensor.Shape{1}, backend)
//	y := x.Mul(x) // y = x²
//	grads := autodiff.Backward(y, backend)
//	fmt.Println(grads[x.Raw()].AsFloat32()) // dy/dx = 2x = 4.0
package autodiff

import (
	"github.com/born-ml/sparsehyper/internal/autodiff/ops"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// AutodiffBackend wraps a Backend and adds automatic differentiation.
// It implements the tensor.Backend interface and records operations in a GradientTape.
type AutodiffBackend[B tensor.Backend] struct {
	inner B             // Wrapped backend
	tape  *GradientTape // Records operations for backpropagation
}

// New creates a new AutodiffBackend wrapping the given backend.
func New[B tensor.Backend](backend B) *AutodiffBackend[B] {
	return &AutodiffBackend[B]{
		inner: backend,
		tape:  NewGradientTape(),
	}
}

// Tape returns the gradient tape for manual control.
// Useful for:
//   - Starting/stopping recording
//   - Clearing tape between iterations
//   - Inspecting recorded operations
func (b *AutodiffBackend[B]) Tape() *GradientTape {
	return b.tape
}

// Inner returns the wrapped backend for direct access.
func (b *AutodiffBackend[B]) Inner() B {
	return b.inner
}

// Name returns the backend name.
func (b *AutodiffBackend[B]) Name() string {
	return "Autodiff(" + b.inner.Name() + ")"
}

// Device returns the compute device.
func (b *AutodiffBackend[B]) Device() tensor.Device {
	return b.inner.Device()
}

// record adds op to the tape when recording and returns the op output.
func (b *AutodiffBackend[B]) record(op ops.Operation) *tensor.RawTensor {
	b.tape.Record(op)
	return op.Output()
}

// Add performs element-wise addition and records the operation.
func (b *AutodiffBackend[B]) Add(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewAddOp(a, c, b.inner.Add(a, c)))
}

// Sub performs element-wise subtraction and records the operation.
func (b *AutodiffBackend[B]) Sub(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewSubOp(a, c, b.inner.Sub(a, c)))
}

// Mul performs element-wise multiplication and records the operation.
func (b *AutodiffBackend[B]) Mul(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewMulOp(a, c, b.inner.Mul(a, c)))
}

// Div performs element-wise division and records the operation.
func (b *AutodiffBackend[B]) Div(a, c *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewDivOp(a, c, b.inner.Div(a, c)))
}

// MulScalar multiplies by a scalar and records the operation.
func (b *AutodiffBackend[B]) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return b.record(ops.NewMulScalarOp(x, b.inner.MulScalar(x, scalar), scalar))
}

// AddScalar adds a scalar and records the operation.
func (b *AutodiffBackend[B]) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return b.record(ops.NewAddScalarOp(x, b.inner.AddScalar(x, scalar)))
}

// Exp computes exp(x) and records the operation.
func (b *AutodiffBackend[B]) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewExpOp(x, b.inner.Exp(x)))
}

// Sigmoid computes σ(x) and records the operation.
func (b *AutodiffBackend[B]) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewSigmoidOp(x, b.inner.Sigmoid(x)))
}

// Softplus computes log(1 + exp(x)) and records the operation.
func (b *AutodiffBackend[B]) Softplus(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewSoftplusOp(x, b.inner.Softplus(x)))
}

// Clamp limits x to [lo, hi] and records the operation.
func (b *AutodiffBackend[B]) Clamp(x *tensor.RawTensor, lo, hi float32) *tensor.RawTensor {
	return b.record(ops.NewClampOp(x, b.inner.Clamp(x, lo, hi), lo, hi))
}

// Sum computes the total sum and records the operation.
func (b *AutodiffBackend[B]) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	return b.record(ops.NewSumOp(x, b.inner.Sum(x)))
}

// SumDim sums along dim and records the operation.
func (b *AutodiffBackend[B]) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return b.record(ops.NewSumDimOp(x, b.inner.SumDim(x, dim, keepDim), dim, keepDim))
}

// Reshape changes the shape and records the operation.
func (b *AutodiffBackend[B]) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return b.record(ops.NewReshapeOp(x, b.inner.Reshape(x, shape)))
}

// Expand broadcasts x to shape and records the operation.
func (b *AutodiffBackend[B]) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	return b.record(ops.NewExpandOp(x, b.inner.Expand(x, shape)))
}

// Narrow slices x along dim and records the operation.
func (b *AutodiffBackend[B]) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	return b.record(ops.NewNarrowOp(x, b.inner.Narrow(x, dim, start, length), dim, start))
}

// Cat concatenates tensors along dim and records the operation.
func (b *AutodiffBackend[B]) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.record(ops.NewCatOp(tensors, b.inner.Cat(tensors, dim), dim))
}

// Densities evaluates point densities and records the operation.
func (b *AutodiffBackend[B]) Densities(points, means, sigmas *tensor.RawTensor, eps float32) *tensor.RawTensor {
	return b.record(ops.NewDensitiesOp(points, means, sigmas, b.inner.Densities(points, means, sigmas, eps), eps))
}

// DensitiesBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) DensitiesBackward(
	points, means, sigmas, output, grad *tensor.RawTensor, eps float32,
) (gradMeans, gradSigmas *tensor.RawTensor) {
	return b.inner.DensitiesBackward(points, means, sigmas, output, grad, eps)
}

// NormalizeDim normalises along dim and records the operation.
func (b *AutodiffBackend[B]) NormalizeDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.record(ops.NewNormalizeOp(x, b.inner.NormalizeDim(x, dim), dim))
}

// NormalizeDimBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) NormalizeDimBackward(x, output, grad *tensor.RawTensor, dim int) *tensor.RawTensor {
	return b.inner.NormalizeDimBackward(x, output, grad, dim)
}

// Contract multiplies sparse tensors with a dense input and records the operation.
func (b *AutodiffBackend[B]) Contract(indices, values, input *tensor.RawTensor, size tensor.Shape) *tensor.RawTensor {
	return b.record(ops.NewContractOp(indices, values, input, b.inner.Contract(indices, values, input, size), size))
}

// ContractBackward delegates to the wrapped backend without recording.
func (b *AutodiffBackend[B]) ContractBackward(
	indices, values, input, grad *tensor.RawTensor, size tensor.Shape,
) (gradValues, gradInput *tensor.RawTensor) {
	return b.inner.ContractBackward(indices, values, input, grad, size)
}
