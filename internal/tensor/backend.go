package tensor

// Backend defines the operations a compute backend must provide to run a sparse layer.
//
// Implementations:
//   - backend/cpu: pure Go kernels with batch-level parallelism
//
// Decorator backends:
//   - autodiff: records every operation on a gradient tape (wraps any Backend)
//
// Every method returns a new RawTensor and leaves its inputs untouched.
type Backend interface {
	// Element-wise binary operations with NumPy-style broadcasting.
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Scalar operations.
	MulScalar(x *RawTensor, scalar float32) *RawTensor
	AddScalar(x *RawTensor, scalar float32) *RawTensor

	// Element-wise math.
	Exp(x *RawTensor) *RawTensor
	Sigmoid(x *RawTensor) *RawTensor
	Softplus(x *RawTensor) *RawTensor
	Clamp(x *RawTensor, lo, hi float32) *RawTensor

	// Reductions.
	Sum(x *RawTensor) *RawTensor                           // total sum (scalar result)
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor // sum along dimension

	// Shape manipulation.
	Reshape(x *RawTensor, shape Shape) *RawTensor
	Expand(x *RawTensor, shape Shape) *RawTensor // broadcast to shape
	Narrow(x *RawTensor, dim, start, length int) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Densities evaluates exp(-0.5 * sum_r (p-m)^2 / (eps+sigma)) for every
	// (point, mean) pair of a context.
	//   points: [b, c, i, r], means/sigmas: [b, c, k, r] -> [b, c, i, k]
	Densities(points, means, sigmas *RawTensor, eps float32) *RawTensor
	// DensitiesBackward returns the gradients for means and sigmas.
	DensitiesBackward(points, means, sigmas, output, grad *RawTensor, eps float32) (gradMeans, gradSigmas *RawTensor)

	// NormalizeDim divides x by its sum along dim. Slices whose sum is zero
	// produce zeros instead of NaN.
	NormalizeDim(x *RawTensor, dim int) *RawTensor
	// NormalizeDimBackward returns the gradient of NormalizeDim with respect to x.
	NormalizeDimBackward(x, output, grad *RawTensor, dim int) *RawTensor

	// Contract multiplies the sparse tensor (indices [b, n, R] int64, values [b, n]) of
	// dense shape size against input [b, size[len(out):]...] and returns [b, out...],
	// where out is size minus the input dimensions.
	Contract(indices, values, input *RawTensor, size Shape) *RawTensor
	// ContractBackward returns the gradients for values and input.
	ContractBackward(indices, values, input, grad *RawTensor, size Shape) (gradValues, gradInput *RawTensor)

	// Metadata.
	Name() string   // Backend name (e.g., "CPU")
	Device() Device // Device type
}
