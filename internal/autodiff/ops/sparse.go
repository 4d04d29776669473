package ops

import "github.com/born-ml/sparsehyper/internal/tensor"

// DensitiesOp records the Gaussian density evaluation of integer points under
// continuous means and sigmas.
//
// Inputs: [points, means, sigmas]. Points are detached samples and receive no gradient.
type DensitiesOp struct {
	base
	eps float32
}

// NewDensitiesOp creates a new DensitiesOp.
func NewDensitiesOp(points, means, sigmas, output *tensor.RawTensor, eps float32) *DensitiesOp {
	return &DensitiesOp{base{[]*tensor.RawTensor{points, means, sigmas}, output}, eps}
}

// Backward computes the gradients for means and sigmas with the fused backend kernel.
func (op *DensitiesOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	points, means, sigmas := op.inputs[0], op.inputs[1], op.inputs[2]
	gradMeans, gradSigmas := backend.DensitiesBackward(points, means, sigmas, op.output, outputGrad, op.eps)
	return []*tensor.RawTensor{nil, gradMeans, gradSigmas}
}

// NormalizeOp records x / sum(x, dim) with a guarded (zero) denominator.
type NormalizeOp struct {
	base
	dim int
}

// NewNormalizeOp creates a new NormalizeOp.
func NewNormalizeOp(x, output *tensor.RawTensor, dim int) *NormalizeOp {
	return &NormalizeOp{base{[]*tensor.RawTensor{x}, output}, dim}
}

// Backward computes the gradient for the normalisation.
func (op *NormalizeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.NormalizeDimBackward(op.inputs[0], op.output, outputGrad, op.dim)}
}

// ContractOp records the product of a batch of sparse tensors with a dense input.
//
// Inputs: [indices, values, input]. Indices are integers and receive no gradient.
type ContractOp struct {
	base
	size tensor.Shape
}

// NewContractOp creates a new ContractOp.
func NewContractOp(indices, values, input, output *tensor.RawTensor, size tensor.Shape) *ContractOp {
	return &ContractOp{base{[]*tensor.RawTensor{indices, values, input}, output}, size.Clone()}
}

// Backward computes the gradients for values and input.
func (op *ContractOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	indices, values, input := op.inputs[0], op.inputs[1], op.inputs[2]
	gradValues, gradInput := backend.ContractBackward(indices, values, input, outputGrad, op.size)
	return []*tensor.RawTensor{nil, gradValues, gradInput}
}
