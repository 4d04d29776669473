package ops

import "github.com/born-ml/sparsehyper/internal/tensor"

// ReshapeOp represents a reshape. Backward reshapes the gradient to the input shape.
type ReshapeOp struct{ base }

// NewReshapeOp creates a new ReshapeOp.
func NewReshapeOp(x, output *tensor.RawTensor) *ReshapeOp {
	return &ReshapeOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward computes the gradient for reshape.
func (op *ReshapeOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Reshape(outputGrad, op.inputs[0].Shape())}
}

// ExpandOp represents broadcasting x to a larger shape.
// Backward sums the gradient over the broadcast dimensions.
type ExpandOp struct{ base }

// NewExpandOp creates a new ExpandOp.
func NewExpandOp(x, output *tensor.RawTensor) *ExpandOp {
	return &ExpandOp{base{[]*tensor.RawTensor{x}, output}}
}

// Backward computes the gradient for expand.
func (op *ExpandOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{reduceBroadcast(outputGrad, op.inputs[0].Shape(), backend)}
}

// NarrowOp represents x[..., start:start+length, ...] along dim.
// Backward scatters the gradient into a zero tensor of the input shape.
type NarrowOp struct {
	base
	dim, start int
}

// NewNarrowOp creates a new NarrowOp.
func NewNarrowOp(x, output *tensor.RawTensor, dim, start int) *NarrowOp {
	return &NarrowOp{base{[]*tensor.RawTensor{x}, output}, x.Shape().NormalizeDim(dim), start}
}

// Backward computes the gradient for narrow.
func (op *NarrowOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	inShape := op.inputs[0].Shape()
	length := outputGrad.Shape()[op.dim]

	before := inShape.Clone()
	before[op.dim] = op.start
	after := inShape.Clone()
	after[op.dim] = inShape[op.dim] - op.start - length

	parts := []*tensor.RawTensor{
		filled(before, 0, backend.Device()),
		outputGrad,
		filled(after, 0, backend.Device()),
	}
	return []*tensor.RawTensor{backend.Cat(parts, op.dim)}
}

// CatOp represents concatenation along dim.
// Backward narrows the gradient back into one piece per input.
type CatOp struct {
	base
	dim int
}

// NewCatOp creates a new CatOp.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{base{inputs, output}, output.Shape().NormalizeDim(dim)}
}

// Backward computes the gradient for cat.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.inputs))
	offset := 0
	for i, in := range op.inputs {
		size := in.Shape()[op.dim]
		if in.DType() == tensor.Float32 {
			grads[i] = backend.Narrow(outputGrad, op.dim, offset, size)
		}
		offset += size
	}
	return grads
}
