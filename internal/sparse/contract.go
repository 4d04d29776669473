package sparse

import (
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Contract multiplies a batch of sparse tensors against a dense input.
//
// The sparse tensor of batch element b has dense shape size and entries
// (indices[b, n, :], values[b, n]). The trailing dimensions of size must equal
// input.Shape()[1:]; the leading ones form the output:
//
//	out[b, o(n)] += values[b, n] * input[b, in(n)]
//
// Entries that repeat an index accumulate. Coordinates outside [0, size[axis]) are clipped
// to the nearest valid cell. Gradients flow to values and input.
//
// Example (a 2x4 sparse matrix times a batch of vectors):
//
//	out, err := sparse.Contract(indices, values, tensor.Shape{2, 4}, input) // input (b, 4) → out (b, 2)
func Contract[B tensor.Backend](
	indices *tensor.Tensor[int64, B], values *tensor.Tensor[float32, B], size tensor.Shape, input *tensor.Tensor[float32, B],
) (*tensor.Tensor[float32, B], error) {
	const op = "contract"
	is, vs, xs := indices.Shape(), values.Shape(), input.Shape()

	if len(is) != 3 || is[2] != len(size) {
		return nil, newError(ErrShape, op, "indices %v do not address a tensor of size %v", is, size)
	}
	if len(vs) != 2 || vs[0] != is[0] || vs[1] != is[1] {
		return nil, newError(ErrShape, op, "values %v do not match indices %v", vs, is)
	}
	if len(xs) < 1 || xs[0] != is[0] {
		return nil, newError(ErrShape, op, "input %v does not match batch size %d", xs, is[0])
	}
	outRank := len(size) - (len(xs) - 1)
	if outRank < 1 || !size[outRank:].Equal(xs[1:]) {
		return nil, newError(ErrShape, op, "input %v does not match the trailing dimensions of %v", xs, size)
	}
	for _, d := range size {
		if d < 1 {
			return nil, newError(ErrShape, op, "size %v has an empty dimension", size)
		}
	}

	b := input.Backend()
	return tensor.New[float32](b.Contract(indices.Raw(), values.Raw(), input.Raw(), size), b), nil
}
