package cpu

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/parallel"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// contraction holds the geometry shared by the forward and backward contraction kernels.
type contraction struct {
	batch, entries, rank int
	outRank              int
	size                 tensor.Shape
	outSize, inSize      int
	outStrides           []int
	inStrides            []int
}

func newContraction(op string, indices, values, input *tensor.RawTensor, size tensor.Shape) contraction {
	if indices.DType() != tensor.Int64 {
		panic(fmt.Sprintf("%s: indices must be int64, got %s", op, indices.DType()))
	}
	requireFloat32(op, values, input)

	is, vs, xs := indices.Shape(), values.Shape(), input.Shape()
	if len(is) != 3 || is[2] != len(size) {
		panic(fmt.Sprintf("%s: indices %v do not match tensor rank %d", op, is, len(size)))
	}
	if len(vs) != 2 || vs[0] != is[0] || vs[1] != is[1] {
		panic(fmt.Sprintf("%s: values %v do not match indices %v", op, vs, is))
	}
	if len(xs) < 1 || xs[0] != is[0] {
		panic(fmt.Sprintf("%s: input %v does not match batch %d", op, xs, is[0]))
	}

	outRank := len(size) - (len(xs) - 1)
	if outRank < 0 || !size[outRank:].Equal(xs[1:]) {
		panic(fmt.Sprintf("%s: input %v incompatible with tensor size %v", op, xs, size))
	}

	outShape, inShape := size[:outRank], size[outRank:]
	return contraction{
		batch:      is[0],
		entries:    is[1],
		rank:       len(size),
		outRank:    outRank,
		size:       size,
		outSize:    outShape.NumElements(),
		inSize:     inShape.NumElements(),
		outStrides: outShape.ComputeStrides(),
		inStrides:  inShape.ComputeStrides(),
	}
}

// locate maps one index tuple to flat (output, input) offsets, clipping every coordinate
// to [0, size-1].
func (c *contraction) locate(tuple []int64) (o, in int) {
	for r, v := range tuple {
		coord := int(min(max(v, 0), int64(c.size[r]-1)))
		if r < c.outRank {
			o += coord * c.outStrides[r]
		} else {
			in += coord * c.inStrides[r-c.outRank]
		}
	}
	return o, in
}

// Contract multiplies a batch of sparse tensors against a dense input:
//
//	out[b, o(n)] += values[b, n] * input[b, in(n)]
//
// where o(n) is formed by the first len(size) - (input rank - 1) coordinates of tuple n
// and in(n) by the rest.
//
// Parameters:
//   - indices: [b, n, R] int64 tuples
//   - values: [b, n] float32
//   - input: [b, size[outRank:]...] float32
//   - size: dense shape of the sparse tensor (length R)
//
// Returns [b, size[:outRank]...]. Batches are processed in parallel.
func (cpu *CPUBackend) Contract(indices, values, input *tensor.RawTensor, size tensor.Shape) *tensor.RawTensor {
	c := newContraction("contract", indices, values, input, size)

	outShape := append(tensor.Shape{c.batch}, size[:c.outRank]...)
	result := tensor.MustNewRaw(outShape, tensor.Float32, cpu.device)

	idx, v, x, out := indices.AsInt64(), values.AsFloat32(), input.AsFloat32(), result.AsFloat32()
	parallel.For(c.batch, func(b int) {
		for n := 0; n < c.entries; n++ {
			at := b*c.entries + n
			o, in := c.locate(idx[at*c.rank : (at+1)*c.rank])
			out[b*c.outSize+o] += v[at] * x[b*c.inSize+in]
		}
	}, cpu.parallel)

	return result
}

// ContractBackward computes the gradients of Contract:
//
//	dvalues[b, n]     = grad[b, o(n)] * input[b, in(n)]
//	dinput[b, in(n)] += values[b, n] * grad[b, o(n)]
//
// Indices receive no gradient.
func (cpu *CPUBackend) ContractBackward(
	indices, values, input, grad *tensor.RawTensor, size tensor.Shape,
) (gradValues, gradInput *tensor.RawTensor) {
	c := newContraction("contract_backward", indices, values, input, size)
	requireFloat32("contract_backward", grad)

	gradValues = tensor.MustNewRaw(values.Shape(), tensor.Float32, cpu.device)
	gradInput = tensor.MustNewRaw(input.Shape(), tensor.Float32, cpu.device)

	idx, v, x, g := indices.AsInt64(), values.AsFloat32(), input.AsFloat32(), grad.AsFloat32()
	gv, gx := gradValues.AsFloat32(), gradInput.AsFloat32()
	parallel.For(c.batch, func(b int) {
		for n := 0; n < c.entries; n++ {
			at := b*c.entries + n
			o, in := c.locate(idx[at*c.rank : (at+1)*c.rank])
			gOut := g[b*c.outSize+o]
			gv[at] = gOut * x[b*c.inSize+in]
			gx[b*c.inSize+in] += v[at] * gOut
		}
	}, cpu.parallel)

	return gradValues, gradInput
}
