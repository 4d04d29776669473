package cpu

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Reshape returns a copy of x with a new shape of equal size.
func (cpu *CPUBackend) Reshape(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	if shape.NumElements() != x.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			x.Shape(), x.NumElements(), shape, shape.NumElements()))
	}
	return x.Clone().View(shape)
}

// Expand broadcasts x to shape. Works for every dtype.
//
// Example:
//
//	x: [3, 1], shape: [3, 4] → [3, 4]
//	x: [4],    shape: [2, 4] → [2, 4]
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	outShape, _, err := tensor.BroadcastShapes(x.Shape(), shape)
	if err != nil || !outShape.Equal(shape) {
		panic(fmt.Sprintf("expand: cannot expand %v to %v", x.Shape(), shape))
	}

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("expand: %v", err))
	}

	elem := x.DType().Size()
	src, dst := x.Data(), result.Data()
	outStrides := shape.ComputeStrides()
	inStrides := broadcastStrides(x.Shape(), shape)
	for i := 0; i < result.NumElements(); i++ {
		j := flatIndex(i, outStrides, inStrides)
		copy(dst[i*elem:(i+1)*elem], src[j*elem:(j+1)*elem])
	}
	return result
}

// Narrow returns the slice [start, start+length) of x along dim. Works for every dtype.
func (cpu *CPUBackend) Narrow(x *tensor.RawTensor, dim, start, length int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	if start < 0 || length < 0 || start+length > shape[dim] {
		panic(fmt.Sprintf("narrow: range [%d, %d) out of bounds for dimension %d of size %d",
			start, start+length, dim, shape[dim]))
	}

	outShape := shape.Clone()
	outShape[dim] = length
	result, err := tensor.NewRaw(outShape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("narrow: %v", err))
	}

	outer, size, inner := splitAt(shape, dim)
	block := inner * x.DType().Size()
	src, dst := x.Data(), result.Data()
	for o := 0; o < outer; o++ {
		from := (o*size + start) * block
		copy(dst[o*length*block:(o+1)*length*block], src[from:from+length*block])
	}
	return result
}

// Cat concatenates tensors along dim. All tensors must share dtype and every other dimension.
func (cpu *CPUBackend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors to concatenate")
	}

	first := tensors[0]
	dim = first.Shape().NormalizeDim(dim)
	outShape := first.Shape().Clone()
	outShape[dim] = 0
	for i, t := range tensors {
		if t.DType() != first.DType() || len(t.Shape()) != len(first.Shape()) {
			panic(fmt.Sprintf("cat: tensor %d (%s %v) incompatible with %s %v",
				i, t.DType(), t.Shape(), first.DType(), first.Shape()))
		}
		for d := range t.Shape() {
			if d != dim && t.Shape()[d] != first.Shape()[d] {
				panic(fmt.Sprintf("cat: tensor %d shape %v differs from %v outside dimension %d",
					i, t.Shape(), first.Shape(), dim))
			}
		}
		outShape[dim] += t.Shape()[dim]
	}

	result, err := tensor.NewRaw(outShape, first.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	outer, total, inner := splitAt(outShape, dim)
	elem := first.DType().Size()
	dst := result.Data()
	offset := 0
	for _, t := range tensors {
		size := t.Shape()[dim]
		block := size * inner * elem
		src := t.Data()
		for o := 0; o < outer; o++ {
			at := (o*total + offset) * inner * elem
			copy(dst[at:at+block], src[o*block:(o+1)*block])
		}
		offset += size
	}
	return result
}
