package cpu

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Sum computes the total sum of all elements. Returns a scalar tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	requireFloat32("sum", x)

	result := tensor.MustNewRaw(tensor.Shape{}, tensor.Float32, cpu.device)

	var sum float64
	for _, v := range x.AsFloat32() {
		sum += float64(v)
	}
	result.AsFloat32()[0] = float32(sum)
	return result
}

// SumDim sums along dim. When keepDim is true the reduced dimension stays with size 1.
//
// Example:
//
//	x: [2, 3, 4], dim=1, keepDim=false → [2, 4]
//	x: [2, 3, 4], dim=1, keepDim=true  → [2, 1, 4]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	requireFloat32("sumdim", x)

	shape := x.Shape()
	dim = shape.NormalizeDim(dim)
	outer, size, inner := splitAt(shape, dim)

	outShape := make(tensor.Shape, 0, len(shape))
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}

	result, err := tensor.NewRaw(outShape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("sumdim: %v", err))
	}

	src, dst := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum float32
			for s := 0; s < size; s++ {
				sum += src[(o*size+s)*inner+in]
			}
			dst[o*inner+in] = sum
		}
	}
	return result
}

// splitAt decomposes shape around dim into (product before, dim size, product after).
func splitAt(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}
