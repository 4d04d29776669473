package cpu

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// NormalizeDim divides every element by the sum of its slice along dim.
//
// A slice that sums to zero stays all-zero. This is the only place where a division by a
// data-dependent denominator happens, so the guard keeps NaN out of the forward pass.
func (cpu *CPUBackend) NormalizeDim(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("normalize", x)

	dim = x.Shape().NormalizeDim(dim)
	outer, size, inner := splitAt(x.Shape(), dim)

	result, err := tensor.NewRaw(x.Shape(), tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("normalize: %v", err))
	}

	src, dst := x.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum float32
			for s := 0; s < size; s++ {
				sum += src[(o*size+s)*inner+in]
			}
			if sum == 0 {
				continue
			}
			for s := 0; s < size; s++ {
				at := (o*size+s)*inner + in
				dst[at] = src[at] / sum
			}
		}
	}
	return result
}

// NormalizeDimBackward computes the gradient of NormalizeDim.
//
// With y = x / S and S = sum(x) along dim:
//
//	dx_l = (g_l - sum_j g_j * y_j) / S
//
// Slices with S == 0 receive zero gradient.
func (cpu *CPUBackend) NormalizeDimBackward(x, output, grad *tensor.RawTensor, dim int) *tensor.RawTensor {
	requireFloat32("normalize_backward", x, output, grad)

	dim = x.Shape().NormalizeDim(dim)
	outer, size, inner := splitAt(x.Shape(), dim)

	result, err := tensor.NewRaw(x.Shape(), tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("normalize_backward: %v", err))
	}

	src, y, g, dst := x.AsFloat32(), output.AsFloat32(), grad.AsFloat32(), result.AsFloat32()
	for o := 0; o < outer; o++ {
		for in := 0; in < inner; in++ {
			var sum, dot float32
			for s := 0; s < size; s++ {
				at := (o*size+s)*inner + in
				sum += src[at]
				dot += g[at] * y[at]
			}
			if sum == 0 {
				continue
			}
			for s := 0; s < size; s++ {
				at := (o*size+s)*inner + in
				dst[at] = (g[at] - dot) / sum
			}
		}
	}
	return result
}
