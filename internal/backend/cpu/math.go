package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// unary applies f to every element of a float32 tensor.
func (cpu *CPUBackend) unary(name string, x *tensor.RawTensor, f func(v float32) float32) *tensor.RawTensor {
	requireFloat32(name, x)

	result, err := tensor.NewRaw(x.Shape(), tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	dst := result.AsFloat32()
	for i, v := range x.AsFloat32() {
		dst[i] = f(v)
	}
	return result
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary("mulscalar", x, func(v float32) float32 { return v * scalar })
}

// AddScalar adds scalar to every element.
func (cpu *CPUBackend) AddScalar(x *tensor.RawTensor, scalar float32) *tensor.RawTensor {
	return cpu.unary("addscalar", x, func(v float32) float32 { return v + scalar })
}

// Exp computes element-wise exponential: exp(x).
func (cpu *CPUBackend) Exp(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("exp", x, func(v float32) float32 {
		return float32(math.Exp(float64(v)))
	})
}

// Sigmoid computes σ(x) = 1 / (1 + exp(-x)).
func (cpu *CPUBackend) Sigmoid(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("sigmoid", x, sigmoid)
}

// Softplus computes log(1 + exp(x)).
//
// For x > 20 the result equals x to float32 precision. The result never underflows to
// zero: it is floored at the smallest positive float32.
func (cpu *CPUBackend) Softplus(x *tensor.RawTensor) *tensor.RawTensor {
	return cpu.unary("softplus", x, func(v float32) float32 {
		if v > 20 {
			return v
		}
		return max(float32(math.Log1p(math.Exp(float64(v)))), math.SmallestNonzeroFloat32)
	})
}

// Clamp limits every element to [lo, hi].
func (cpu *CPUBackend) Clamp(x *tensor.RawTensor, lo, hi float32) *tensor.RawTensor {
	if lo > hi {
		panic(fmt.Sprintf("clamp: lower bound %v exceeds upper bound %v", lo, hi))
	}
	return cpu.unary("clamp", x, func(v float32) float32 {
		return min(max(v, lo), hi)
	})
}

func sigmoid(v float32) float32 {
	return float32(1.0 / (1.0 + math.Exp(-float64(v))))
}
