package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/sparsehyper/internal/parallel"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// densityDims validates the operand shapes of the density kernel and returns
// (contexts, points per context, means per context, rank).
func densityDims(op string, points, means, sigmas *tensor.RawTensor) (ctx, ni, nk, rank int) {
	requireFloat32(op, points, means, sigmas)

	ps, ms := points.Shape(), means.Shape()
	if len(ps) != 4 || len(ms) != 4 {
		panic(fmt.Sprintf("%s: expected 4D points and means, got %v and %v", op, ps, ms))
	}
	if !ms.Equal(sigmas.Shape()) {
		panic(fmt.Sprintf("%s: means %v and sigmas %v differ", op, ms, sigmas.Shape()))
	}
	if ps[0] != ms[0] || ps[1] != ms[1] || ps[3] != ms[3] {
		panic(fmt.Sprintf("%s: points %v incompatible with means %v", op, ps, ms))
	}
	return ps[0] * ps[1], ps[2], ms[2], ps[3]
}

// Densities evaluates the unnormalised Gaussian density of every point under every mean of
// the same context:
//
//	out[b,c,i,k] = exp(-0.5 * sum_r (p[b,c,i,r] - m[b,c,k,r])^2 / (eps + sigma[b,c,k,r]))
//
// Parameters:
//   - points: [b, c, i, r] float32
//   - means, sigmas: [b, c, k, r] float32
//
// Returns [b, c, i, k]. Contexts are processed in parallel.
func (cpu *CPUBackend) Densities(points, means, sigmas *tensor.RawTensor, eps float32) *tensor.RawTensor {
	ctx, ni, nk, rank := densityDims("densities", points, means, sigmas)

	ps := points.Shape()
	result := tensor.MustNewRaw(tensor.Shape{ps[0], ps[1], ni, nk}, tensor.Float32, cpu.device)

	p, m, s, out := points.AsFloat32(), means.AsFloat32(), sigmas.AsFloat32(), result.AsFloat32()
	parallel.For(ctx, func(c int) {
		for i := 0; i < ni; i++ {
			pi := p[(c*ni+i)*rank : (c*ni+i+1)*rank]
			for k := 0; k < nk; k++ {
				base := (c*nk + k) * rank
				var acc float64
				for r := 0; r < rank; r++ {
					d := float64(pi[r] - m[base+r])
					acc += d * d / float64(eps+s[base+r])
				}
				out[(c*ni+i)*nk+k] = float32(math.Exp(-0.5 * acc))
			}
		}
	}, cpu.parallel)

	return result
}

// DensitiesBackward computes the gradients of Densities with respect to means and sigmas.
//
// With d = p - m and q = eps + sigma:
//
//	dOut/dm     = out * d / q
//	dOut/dsigma = out * 0.5 * d^2 / q^2
//
// Points are integer samples and receive no gradient.
func (cpu *CPUBackend) DensitiesBackward(
	points, means, sigmas, output, grad *tensor.RawTensor, eps float32,
) (gradMeans, gradSigmas *tensor.RawTensor) {
	ctx, ni, nk, rank := densityDims("densities_backward", points, means, sigmas)
	requireFloat32("densities_backward", output, grad)

	gradMeans = tensor.MustNewRaw(means.Shape(), tensor.Float32, cpu.device)
	gradSigmas = tensor.MustNewRaw(sigmas.Shape(), tensor.Float32, cpu.device)

	p, m, s := points.AsFloat32(), means.AsFloat32(), sigmas.AsFloat32()
	out, g := output.AsFloat32(), grad.AsFloat32()
	gm, gs := gradMeans.AsFloat32(), gradSigmas.AsFloat32()

	// Each context writes only its own slice of gm and gs.
	parallel.For(ctx, func(c int) {
		for i := 0; i < ni; i++ {
			pi := p[(c*ni+i)*rank : (c*ni+i+1)*rank]
			for k := 0; k < nk; k++ {
				at := (c*ni+i)*nk + k
				w := g[at] * out[at]
				if w == 0 {
					continue
				}
				base := (c*nk + k) * rank
				for r := 0; r < rank; r++ {
					d := pi[r] - m[base+r]
					q := eps + s[base+r]
					gm[base+r] += w * d / q
					gs[base+r] += w * 0.5 * d * d / (q * q)
				}
			}
		}
	}, cpu.parallel)

	return gradMeans, gradSigmas
}
