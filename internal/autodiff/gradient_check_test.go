package autodiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/autodiff"
	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// sparsePipeline evaluates the blend used by the sparse layer on a single context:
// densities of two integer points under two means, normalised over the points, used to
// spread the two values, then contracted against the input.
//
// means: [1, 1, 2, 1], sigmas: [1, 1, 2, 1], values: [1, 1, 2] (per mean)
func sparsePipeline[B tensor.Backend](b B, means, sigmas, values, input *tensor.RawTensor) *tensor.RawTensor {
	points := tensor.MustNewRaw(tensor.Shape{1, 1, 2, 1}, tensor.Float32, tensor.CPU)
	copy(points.AsFloat32(), []float32{1, 2})
	indices := tensor.MustNewRaw(tensor.Shape{1, 2, 2}, tensor.Int64, tensor.CPU)
	copy(indices.AsInt64(), []int64{0, 1, 0, 2})

	// [1, 1, i, k] normalised over the points
	props := b.NormalizeDim(b.Densities(points, means, sigmas, 1e-7), 2)
	blended := b.SumDim(b.Mul(props, values), 3, false)
	blended = b.Reshape(blended, tensor.Shape{1, 2})
	return b.Sum(b.Contract(indices, blended, input, tensor.Shape{1, 3}))
}

func TestGradientCheck_SparsePipeline(t *testing.T) {
	raw := func(shape tensor.Shape, data ...float32) *tensor.RawTensor {
		r := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
		copy(r.AsFloat32(), data)
		return r
	}
	means := raw(tensor.Shape{1, 1, 2, 1}, 1.3, 1.8)
	sigmas := raw(tensor.Shape{1, 1, 2, 1}, 0.6, 0.9)
	values := raw(tensor.Shape{1, 1, 1, 2}, 2, -1)
	input := raw(tensor.Shape{1, 3}, 0.5, 3, -2)

	backend := newBackend()
	loss := sparsePipeline(backend, means, sigmas, values, input)
	require.Empty(t, loss.Shape())
	grads := autodiff.Backward(tensor.New[float32](loss, backend), backend)

	plain := cpu.New()
	eval := func() float64 {
		return float64(sparsePipeline(plain, means, sigmas, values, input).AsFloat32()[0])
	}
	const h = 1e-2
	check := func(name string, param *tensor.RawTensor) {
		grad, ok := grads[param]
		require.True(t, ok, "%s has no gradient", name)
		data := param.AsFloat32()
		for i := range data {
			orig := data[i]
			data[i] = orig + h
			up := eval()
			data[i] = orig - h
			down := eval()
			data[i] = orig
			assert.InDelta(t, (up-down)/(2*h), grad.AsFloat32()[i], 1e-2, "%s[%d]", name, i)
		}
	}
	check("means", means)
	check("sigmas", sigmas)
	check("values", values)
	check("input", input)
}
