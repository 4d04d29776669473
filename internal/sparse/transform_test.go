package sparse_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

func TestTransformMeans_Bounds(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewPCG(1, 2))
	size := []int{3, 7}

	raw := tensor.Randn(tensor.Shape{2, 50, 2}, rng, backend).MulScalar(10)
	for _, clamp := range []bool{false, true} {
		means, err := sparse.TransformMeans(raw, size, clamp)
		require.NoError(t, err)
		require.Equal(t, tensor.Shape{2, 50, 2}, means.Shape())

		for i, v := range means.Data() {
			upper := float32(size[i%2] - 1)
			assert.GreaterOrEqual(t, v, float32(0), "clamp=%t", clamp)
			assert.LessOrEqual(t, v, upper, "clamp=%t", clamp)
		}
	}
}

func TestTransformMeans_Values(t *testing.T) {
	backend := cpu.New()
	raw := floats(t, []float32{0, 0, 2, -1}, tensor.Shape{1, 2, 2}, backend)

	means, err := sparse.TransformMeans(raw, []int{5, 3}, false)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, means.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 1.0, means.At(0, 0, 1), 1e-6)

	clamped, err := sparse.TransformMeans(raw, []int{5, 3}, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 4, 0}, clamped.Data())
}

func TestTransformMeans_ShapeMismatch(t *testing.T) {
	backend := cpu.New()
	raw := tensor.Zeros[float32](tensor.Shape{1, 2, 3}, backend)
	_, err := sparse.TransformMeans(raw, []int{4, 4}, false)
	require.ErrorIs(t, err, sparse.ErrShape)
}

func TestTransformSigmas(t *testing.T) {
	backend := cpu.New()
	raw := floats(t, []float32{0, -1000, 50}, tensor.Shape{1, 3}, backend)

	sigmas, err := sparse.TransformSigmas(raw, []int{4, 2}, 0)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, 3, 2}, sigmas.Shape())

	// softplus(0 + 2) = ln(1 + e^2)
	assert.InDelta(t, 2.126928*4, sigmas.At(0, 0, 0), 1e-4)
	assert.InDelta(t, 2.126928*2, sigmas.At(0, 0, 1), 1e-4)
	assert.InDelta(t, 52.0*4, sigmas.At(0, 2, 0), 1e-3)
	for _, v := range sigmas.Data() {
		assert.Greater(t, v, float32(0))
	}

	withMin, err := sparse.TransformSigmas(raw, []int{4, 2}, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, withMin.At(0, 1, 0), 1e-4)
}

func TestTransformSigmas_Errors(t *testing.T) {
	backend := cpu.New()
	raw := tensor.Zeros[float32](tensor.Shape{1, 3}, backend)

	_, err := sparse.TransformSigmas(raw, []int{4}, -1)
	require.ErrorIs(t, err, sparse.ErrConfiguration)

	_, err = sparse.TransformSigmas(raw.Reshape(1, 3, 1), []int{4}, 0)
	require.ErrorIs(t, err, sparse.ErrShape)
}
