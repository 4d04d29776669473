package sparse_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/autodiff"
	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/nn"
	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

func TestNASLayer_Parameters(t *testing.T) {
	backend := cpu.New()

	layer, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}, K: 3, HasBias: true, Seed: 1}, backend)
	require.NoError(t, err)

	params := layer.Parameters()
	require.Len(t, params, 4)
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name()
	}
	assert.Equal(t, []string{"means", "sigmas", "values", "bias"}, names)
	assert.Equal(t, tensor.Shape{3, 2}, params[0].Tensor().Shape())
	assert.Equal(t, tensor.Shape{2}, params[3].Tensor().Shape())
	assert.InDelta(t, 3.0/8.0, layer.Density(), 1e-12)
	assert.Equal(t, uint64(1), layer.Seed())
	assert.Equal(t, float32(1), layer.Config().SigmaScale)

	fixed, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}, K: 3, FixValues: true, Seed: 1}, backend)
	require.NoError(t, err)
	assert.Len(t, fixed.Parameters(), 2)
	assert.Equal(t, []float32{1, 1, 1}, fixed.StateDict()["values"].AsFloat32())

	var module nn.Module[*cpu.CPUBackend] = layer
	assert.Len(t, module.Parameters(), 4)
}

func TestNASLayer_SameSeedSameParameters(t *testing.T) {
	backend := cpu.New()
	cfg := sparse.NASConfig{InSize: []int{5}, OutSize: []int{3}, K: 4, Seed: 77}

	a, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)
	b, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)
	assert.Equal(t, a.StateDict()["means"].AsFloat32(), b.StateDict()["means"].AsFloat32())

	cfg.Seed = 78
	c, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)
	assert.NotEqual(t, a.StateDict()["means"].AsFloat32(), c.StateDict()["means"].AsFloat32())
}

func TestNASLayer_HyperTransforms(t *testing.T) {
	backend := cpu.New()
	layer, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{6}, OutSize: []int{3}, K: 5, SigmaScale: 0.5, Seed: 2}, backend)
	require.NoError(t, err)

	out, err := layer.Hyper(tensor.Ones(tensor.Shape{2, 6}, backend))
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 5, 2}, out.Means.Shape())
	require.Equal(t, tensor.Shape{2, 5, 2}, out.Sigmas.Shape())
	require.Equal(t, tensor.Shape{2, 5}, out.Values.Shape())
	assert.Nil(t, out.Bias)

	size := []int{3, 6}
	for i, v := range out.Means.Data() {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(size[i%2]-1))
	}
	for _, v := range out.Sigmas.Data() {
		assert.Greater(t, v, float32(0))
	}

	unscaled, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{6}, OutSize: []int{3}, K: 5, Seed: 2}, backend)
	require.NoError(t, err)
	ref, err := unscaled.Hyper(tensor.Ones(tensor.Shape{2, 6}, backend))
	require.NoError(t, err)
	for i, v := range ref.Sigmas.Data() {
		assert.InDelta(t, v*0.5, out.Sigmas.Data()[i], 1e-5)
	}
}

func TestNASLayer_StateDict(t *testing.T) {
	backend := cpu.New()
	input := tensor.Randn(tensor.Shape{3, 4}, rand.New(rand.NewPCG(1, 1)), backend)
	cfg := sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}, K: 3, HasBias: true, Seed: 1}

	src, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)
	cfg.Seed = 2
	dst, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))
	src.SetTraining(false)
	dst.SetTraining(false)

	want, err := src.ForwardWith(input)
	require.NoError(t, err)
	got, err := dst.ForwardWith(input)
	require.NoError(t, err)
	assert.Equal(t, want.Data(), got.Data())

	state := src.StateDict()
	delete(state, "bias")
	require.ErrorIs(t, dst.LoadStateDict(state), sparse.ErrConfiguration)

	state = src.StateDict()
	state["bias"] = tensor.MustNewRaw(tensor.Shape{3}, tensor.Float32, tensor.CPU)
	require.ErrorIs(t, dst.LoadStateDict(state), sparse.ErrShape)

	state = src.StateDict()
	state["extra"] = tensor.MustNewRaw(tensor.Shape{1}, tensor.Float32, tensor.CPU)
	require.ErrorIs(t, dst.LoadStateDict(state), sparse.ErrConfiguration)
}

func TestNASLayer_ConfigErrors(t *testing.T) {
	backend := cpu.New()
	tests := []struct {
		name string
		cfg  sparse.NASConfig
		kind error
	}{
		{"no tuples", sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}}, sparse.ErrConfiguration},
		{"no input", sparse.NASConfig{OutSize: []int{2}, K: 1}, sparse.ErrConfiguration},
		{"negative sigma scale", sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}, K: 1, SigmaScale: -1}, sparse.ErrConfiguration},
		{"negative min sigma", sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}, K: 1, MinSigma: -1}, sparse.ErrConfiguration},
		{"region", sparse.NASConfig{InSize: []int{4}, OutSize: []int{2}, K: 1, RAdditional: 1, Region: []int{2}}, sparse.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sparse.NewNASLayer(tt.cfg, backend)
			require.ErrorIs(t, err, tt.kind)
		})
	}
}

func TestNASLayer_Backward(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{4}, OutSize: []int{3}, K: 4, GAdditional: 2, HasBias: true, Seed: 5}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	input := tensor.Ones(tensor.Shape{2, 4}, backend)
	out, err := layer.ForwardWith(input)
	require.NoError(t, err)

	params := layer.Parameters()
	nn.CollectGrads(params, autodiff.Backward(out.Sum(), backend))
	for _, p := range params {
		require.NotNil(t, p.Grad(), p.Name())
		assert.Equal(t, p.Tensor().Shape(), p.Grad().Shape(), p.Name())
	}

	// d sum(out) / d bias = batch size
	assert.Equal(t, []float32{2, 2, 2}, params[3].Grad().Data())
}

func TestNASLayer_GradientRange(t *testing.T) {
	backend := autodiff.New(cpu.New())
	layer, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{4}, OutSize: []int{3}, K: 4, GAdditional: 2, Seed: 9}, backend)
	require.NoError(t, err)

	backend.Tape().StartRecording()
	input := tensor.Ones(tensor.Shape{1, 4}, backend)
	var stats sparse.ForwardStats
	out, err := layer.ForwardWith(input, sparse.WithGradientRange(0, 2), sparse.WithStats(&stats))
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{1, 3}, out.Shape())
	require.Zero(t, stats.Degenerate)

	// Two sampled tuples with 4+2 candidates each, plus the two rounded tuples outside the range.
	assert.Equal(t, 2*6+2, stats.Entries)

	params := layer.Parameters()
	nn.CollectGrads(params, autodiff.Backward(out.Sum(), backend))
	means, sigmas, values := params[0].Grad().Data(), params[1].Grad().Data(), params[2].Grad().Data()

	// With an all-ones input every sampled tuple spreads a total weight of one.
	assert.InDelta(t, 1.0, values[0], 1e-4)
	assert.InDelta(t, 1.0, values[1], 1e-4)
	assert.Equal(t, []float32{0, 0}, values[2:])
	assert.Equal(t, []float32{0, 0}, sigmas[2:])
	assert.Equal(t, []float32{0, 0, 0, 0}, means[4:])
}

func TestNASLayer_InSequential(t *testing.T) {
	backend := cpu.New()
	layer, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{4}, OutSize: []int{3}, K: 4, HasBias: true, Seed: 3}, backend)
	require.NoError(t, err)
	layer.SetTraining(false)

	model := nn.NewSequential[*cpu.CPUBackend](layer, nn.NewSigmoid[*cpu.CPUBackend]())
	assert.Len(t, model.Parameters(), len(layer.Parameters()))

	input := floats(t, []float32{1, -2, 3, -4, 0.5, 0, -1, 2}, tensor.Shape{2, 4}, backend)
	want, err := layer.ForwardWith(input)
	require.NoError(t, err)

	got := model.Forward(input)
	require.Equal(t, tensor.Shape{2, 3}, got.Shape())
	for i, v := range got.Data() {
		assert.InDelta(t, 1/(1+math.Exp(-float64(want.Data()[i]))), float64(v), 1e-6)
		assert.True(t, v > 0 && v < 1)
	}

	// A shape error from the layer surfaces as a panic through the container.
	assert.Panics(t, func() { model.Forward(tensor.Ones(tensor.Shape{2, 4, 1}, backend)) })
}
