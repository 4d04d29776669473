package sparse_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// fixedHyper returns the same tuples for every input, expanded over the batch.
func fixedHyper(t *testing.T, means []float32, rank int, values []float32, bias []float32) sparse.HyperFunc[*cpu.CPUBackend] {
	return func(input *cpuTensor) (sparse.HyperOutput[*cpu.CPUBackend], error) {
		backend := input.Backend()
		b, k := input.Shape()[0], len(values)

		m := floats(t, means, tensor.Shape{1, k, rank}, backend).Expand(tensor.Shape{b, k, rank})
		s := tensor.Ones(tensor.Shape{b, k, rank}, backend)
		v := floats(t, values, tensor.Shape{1, k}, backend).Expand(tensor.Shape{b, k})
		out := sparse.HyperOutput[*cpu.CPUBackend]{Means: m, Sigmas: s, Values: v}
		if bias != nil {
			out.Bias = floats(t, bias, tensor.Shape{len(bias)}, backend)
		}
		return out, nil
	}
}

func TestLayer_SingleTupleLookup(t *testing.T) {
	backend := cpu.New()
	input := floats(t, []float32{
		1, 2, 3, 4, 5,
		-1, -2, -3, -4, -5,
	}, tensor.Shape{2, 5}, backend)

	// Every neighbour of an integer mean is the same cell; keep one of them.
	layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}, Duplicates: sparse.DuplicatesKeepFirst, Seed: 1},
		fixedHyper(t, []float32{0, 3}, 2, []float32{2.5}, nil), backend)
	require.NoError(t, err)

	for _, training := range []bool{true, false} {
		layer.SetTraining(training)
		var stats sparse.ForwardStats
		out, err := layer.ForwardWith(input, sparse.WithStats(&stats))
		require.NoError(t, err)

		require.Equal(t, tensor.Shape{2, 1}, out.Shape())
		assert.InDelta(t, 10.0, out.At(0, 0), 1e-5, "training=%t", training)
		assert.InDelta(t, -10.0, out.At(1, 0), 1e-5, "training=%t", training)
		assert.Equal(t, training, stats.Training)
	}
}

func TestLayer_DuplicateCandidates(t *testing.T) {
	backend := cpu.New()
	input := floats(t, []float32{1, 2, 3, 4, 5}, tensor.Shape{1, 5}, backend)

	tests := []struct {
		name       string
		policy     sparse.DuplicatePolicy
		want       float32
		duplicates int
		degenerate int
	}{
		{"default zeroes every copy", 0, 0, 4, 1},
		{"zero all", sparse.DuplicatesZeroAll, 0, 4, 1},
		{"keep first", sparse.DuplicatesKeepFirst, 10, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// An integer mean makes every floor/ceil neighbour the same tuple.
			layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}, Duplicates: tt.policy, Seed: 1},
				fixedHyper(t, []float32{0, 3}, 2, []float32{2.5}, nil), backend)
			require.NoError(t, err)

			var stats sparse.ForwardStats
			out, err := layer.ForwardWith(input, sparse.WithStats(&stats))
			require.NoError(t, err)
			assert.InDelta(t, tt.want, out.At(0, 0), 1e-5)
			assert.Equal(t, tt.duplicates, stats.Duplicates)
			assert.Equal(t, tt.degenerate, stats.Degenerate)
			assert.Equal(t, 4, stats.Candidates)
			assert.Equal(t, 4, stats.Entries)
		})
	}
}

func TestLayer_InferenceRounds(t *testing.T) {
	backend := cpu.New()
	input := floats(t, []float32{1, 10, 100, 1000}, tensor.Shape{1, 4}, backend)

	// (0.4, 2.6) → (0, 3); (1.5, 0.5) → (2, 0)
	layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{3}, Seed: 1},
		fixedHyper(t, []float32{0.4, 2.6, 1.5, 0.5}, 2, []float32{2, 3}, nil), backend)
	require.NoError(t, err)
	layer.SetTraining(false)

	first, err := layer.ForwardWith(input)
	require.NoError(t, err)
	second, err := layer.ForwardWith(input, sparse.WithSeed(99))
	require.NoError(t, err)

	assert.Equal(t, []float32{2000, 0, 3}, first.Data())
	assert.Equal(t, first.Data(), second.Data())
}

func TestLayer_DenseBias(t *testing.T) {
	backend := cpu.New()
	input := floats(t, []float32{1, 2, 3, 4, 5}, tensor.Shape{1, 5}, backend)

	layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{2}, Bias: sparse.BiasDense, Seed: 1},
		fixedHyper(t, []float32{1, 3}, 2, []float32{2}, []float32{10, 20}), backend)
	require.NoError(t, err)
	layer.SetTraining(false)

	out, err := layer.ForwardWith(input)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 28}, out.Data())
}

func TestLayer_Template(t *testing.T) {
	backend := cpu.New()
	input := floats(t, []float32{1, 10, 100, 1000}, tensor.Shape{1, 4}, backend)

	// Column 0 (output row) is fixed per template row, column 1 is learned.
	cfg := sparse.LayerConfig{
		InRank:    1,
		OutSize:   []int{2},
		Template:  [][]int64{{1, 0}, {0, 0}},
		LearnCols: []int{1},
		Seed:      1,
	}

	t.Run("inference", func(t *testing.T) {
		layer, err := sparse.NewLayer[*cpu.CPUBackend](cfg, fixedHyper(t, []float32{2, 3}, 1, []float32{5, 7}, nil), backend)
		require.NoError(t, err)
		layer.SetTraining(false)

		out, err := layer.ForwardWith(input)
		require.NoError(t, err)
		assert.Equal(t, []float32{7000, 500}, out.Data())
	})

	t.Run("training keeps fixed columns", func(t *testing.T) {
		cfg := cfg
		cfg.GAdditional = 3
		layer, err := sparse.NewLayer[*cpu.CPUBackend](cfg, fixedHyper(t, []float32{0.4, 2.6}, 1, []float32{5, 7}, nil), backend)
		require.NoError(t, err)

		for seed := uint64(1); seed <= 4; seed++ {
			var stats sparse.ForwardStats
			out, err := layer.ForwardWith(input, sparse.WithSeed(seed), sparse.WithStats(&stats))
			require.NoError(t, err)
			assert.Equal(t, 2*(2+3), stats.Entries)
			assert.Equal(t, tensor.Shape{1, 2}, out.Shape())
			for _, v := range out.Data() {
				assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0), "seed %d", seed)
			}
		}
	})

	t.Run("entries not divisible by rows", func(t *testing.T) {
		layer, err := sparse.NewLayer[*cpu.CPUBackend](cfg, fixedHyper(t, []float32{1, 2, 3}, 1, []float32{1, 1, 1}, nil), backend)
		require.NoError(t, err)
		layer.SetTraining(false)

		_, err = layer.ForwardWith(input)
		require.ErrorIs(t, err, sparse.ErrContractViolation)
	})

	t.Run("gradient range", func(t *testing.T) {
		layer, err := sparse.NewLayer[*cpu.CPUBackend](cfg, fixedHyper(t, []float32{2, 3}, 1, []float32{5, 7}, nil), backend)
		require.NoError(t, err)

		_, err = layer.ForwardWith(input, sparse.WithGradientRange(0, 1))
		require.ErrorIs(t, err, sparse.ErrContractViolation)
	})
}

func TestLayer_SeededSampling(t *testing.T) {
	backend := cpu.New()
	input := floats(t, []float32{1, -2, 3, -4, 5, -6, 7, -8}, tensor.Shape{2, 4}, backend)
	cfg := sparse.NASConfig{InSize: []int{4}, OutSize: []int{3}, K: 3, GAdditional: 5, RAdditional: 2, Region: []int{2, 2}, Seed: 11}

	a, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)
	b, err := sparse.NewNASLayer(cfg, backend)
	require.NoError(t, err)

	// A per-call seed gives the same samples and leaves the layer generator alone.
	s1, err := a.ForwardWith(input, sparse.WithSeed(42))
	require.NoError(t, err)
	s2, err := a.ForwardWith(input, sparse.WithSeed(42))
	require.NoError(t, err)
	assert.Equal(t, s1.Data(), s2.Data())

	fromA, err := a.ForwardWith(input)
	require.NoError(t, err)
	fromB, err := b.ForwardWith(input)
	require.NoError(t, err)
	assert.Equal(t, fromA.Data(), fromB.Data())
}

func TestLayer_GlobalSamplesStats(t *testing.T) {
	backend := cpu.New()
	input := tensor.Ones(tensor.Shape{2, 6}, backend)

	layer, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{6}, OutSize: []int{4}, K: 4, ChunkSize: 2, GAdditional: 5, Seed: 3}, backend)
	require.NoError(t, err)

	var stats sparse.ForwardStats
	out, err := layer.ForwardWith(input, sparse.WithStats(&stats))
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{2, 4}, out.Shape())
	assert.Equal(t, 4+5, stats.Candidates)
	assert.Equal(t, 2, stats.Contexts)
	assert.Equal(t, 4*9, stats.Entries)
	for _, v := range out.Data() {
		assert.False(t, math.IsNaN(float64(v)))
	}
}

func TestLayer_Errors(t *testing.T) {
	backend := cpu.New()
	hyper := fixedHyper(t, []float32{0, 3}, 2, []float32{1}, nil)
	input := tensor.Ones(tensor.Shape{1, 5}, backend)

	t.Run("construction", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  sparse.LayerConfig
			kind error
		}{
			{"sparse bias", sparse.LayerConfig{InRank: 1, OutSize: []int{1}, Bias: sparse.BiasSparse}, sparse.ErrUnimplemented},
			{"unknown bias", sparse.LayerConfig{InRank: 1, OutSize: []int{1}, Bias: sparse.BiasType(9)}, sparse.ErrConfiguration},
			{"no input rank", sparse.LayerConfig{OutSize: []int{1}}, sparse.ErrConfiguration},
			{"no output", sparse.LayerConfig{InRank: 1}, sparse.ErrConfiguration},
			{"learn cols without template", sparse.LayerConfig{InRank: 1, OutSize: []int{1}, LearnCols: []int{1}}, sparse.ErrConfiguration},
			{"template rank", sparse.LayerConfig{InRank: 1, OutSize: []int{1}, Template: [][]int64{{0}}, LearnCols: []int{1}}, sparse.ErrConfiguration},
			{"region length", sparse.LayerConfig{InRank: 1, OutSize: []int{1}, RAdditional: 2, Region: []int{2}}, sparse.ErrConfiguration},
			{"negative chunk", sparse.LayerConfig{InRank: 1, OutSize: []int{1}, ChunkSize: -1}, sparse.ErrConfiguration},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := sparse.NewLayer[*cpu.CPUBackend](tt.cfg, hyper, backend)
				require.ErrorIs(t, err, tt.kind)

				var layerErr *sparse.LayerError
				require.ErrorAs(t, err, &layerErr)
				assert.Equal(t, "new layer", layerErr.Op)
			})
		}

		_, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}}, nil, backend)
		require.ErrorIs(t, err, sparse.ErrConfiguration)
	})

	t.Run("batch mismatch", func(t *testing.T) {
		single := sparse.HyperFunc[*cpu.CPUBackend](func(input *cpuTensor) (sparse.HyperOutput[*cpu.CPUBackend], error) {
			one := floats(t, []float32{1, 1}, tensor.Shape{1, 1, 2}, backend)
			return sparse.HyperOutput[*cpu.CPUBackend]{Means: one, Sigmas: one, Values: floats(t, []float32{1}, tensor.Shape{1, 1}, backend)}, nil
		})
		layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}}, single, backend)
		require.NoError(t, err)

		_, err = layer.ForwardWith(tensor.Ones(tensor.Shape{2, 5}, backend))
		require.ErrorIs(t, err, sparse.ErrContractViolation)
		assert.Contains(t, err.Error(), "input batch size (2) should match parameter batch size (1)")
	})

	t.Run("chunk size", func(t *testing.T) {
		layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}, ChunkSize: 2}, hyper, backend)
		require.NoError(t, err)
		_, err = layer.ForwardWith(input)
		require.ErrorIs(t, err, sparse.ErrContractViolation)
	})

	t.Run("gradient range bounds", func(t *testing.T) {
		layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}}, hyper, backend)
		require.NoError(t, err)
		_, err = layer.ForwardWith(input, sparse.WithGradientRange(0, 2))
		require.ErrorIs(t, err, sparse.ErrContractViolation)
	})

	t.Run("input rank", func(t *testing.T) {
		layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}}, hyper, backend)
		require.NoError(t, err)
		_, err = layer.ForwardWith(tensor.Ones(tensor.Shape{1, 5, 1}, backend))
		require.ErrorIs(t, err, sparse.ErrContractViolation)
		assert.Panics(t, func() { layer.Forward(tensor.Ones(tensor.Shape{1, 5, 1}, backend)) })
	})

	t.Run("bias mismatch", func(t *testing.T) {
		withBias := fixedHyper(t, []float32{0, 3}, 2, []float32{1}, []float32{1})
		layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}}, withBias, backend)
		require.NoError(t, err)
		_, err = layer.ForwardWith(input)
		require.ErrorIs(t, err, sparse.ErrContractViolation)

		dense, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}, Bias: sparse.BiasDense}, hyper, backend)
		require.NoError(t, err)
		_, err = dense.ForwardWith(input)
		require.ErrorIs(t, err, sparse.ErrContractViolation)
	})

	t.Run("non-finite values", func(t *testing.T) {
		nan := fixedHyper(t, []float32{0, 3}, 2, []float32{float32(math.NaN())}, nil)
		layer, err := sparse.NewLayer[*cpu.CPUBackend](sparse.LayerConfig{InRank: 1, OutSize: []int{1}}, nan, backend)
		require.NoError(t, err)
		layer.SetTraining(false)
		_, err = layer.ForwardWith(input)
		require.ErrorIs(t, err, sparse.ErrNonFinite)
	})

	t.Run("hyper error", func(t *testing.T) {
		nas, err := sparse.NewNASLayer(sparse.NASConfig{InSize: []int{4}, OutSize: []int{1}, K: 1, Seed: 1}, backend)
		require.NoError(t, err)
		_, err = nas.ForwardWith(input)
		require.ErrorIs(t, err, sparse.ErrContractViolation)
	})
}
