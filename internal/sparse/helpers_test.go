package sparse_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

type cpuTensor = tensor.Tensor[float32, *cpu.CPUBackend]

func floats(t *testing.T, data []float32, shape tensor.Shape, b *cpu.CPUBackend) *cpuTensor {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return x
}

func ints(t *testing.T, data []int64, shape tensor.Shape, b *cpu.CPUBackend) *tensor.Tensor[int64, *cpu.CPUBackend] {
	t.Helper()
	x, err := tensor.FromSlice(data, shape, b)
	require.NoError(t, err)
	return x
}

func rawFloats(shape tensor.Shape, data ...float32) *tensor.RawTensor {
	r := tensor.MustNewRaw(shape, tensor.Float32, tensor.CPU)
	copy(r.AsFloat32(), data)
	return r
}
