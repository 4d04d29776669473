package cpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/parallel"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// raw builds a float32 RawTensor from data.
func raw(t *testing.T, shape tensor.Shape, data ...float32) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Float32, tensor.CPU)
	require.NoError(t, err)
	require.Len(t, data, shape.NumElements())
	copy(r.AsFloat32(), data)
	return r
}

// rawInt builds an int64 RawTensor from data.
func rawInt(t *testing.T, shape tensor.Shape, data ...int64) *tensor.RawTensor {
	t.Helper()
	r, err := tensor.NewRaw(shape, tensor.Int64, tensor.CPU)
	require.NoError(t, err)
	require.Len(t, data, shape.NumElements())
	copy(r.AsInt64(), data)
	return r
}

func TestCPUBackend_New(t *testing.T) {
	backend := New()
	assert.Equal(t, "CPU", backend.Name())
	assert.Equal(t, tensor.CPU, backend.Device())

	seq := New(WithParallel(parallel.Sequential()))
	assert.False(t, seq.parallel.Enabled)
}

func TestCPUBackend_Binary(t *testing.T) {
	backend := New()
	a := raw(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	t.Run("SameShape", func(t *testing.T) {
		b := raw(t, tensor.Shape{2, 3}, 10, 11, 12, 13, 14, 15)
		assert.Equal(t, []float32{11, 13, 15, 17, 19, 21}, backend.Add(a, b).AsFloat32())
		assert.Equal(t, []float32{-9, -9, -9, -9, -9, -9}, backend.Sub(a, b).AsFloat32())
	})

	t.Run("BroadcastRow", func(t *testing.T) {
		b := raw(t, tensor.Shape{3}, 1, 10, 100)
		got := backend.Mul(a, b)
		assert.Equal(t, tensor.Shape{2, 3}, got.Shape())
		assert.Equal(t, []float32{1, 20, 300, 4, 50, 600}, got.AsFloat32())
	})

	t.Run("BroadcastColumn", func(t *testing.T) {
		b := raw(t, tensor.Shape{2, 1}, 2, 4)
		assert.Equal(t, []float32{0.5, 1, 1.5, 1, 1.25, 1.5}, backend.Div(a, b).AsFloat32())
	})

	t.Run("Incompatible", func(t *testing.T) {
		b := raw(t, tensor.Shape{2}, 1, 2)
		assert.Panics(t, func() { backend.Add(a, b) })
	})

	t.Run("WrongDType", func(t *testing.T) {
		b := rawInt(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)
		assert.Panics(t, func() { backend.Add(a, b) })
	})
}

func TestCPUBackend_Unary(t *testing.T) {
	backend := New()
	x := raw(t, tensor.Shape{4}, -2, 0, 1, 30)

	assert.Equal(t, []float32{-4, 0, 2, 60}, backend.MulScalar(x, 2).AsFloat32())
	assert.Equal(t, []float32{-1.5, 0.5, 1.5, 30.5}, backend.AddScalar(x, 0.5).AsFloat32())
	assert.Equal(t, []float32{0, 0, 1, 1}, backend.Clamp(x, 0, 1).AsFloat32())

	exp := backend.Exp(x).AsFloat32()
	assert.InDelta(t, math.Exp(-2), exp[0], 1e-6)
	assert.InDelta(t, 1.0, exp[1], 1e-6)

	sig := backend.Sigmoid(x).AsFloat32()
	assert.InDelta(t, 0.5, sig[1], 1e-6)
	assert.InDelta(t, 1/(1+math.Exp(-1)), sig[2], 1e-6)

	sp := backend.Softplus(x).AsFloat32()
	assert.InDelta(t, math.Log(2), sp[1], 1e-6)
	assert.InDelta(t, math.Log1p(math.Exp(1)), sp[2], 1e-6)
	assert.Equal(t, float32(30), sp[3])

	assert.Panics(t, func() { backend.Clamp(x, 1, 0) })
}

func TestCPUBackend_Reduce(t *testing.T) {
	backend := New()
	x := raw(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	sum := backend.Sum(x)
	assert.Empty(t, sum.Shape())
	assert.Equal(t, []float32{21}, sum.AsFloat32())

	rows := backend.SumDim(x, 1, false)
	assert.Equal(t, tensor.Shape{2}, rows.Shape())
	assert.Equal(t, []float32{6, 15}, rows.AsFloat32())

	cols := backend.SumDim(x, 0, true)
	assert.Equal(t, tensor.Shape{1, 3}, cols.Shape())
	assert.Equal(t, []float32{5, 7, 9}, cols.AsFloat32())

	last := backend.SumDim(x, -1, true)
	assert.Equal(t, tensor.Shape{2, 1}, last.Shape())
}

func TestCPUBackend_Manipulation(t *testing.T) {
	backend := New()
	x := raw(t, tensor.Shape{2, 3}, 1, 2, 3, 4, 5, 6)

	t.Run("Reshape", func(t *testing.T) {
		got := backend.Reshape(x, tensor.Shape{3, 2})
		assert.Equal(t, tensor.Shape{3, 2}, got.Shape())
		got.AsFloat32()[0] = 100
		assert.Equal(t, float32(1), x.AsFloat32()[0], "reshape must copy")
		assert.Panics(t, func() { backend.Reshape(x, tensor.Shape{4}) })
	})

	t.Run("Expand", func(t *testing.T) {
		col := raw(t, tensor.Shape{2, 1}, 7, 8)
		got := backend.Expand(col, tensor.Shape{2, 3})
		assert.Equal(t, []float32{7, 7, 7, 8, 8, 8}, got.AsFloat32())

		idx := rawInt(t, tensor.Shape{2}, 3, 4)
		gotInt := backend.Expand(idx, tensor.Shape{2, 2})
		assert.Equal(t, []int64{3, 4, 3, 4}, gotInt.AsInt64())

		assert.Panics(t, func() { backend.Expand(x, tensor.Shape{3, 3}) })
	})

	t.Run("Narrow", func(t *testing.T) {
		got := backend.Narrow(x, 1, 1, 2)
		assert.Equal(t, tensor.Shape{2, 2}, got.Shape())
		assert.Equal(t, []float32{2, 3, 5, 6}, got.AsFloat32())

		empty := backend.Narrow(x, 1, 3, 0)
		assert.Equal(t, 0, empty.NumElements())

		assert.Panics(t, func() { backend.Narrow(x, 0, 1, 2) })
	})

	t.Run("Cat", func(t *testing.T) {
		y := raw(t, tensor.Shape{2, 1}, 9, 10)
		got := backend.Cat([]*tensor.RawTensor{x, y}, 1)
		assert.Equal(t, tensor.Shape{2, 4}, got.Shape())
		assert.Equal(t, []float32{1, 2, 3, 9, 4, 5, 6, 10}, got.AsFloat32())

		a := rawInt(t, tensor.Shape{1, 2}, 1, 2)
		b := rawInt(t, tensor.Shape{2, 2}, 3, 4, 5, 6)
		gotInt := backend.Cat([]*tensor.RawTensor{a, b}, 0)
		assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, gotInt.AsInt64())

		assert.Panics(t, func() { backend.Cat([]*tensor.RawTensor{x, a}, 0) })
		assert.Panics(t, func() { backend.Cat(nil, 0) })
	})
}
