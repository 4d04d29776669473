package sparse_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

func TestContract_MatchesDense(t *testing.T) {
	backend := cpu.New()
	rng := rand.New(rand.NewPCG(5, 6))
	const batch, rows, cols, entries = 3, 4, 6, 10

	idx := make([]int64, batch*entries*2)
	vals := make([]float32, batch*entries)
	xs := make([]float32, batch*cols)
	for i := range idx {
		if i%2 == 0 {
			idx[i] = rng.Int64N(rows)
		} else {
			idx[i] = rng.Int64N(cols)
		}
	}
	for i := range vals {
		vals[i] = float32(rng.NormFloat64())
	}
	for i := range xs {
		xs[i] = float32(rng.NormFloat64())
	}

	out, err := sparse.Contract(
		ints(t, idx, tensor.Shape{batch, entries, 2}, backend),
		floats(t, vals, tensor.Shape{batch, entries}, backend),
		tensor.Shape{rows, cols},
		floats(t, xs, tensor.Shape{batch, cols}, backend),
	)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{batch, rows}, out.Shape())

	for b := 0; b < batch; b++ {
		w := mat.NewDense(rows, cols, nil)
		for n := 0; n < entries; n++ {
			i, j := int(idx[(b*entries+n)*2]), int(idx[(b*entries+n)*2+1])
			w.Set(i, j, w.At(i, j)+float64(vals[b*entries+n]))
		}
		x := mat.NewVecDense(cols, nil)
		for j := 0; j < cols; j++ {
			x.SetVec(j, float64(xs[b*cols+j]))
		}
		var want mat.VecDense
		want.MulVec(w, x)

		for i := 0; i < rows; i++ {
			assert.InDelta(t, want.AtVec(i), out.At(b, i), 1e-4, "batch %d row %d", b, i)
		}
	}
}

func TestContract_HigherOrderInput(t *testing.T) {
	backend := cpu.New()
	// out (1, 2) from input (1, 2, 2): out[1] = 3 * x[1, 0], out[0] = 2 * x[0, 1] + x[0, 1]
	indices := ints(t, []int64{1, 1, 0, 0, 0, 1, 0, 0, 1}, tensor.Shape{1, 3, 3}, backend)
	values := floats(t, []float32{3, 2, 1}, tensor.Shape{1, 3}, backend)
	input := floats(t, []float32{1, 2, 3, 4}, tensor.Shape{1, 2, 2}, backend)

	out, err := sparse.Contract(indices, values, tensor.Shape{2, 2, 2}, input)
	require.NoError(t, err)
	assert.Equal(t, []float32{6, 9}, out.Data())
}

func TestContract_ClipsOutOfRange(t *testing.T) {
	backend := cpu.New()
	indices := ints(t, []int64{-3, 9}, tensor.Shape{1, 1, 2}, backend)
	values := floats(t, []float32{2}, tensor.Shape{1, 1}, backend)
	input := floats(t, []float32{1, 2, 5}, tensor.Shape{1, 3}, backend)

	out, err := sparse.Contract(indices, values, tensor.Shape{2, 3}, input)
	require.NoError(t, err)
	assert.Equal(t, []float32{10, 0}, out.Data())
}

func TestContract_ShapeErrors(t *testing.T) {
	backend := cpu.New()
	indices := ints(t, []int64{0, 0}, tensor.Shape{1, 1, 2}, backend)
	values := floats(t, []float32{1}, tensor.Shape{1, 1}, backend)
	input := floats(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, backend)

	tests := []struct {
		name string
		run  func() error
	}{
		{"size rank", func() error {
			_, err := sparse.Contract(indices, values, tensor.Shape{2, 3, 1}, input)
			return err
		}},
		{"values", func() error {
			_, err := sparse.Contract(indices, values.Reshape(1, 1, 1), tensor.Shape{2, 3}, input)
			return err
		}},
		{"input extent", func() error {
			_, err := sparse.Contract(indices, values, tensor.Shape{2, 4}, input)
			return err
		}},
		{"batch", func() error {
			_, err := sparse.Contract(indices, values, tensor.Shape{2, 3}, input.Reshape(3, 1))
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.run(), sparse.ErrShape)
		})
	}
}
