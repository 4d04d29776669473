// Package densify materialises the weights of small sparse layers as dense gonum matrices,
// for inspection and for checking the sparse contraction against a dense product.
package densify

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// ErrNotMatrix is returned for layers whose weight tensor is not rank 2.
var ErrNotMatrix = errors.New("densify: layer weights are not a matrix")

// Layer is the part of a sparse layer densify needs. *sparse.Layer and *sparse.NASLayer
// implement it.
type Layer[B tensor.Backend] interface {
	ForwardWith(input *tensor.Tensor[float32, B], opts ...sparse.ForwardOption) (*tensor.Tensor[float32, B], error)
	OutSize() []int
	Training() bool
	SetTraining(training bool)
}

// Matrix returns the (out, in) weight matrix of a layer with one output and one input
// dimension, and its bias (nil when the layer adds none).
//
// The layer runs in inference mode against the unit vectors of the input space, so the
// result holds the rounded tuples. The training mode of the layer is restored afterwards.
func Matrix[B tensor.Backend](layer Layer[B], in int, backend B) (*mat.Dense, []float64, error) {
	outSize := layer.OutSize()
	if len(outSize) != 1 || in < 1 {
		return nil, nil, fmt.Errorf("%w: out %v, in %d", ErrNotMatrix, outSize, in)
	}
	rows := outSize[0]

	training := layer.Training()
	layer.SetTraining(false)
	defer layer.SetTraining(training)

	// Row 0 is the zero vector and yields the bias; row j+1 is the unit vector e_j.
	basis := tensor.Zeros[float32](tensor.Shape{in + 1, in}, backend)
	data := basis.Data()
	for j := 0; j < in; j++ {
		data[(j+1)*in+j] = 1
	}
	out, err := layer.ForwardWith(basis)
	if err != nil {
		return nil, nil, fmt.Errorf("densify: %w", err)
	}

	values := out.Data()
	bias := make([]float64, rows)
	for i := range bias {
		bias[i] = float64(values[i])
	}
	w := mat.NewDense(rows, in, nil)
	for j := 0; j < in; j++ {
		for i := 0; i < rows; i++ {
			w.Set(i, j, float64(values[(j+1)*rows+i])-bias[i])
		}
	}

	for _, b := range bias {
		if b != 0 {
			return w, bias, nil
		}
	}
	return w, nil, nil
}

// FromEntries accumulates (row, col, value) entries into a dense (rows, cols) matrix.
// indices holds one (row, col) pair per value; repeated pairs add up.
func FromEntries(indices []int64, values []float32, rows, cols int) (*mat.Dense, error) {
	if len(indices) != 2*len(values) {
		return nil, fmt.Errorf("densify: %d indices for %d values", len(indices), len(values))
	}
	w := mat.NewDense(rows, cols, nil)
	for n, v := range values {
		i, j := int(indices[2*n]), int(indices[2*n+1])
		if i < 0 || i >= rows || j < 0 || j >= cols {
			return nil, fmt.Errorf("densify: entry (%d, %d) outside %dx%d", i, j, rows, cols)
		}
		w.Set(i, j, w.At(i, j)+float64(v))
	}
	return w, nil
}

// Apply computes w·x (+ bias) for every row of a batch.
func Apply(w *mat.Dense, bias []float64, batch [][]float64) [][]float64 {
	rows, _ := w.Dims()
	out := make([][]float64, len(batch))
	for b, x := range batch {
		var y mat.VecDense
		y.MulVec(w, mat.NewVecDense(len(x), x))
		out[b] = make([]float64, rows)
		for i := range out[b] {
			out[b][i] = y.AtVec(i)
			if bias != nil {
				out[b][i] += bias[i]
			}
		}
	}
	return out
}

// NonZero counts the non-zero entries of w.
func NonZero(w *mat.Dense) int {
	rows, cols := w.Dims()
	n := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if w.At(i, j) != 0 {
				n++
			}
		}
	}
	return n
}

// Format renders w for terminal output.
func Format(w *mat.Dense) string {
	return fmt.Sprintf("%.4g", mat.Formatted(w, mat.Squeeze()))
}
