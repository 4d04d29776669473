package nn

import (
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Sigmoid squashes its input into (0, 1) element-wise. It gates the output of a sparse
// layer when the targets are probabilities.
type Sigmoid[B tensor.Backend] struct{}

// NewSigmoid returns a Sigmoid.
func NewSigmoid[B tensor.Backend]() *Sigmoid[B] { return &Sigmoid[B]{} }

// Forward returns 1 / (1 + exp(-x)).
func (*Sigmoid[B]) Forward(x *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return x.Sigmoid()
}

// Parameters returns nil.
func (*Sigmoid[B]) Parameters() []*Parameter[B] { return nil }
