package sparse

import (
	"github.com/born-ml/sparsehyper/internal/nn"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// HyperOutput is what a hyper function supplies for one forward pass.
//
// Shapes (n tuples, r learnable columns):
//   - Means: (batch, n, r), already transformed into tensor coordinates
//   - Sigmas: (batch, n, r), already transformed (positive)
//   - Values: (batch, n)
//   - Bias: out_size, only with BiasDense
type HyperOutput[B tensor.Backend] struct {
	Means  *tensor.Tensor[float32, B]
	Sigmas *tensor.Tensor[float32, B]
	Values *tensor.Tensor[float32, B]
	Bias   *tensor.Tensor[float32, B]
}

// Hyper supplies the continuous index tuples of a sparse layer for a given input.
//
// NASLayer implements Hyper from free parameters. A hypernetwork can implement it by
// deriving the tuples from the input.
type Hyper[B tensor.Backend] interface {
	Hyper(input *tensor.Tensor[float32, B]) (HyperOutput[B], error)
}

// HyperFunc adapts an ordinary function to the Hyper interface.
type HyperFunc[B tensor.Backend] func(input *tensor.Tensor[float32, B]) (HyperOutput[B], error)

// Hyper calls f(input).
func (f HyperFunc[B]) Hyper(input *tensor.Tensor[float32, B]) (HyperOutput[B], error) {
	return f(input)
}

// parameterOwner is implemented by hypers that own trainable parameters.
type parameterOwner[B tensor.Backend] interface {
	Parameters() []*nn.Parameter[B]
}
