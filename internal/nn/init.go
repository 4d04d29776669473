package nn

import (
	"math/rand/v2"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Normal creates a tensor with values drawn from N(0, 1).
//
// The sparse layer initialises means, sigmas, values and bias this way. The generator is
// explicit so two layers built with the same seed start from identical parameters.
func Normal[B tensor.Backend](shape tensor.Shape, rng *rand.Rand, backend B) *tensor.Tensor[float32, B] {
	return tensor.Randn(shape, rng, backend)
}

// Ones creates a tensor filled with ones.
func Ones[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Ones(shape, backend)
}
