package sparse

import (
	"github.com/born-ml/sparsehyper/internal/tensor"
)

const (
	// SigmaBoost is added to raw sigmas before the softplus.
	SigmaBoost = 2.0

	// Epsilon is added to sigmas before division in the density kernel.
	Epsilon = 1e-7
)

// TransformMeans maps raw means (batch, k, rank) into coordinates of a tensor of shape size.
//
// Each value is squashed into [0, 1] by a sigmoid (or a hard clamp when clamp is true) and
// scaled by size[axis]-1, so the result lies in [0, size[axis]-1].
func TransformMeans[B tensor.Backend](means *tensor.Tensor[float32, B], size []int, clamp bool) (*tensor.Tensor[float32, B], error) {
	shape := means.Shape()
	if len(shape) != 3 || shape[2] != len(size) {
		return nil, newError(ErrShape, "transform means", "means %v do not match size %v", shape, size)
	}

	var unit *tensor.Tensor[float32, B]
	if clamp {
		unit = means.Clamp(0, 1)
	} else {
		unit = means.Sigmoid()
	}

	bounds := make([]float32, len(size))
	for i, s := range size {
		bounds[i] = float32(s - 1)
	}
	scale, err := tensor.FromSlice(bounds, tensor.Shape{len(size)}, means.Backend())
	if err != nil {
		return nil, err
	}
	return unit.Mul(scale), nil
}

// TransformSigmas maps raw sigmas (batch, k) to positive spreads (batch, k, rank):
//
//	sigma[b, k, axis] = (softplus(raw[b, k] + SigmaBoost) + minSigma) * size[axis]
func TransformSigmas[B tensor.Backend](sigmas *tensor.Tensor[float32, B], size []int, minSigma float32) (*tensor.Tensor[float32, B], error) {
	shape := sigmas.Shape()
	if len(shape) != 2 || len(size) == 0 {
		return nil, newError(ErrShape, "transform sigmas", "sigmas %v cannot be expanded to size %v", shape, size)
	}
	if minSigma < 0 {
		return nil, newError(ErrConfiguration, "transform sigmas", "min sigma %v is negative", minSigma)
	}

	b, k, r := shape[0], shape[1], len(size)
	positive := sigmas.AddScalar(SigmaBoost).Softplus().AddScalar(minSigma)
	expanded := positive.Reshape(b, k, 1).Expand(tensor.Shape{b, k, r})

	extents := make([]float32, r)
	for i, s := range size {
		extents[i] = float32(s)
	}
	scale, err := tensor.FromSlice(extents, tensor.Shape{r}, sigmas.Backend())
	if err != nil {
		return nil, err
	}
	return expanded.Mul(scale), nil
}
