package sparse

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/nn"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// NASConfig configures a NASLayer.
type NASConfig struct {
	InSize  []int // Input shape, batch excluded
	OutSize []int // Output shape, batch excluded
	K       int   // Number of continuous index tuples

	SigmaScale float32 // Multiplies the transformed sigmas; 0 means 1
	MinSigma   float32 // Added to the sigmas before scaling by the tensor size
	FixValues  bool    // Use a constant value of 1 for every tuple instead of learning it
	HasBias    bool    // Add a learned dense bias of shape OutSize
	Clamp      bool    // Clamp the means into range instead of squashing them with a sigmoid

	GAdditional int
	RAdditional int
	Region      []int
	ChunkSize   int
	Duplicates  DuplicatePolicy

	// Seed drives parameter initialisation and candidate sampling. 0 draws a seed from the
	// process-wide source; Seed reports the one in use.
	Seed   uint64
	Logger logger.Logger
}

// NASLayer is a sparse layer whose tuples are free parameters, shared by every input.
//
// Parameters:
//   - means: (K, rank) raw tuple coordinates
//   - sigmas: (K) raw spreads
//   - values: (K) tuple values (a constant buffer when FixValues)
//   - bias: OutSize (only when HasBias)
//
// Example:
//
//	layer, err := sparse.NewNASLayer(sparse.NASConfig{
//	    InSize: []int{4}, OutSize: []int{2}, K: 3, GAdditional: 2, Seed: 1,
//	}, backend)
//	out, err := layer.ForwardWith(input) // input (b, 4) → out (b, 2)
type NASLayer[B tensor.Backend] struct {
	*Layer[B]

	config NASConfig
	size   []int

	means  *nn.Parameter[B]
	sigmas *nn.Parameter[B]
	values *nn.Parameter[B]
	bias   *nn.Parameter[B]
}

// NewNASLayer creates a NASLayer with N(0, 1) initialised parameters.
func NewNASLayer[B tensor.Backend](cfg NASConfig, backend B) (*NASLayer[B], error) {
	const op = "new nas layer"
	switch {
	case cfg.K < 1:
		return nil, newError(ErrConfiguration, op, "k must be positive, got %d", cfg.K)
	case len(cfg.InSize) == 0:
		return nil, newError(ErrConfiguration, op, "input size is empty")
	case cfg.SigmaScale < 0:
		return nil, newError(ErrConfiguration, op, "sigma scale %v is negative", cfg.SigmaScale)
	case cfg.MinSigma < 0:
		return nil, newError(ErrConfiguration, op, "min sigma %v is negative", cfg.MinSigma)
	}
	for _, d := range cfg.InSize {
		if d < 1 {
			return nil, newError(ErrConfiguration, op, "input size %v has a non-positive dimension", cfg.InSize)
		}
	}
	if cfg.SigmaScale == 0 {
		cfg.SigmaScale = 1
	}
	if cfg.Seed == 0 {
		cfg.Seed = rand.Uint64()
	}
	cfg.InSize = slices.Clone(cfg.InSize)
	cfg.OutSize = slices.Clone(cfg.OutSize)
	cfg.Region = slices.Clone(cfg.Region)

	bias := BiasNone
	if cfg.HasBias {
		bias = BiasDense
	}

	n := &NASLayer[B]{
		config: cfg,
		size:   append(slices.Clone(cfg.OutSize), cfg.InSize...),
	}
	layer, err := NewLayer[B](LayerConfig{
		InRank:      len(cfg.InSize),
		OutSize:     cfg.OutSize,
		ChunkSize:   cfg.ChunkSize,
		GAdditional: cfg.GAdditional,
		RAdditional: cfg.RAdditional,
		Region:      cfg.Region,
		Bias:        bias,
		Duplicates:  cfg.Duplicates,
		Seed:        cfg.Seed,
		Logger:      cfg.Logger,
	}, n, backend)
	if err != nil {
		return nil, err
	}
	n.Layer = layer

	rng := rand.New(rand.NewPCG(cfg.Seed, initStream))
	n.means = nn.NewParameter("means", nn.Normal(tensor.Shape{cfg.K, len(n.size)}, rng, backend))
	n.sigmas = nn.NewParameter("sigmas", nn.Normal(tensor.Shape{cfg.K}, rng, backend))
	if cfg.FixValues {
		n.values = nn.NewParameter("values", nn.Ones(tensor.Shape{cfg.K}, backend))
	} else {
		n.values = nn.NewParameter("values", nn.Normal(tensor.Shape{cfg.K}, rng, backend))
	}
	if cfg.HasBias {
		n.bias = nn.NewParameter("bias", nn.Normal(tensor.Shape(cfg.OutSize), rng, backend))
	}
	return n, nil
}

// Hyper expands the free parameters over the batch and transforms them into tensor
// coordinates. It implements the Hyper interface.
func (n *NASLayer[B]) Hyper(input *tensor.Tensor[float32, B]) (HyperOutput[B], error) {
	shape := input.Shape()
	if len(shape) < 1 || !shape[1:].Equal(n.config.InSize) {
		return HyperOutput[B]{}, newError(ErrContractViolation, "hyper", "input %v does not match input size %v",
			shape, n.config.InSize)
	}

	b, k, r := shape[0], n.config.K, len(n.size)
	means := n.means.Tensor().Reshape(1, k, r).Expand(tensor.Shape{b, k, r})
	sigmas := n.sigmas.Tensor().Reshape(1, k).Expand(tensor.Shape{b, k})
	values := n.values.Tensor().Reshape(1, k).Expand(tensor.Shape{b, k})

	means, err := TransformMeans(means, n.size, n.config.Clamp)
	if err != nil {
		return HyperOutput[B]{}, err
	}
	sigmas, err = TransformSigmas(sigmas, n.size, n.config.MinSigma)
	if err != nil {
		return HyperOutput[B]{}, err
	}
	if n.config.SigmaScale != 1 {
		sigmas = sigmas.MulScalar(n.config.SigmaScale)
	}

	out := HyperOutput[B]{Means: means, Sigmas: sigmas, Values: values}
	if n.bias != nil {
		out.Bias = n.bias.Tensor()
	}
	return out, nil
}

// Parameters returns the trainable parameters: means, sigmas, values (unless fixed) and bias.
func (n *NASLayer[B]) Parameters() []*nn.Parameter[B] {
	params := []*nn.Parameter[B]{n.means, n.sigmas}
	if !n.config.FixValues {
		params = append(params, n.values)
	}
	if n.bias != nil {
		params = append(params, n.bias)
	}
	return params
}

// Config returns the configuration the layer was built with, including the seed in use.
func (n *NASLayer[B]) Config() NASConfig {
	cfg := n.config
	cfg.InSize = slices.Clone(cfg.InSize)
	cfg.OutSize = slices.Clone(cfg.OutSize)
	cfg.Region = slices.Clone(cfg.Region)
	return cfg
}

// Density returns the fraction of the dense weight tensor the layer's tuples cover:
// K / prod(out_size ++ in_size).
func (n *NASLayer[B]) Density() float64 {
	total := 1
	for _, d := range n.size {
		total *= d
	}
	return float64(n.config.K) / float64(total)
}

// StateDict returns the layer's tensors by name. The values buffer is included even when
// values are fixed. The returned tensors share storage with the layer.
func (n *NASLayer[B]) StateDict() map[string]*tensor.RawTensor {
	state := map[string]*tensor.RawTensor{
		"means":  n.means.Tensor().Raw(),
		"sigmas": n.sigmas.Tensor().Raw(),
		"values": n.values.Tensor().Raw(),
	}
	if n.bias != nil {
		state["bias"] = n.bias.Tensor().Raw()
	}
	return state
}

// LoadStateDict copies tensors from state into the layer. state must hold exactly the
// names and shapes StateDict returns.
func (n *NASLayer[B]) LoadStateDict(state map[string]*tensor.RawTensor) error {
	const op = "load state dict"
	current := n.StateDict()
	for name := range state {
		if _, ok := current[name]; !ok {
			return newError(ErrConfiguration, op, "unexpected tensor %q", name)
		}
	}
	for name, dst := range current {
		src, ok := state[name]
		if !ok {
			return newError(ErrConfiguration, op, "missing tensor %q", name)
		}
		if src.DType() != tensor.Float32 || !src.Shape().Equal(dst.Shape()) {
			return newError(ErrShape, op, "tensor %q is %s%v, want float32%v", name, src.DType(), src.Shape(), dst.Shape())
		}
	}
	for name, dst := range current {
		copy(dst.Data(), state[name].Data())
	}
	return nil
}

// String returns a one-line description of the layer.
func (n *NASLayer[B]) String() string {
	return fmt.Sprintf("NASLayer(in=%v, out=%v, k=%d, bias=%t, density=%.4g)",
		n.config.InSize, n.config.OutSize, n.config.K, n.config.HasBias, n.Density())
}
