// Package sparse implements a learned sparse-tensor layer.
//
// Instead of a dense weight tensor the layer holds a small set of continuous index tuples,
// each with a value and a spread (sigma). Every forward pass turns these tuples into integer
// indices and contracts the resulting sparse tensor against the input, without ever
// materialising the dense tensor.
//
// Forward pipeline (training mode):
//
//	Hyper → TupleGenerator → Duplicates → Densities → NormalizeContexts → blend values
//	      → [template stitch] → Contract → [+ bias]
//
// In inference mode the tuples are simply rounded. The continuous tuples come from a Hyper
// strategy; NASLayer supplies them from free parameters.
package sparse

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/nn"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// PCG stream identifiers; a seed drives independent streams for parameter
// initialisation and for candidate sampling.
const (
	initStream   = 0x5eed_1417
	sampleStream = 0x5eed_5a3e
)

// LayerConfig describes the geometry and sampling policy of a sparse layer.
type LayerConfig struct {
	InRank  int   // Number of input dimensions, batch excluded
	OutSize []int // Output shape, batch excluded

	// Template holds fixed index tuples (one row of length rank per template row). Only
	// the LearnCols columns of each row are generated; the others are copied. nil means
	// every column is learned.
	Template  [][]int64
	LearnCols []int

	ChunkSize   int   // Tuples per context; 0 puts all tuples in one context
	GAdditional int   // Global samples per tuple
	RAdditional int   // Local samples per tuple
	Region      []int // Local window width per learnable column

	Bias       BiasType
	Duplicates DuplicatePolicy

	// Seed seeds the layer's sampling generator. 0 draws a seed from the process-wide source.
	Seed   uint64
	Logger logger.Logger
}

// Layer is a sparse layer driven by a Hyper strategy.
//
// A Layer starts in training mode. It is not safe for concurrent use: forward passes
// advance the layer's random generator.
type Layer[B tensor.Backend] struct {
	cfg       LayerConfig
	rank      int
	learnCols []int
	generator TupleGenerator
	hyper     Hyper[B]
	backend   B
	seed      uint64
	rng       *rand.Rand
	training  bool
	log       logger.Logger
}

// NewLayer validates cfg and creates a sparse layer.
//
// Returns an error wrapping ErrConfiguration for invalid geometry or sampling settings
// and ErrUnimplemented for BiasSparse.
func NewLayer[B tensor.Backend](cfg LayerConfig, hyper Hyper[B], backend B) (*Layer[B], error) {
	const op = "new layer"
	if hyper == nil {
		return nil, newError(ErrConfiguration, op, "hyper is nil")
	}
	if err := cfg.Bias.check(op); err != nil {
		return nil, err
	}
	if cfg.InRank < 1 {
		return nil, newError(ErrConfiguration, op, "input rank must be positive, got %d", cfg.InRank)
	}
	if len(cfg.OutSize) == 0 {
		return nil, newError(ErrConfiguration, op, "output size is empty")
	}
	for _, d := range cfg.OutSize {
		if d < 1 {
			return nil, newError(ErrConfiguration, op, "output size %v has a non-positive dimension", cfg.OutSize)
		}
	}
	if cfg.ChunkSize < 0 {
		return nil, newError(ErrConfiguration, op, "chunk size must be >= 0, got %d", cfg.ChunkSize)
	}
	if cfg.Duplicates != DuplicatesKeepFirst && cfg.Duplicates != DuplicatesZeroAll {
		return nil, newError(ErrConfiguration, op, "unknown duplicate policy %d", int(cfg.Duplicates))
	}

	rank := cfg.InRank + len(cfg.OutSize)
	learnCols, err := resolveLearnCols(cfg.LearnCols, rank)
	if err != nil {
		return nil, err
	}

	if cfg.Template == nil {
		if len(learnCols) != rank {
			return nil, newError(ErrConfiguration, op, "learnable columns %v require a template", cfg.LearnCols)
		}
	} else {
		if len(cfg.Template) == 0 {
			return nil, newError(ErrConfiguration, op, "template has no rows")
		}
		for i, row := range cfg.Template {
			if len(row) != rank {
				return nil, newError(ErrConfiguration, op, "template row %d has %d columns, want rank %d", i, len(row), rank)
			}
		}
	}

	if cfg.Region != nil && len(cfg.Region) != len(learnCols) {
		return nil, newError(ErrConfiguration, op, "region %v should span as many dimensions as there are learnable columns (%d)",
			cfg.Region, len(learnCols))
	}

	generator := TupleGenerator{
		Rank:        len(learnCols),
		GAdditional: cfg.GAdditional,
		RAdditional: cfg.RAdditional,
		Region:      append([]int(nil), cfg.Region...),
	}
	if err := generator.Validate(); err != nil {
		return nil, err
	}

	cfg.OutSize = append([]int(nil), cfg.OutSize...)
	cfg.LearnCols = learnCols
	cfg.Region = generator.Region
	if cfg.Template != nil {
		template := make([][]int64, len(cfg.Template))
		for i, row := range cfg.Template {
			template[i] = append([]int64(nil), row...)
		}
		cfg.Template = template
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Layer[B]{
		cfg:       cfg,
		rank:      rank,
		learnCols: learnCols,
		generator: generator,
		hyper:     hyper,
		backend:   backend,
		seed:      seed,
		rng:       rand.New(rand.NewPCG(seed, sampleStream)),
		training:  true,
		log:       log.With("component", "sparse"),
	}, nil
}

// resolveLearnCols returns the learnable columns, defaulting to every column.
func resolveLearnCols(cols []int, rank int) ([]int, error) {
	if cols == nil {
		all := make([]int, rank)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if len(cols) == 0 {
		return nil, newError(ErrConfiguration, "new layer", "learnable columns are empty")
	}
	seen := make(map[int]bool, len(cols))
	for _, c := range cols {
		if c < 0 || c >= rank || seen[c] {
			return nil, newError(ErrConfiguration, "new layer", "learnable columns %v invalid for rank %d", cols, rank)
		}
		seen[c] = true
	}
	return append([]int(nil), cols...), nil
}

// Rank returns the number of axes of an index tuple (input rank plus output rank).
func (l *Layer[B]) Rank() int { return l.rank }

// OutSize returns the output shape, batch excluded.
func (l *Layer[B]) OutSize() []int { return append([]int(nil), l.cfg.OutSize...) }

// LearnCols returns the generated columns of an index tuple.
func (l *Layer[B]) LearnCols() []int { return append([]int(nil), l.learnCols...) }

// Generator returns the tuple generator of the layer.
func (l *Layer[B]) Generator() TupleGenerator { return l.generator }

// Seed returns the seed of the layer's sampling generator.
func (l *Layer[B]) Seed() uint64 { return l.seed }

// Training reports whether the layer samples candidate tuples.
func (l *Layer[B]) Training() bool { return l.training }

// SetTraining switches between training (sampling) and inference (rounding) mode.
func (l *Layer[B]) SetTraining(training bool) { l.training = training }

// Size returns the dense shape of the weight tensor for input: out_size ++ input.shape[1:].
func (l *Layer[B]) Size(input *tensor.Tensor[float32, B]) tensor.Shape {
	return tensor.Shape(l.cfg.OutSize).Concat(input.Shape()[1:])
}

// LearnableSize returns the extents of the learnable columns for input. Hypers scale their
// means and sigmas to this size.
func (l *Layer[B]) LearnableSize(input *tensor.Tensor[float32, B]) []int {
	return l.Size(input).Select(l.learnCols)
}

// Parameters returns the trainable parameters of the hyper, if it owns any.
func (l *Layer[B]) Parameters() []*nn.Parameter[B] {
	if owner, ok := l.hyper.(parameterOwner[B]); ok {
		return owner.Parameters()
	}
	return nil
}

// Forward implements nn.Module. It panics on error; use ForwardWith to handle errors.
func (l *Layer[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	out, err := l.ForwardWith(input)
	if err != nil {
		panic(err)
	}
	return out
}

// ForwardWith runs one forward pass.
//
// Parameters:
//   - input: (batch, in...) with len(in) == InRank
//   - opts: WithSeed, WithRand, WithGradientRange, WithStats
//
// Returns (batch, out_size...).
func (l *Layer[B]) ForwardWith(input *tensor.Tensor[float32, B], opts ...ForwardOption) (*tensor.Tensor[float32, B], error) {
	const op = "forward"
	var o forwardOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := l.cfg.Bias.check(op); err != nil {
		return nil, err
	}
	if o.ranged && l.cfg.Template != nil {
		return nil, newError(ErrContractViolation, op, "templating and gradient ranges do not work together")
	}
	if input.Device() != l.backend.Device() {
		return nil, newError(ErrContractViolation, op, "input on %s, layer on %s", input.Device(), l.backend.Device())
	}
	if len(input.Shape()) != l.cfg.InRank+1 {
		return nil, newError(ErrContractViolation, op, "input %v does not have rank %d plus batch", input.Shape(), l.cfg.InRank)
	}

	h, err := l.hyper.Hyper(input)
	if err != nil {
		return nil, fmt.Errorf("sparse: hyper: %w", err)
	}
	if err := l.checkHyper(h, input); err != nil {
		return nil, err
	}

	n := h.Means.Shape()[1]
	k := n
	if l.cfg.ChunkSize > 0 {
		k = l.cfg.ChunkSize
	}
	if n%k != 0 {
		return nil, newError(ErrContractViolation, op, "%d tuples cannot be split into contexts of %d", n, k)
	}
	if o.ranged && (o.from < 0 || o.from >= o.to || o.to > k) {
		return nil, newError(ErrContractViolation, op, "gradient range [%d, %d) outside context of %d", o.from, o.to, k)
	}

	stats := ForwardStats{Training: l.training, Contexts: n / k}
	var (
		indices *tensor.RawTensor
		values  *tensor.Tensor[float32, B]
	)
	if l.training {
		indices, values, err = l.sample(h, n/k, k, l.LearnableSize(input), &o, &stats)
		if err != nil {
			return nil, err
		}
	} else {
		indices, values = roundTuples(h.Means.Raw()), h.Values
	}

	for _, v := range values.Data() {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, newError(ErrNonFinite, op, "blended values contain %v", v)
		}
	}

	if l.cfg.Template != nil {
		if indices, err = l.stitch(indices); err != nil {
			return nil, err
		}
	}
	stats.Entries = indices.Shape()[1]

	out, err := Contract(tensor.New[int64](indices, l.backend), values, l.Size(input), input)
	if err != nil {
		return nil, err
	}

	switch l.cfg.Bias {
	case BiasNone:
	case BiasDense:
		out = out.Add(h.Bias)
	case BiasSparse:
		return nil, newError(ErrUnimplemented, op, "sparse bias is not supported")
	}

	l.log.Debug("forward",
		"training", stats.Training,
		"batch", input.Shape()[0],
		"contexts", stats.Contexts,
		"entries", stats.Entries,
		"duplicates", stats.Duplicates,
		"degenerate", stats.Degenerate)
	if o.stats != nil {
		*o.stats = stats
	}
	return out, nil
}

// checkHyper validates the shapes of a hyper output against the layer and input.
func (l *Layer[B]) checkHyper(h HyperOutput[B], input *tensor.Tensor[float32, B]) error {
	const op = "forward"
	if h.Means == nil || h.Sigmas == nil || h.Values == nil {
		return newError(ErrContractViolation, op, "hyper returned nil means, sigmas or values")
	}

	ms := h.Means.Shape()
	if len(ms) != 3 || ms[1] < 1 || ms[2] != len(l.learnCols) {
		return newError(ErrContractViolation, op, "means %v must be (batch, tuples, %d)", ms, len(l.learnCols))
	}
	if !h.Sigmas.Shape().Equal(ms) {
		return newError(ErrContractViolation, op, "sigmas %v must match means %v", h.Sigmas.Shape(), ms)
	}
	if vs := h.Values.Shape(); len(vs) != 2 || vs[0] != ms[0] || vs[1] != ms[1] {
		return newError(ErrContractViolation, op, "values %v must be (%d, %d)", vs, ms[0], ms[1])
	}
	if batch := input.Shape()[0]; batch != ms[0] {
		return newError(ErrContractViolation, op, "input batch size (%d) should match parameter batch size (%d)", batch, ms[0])
	}

	switch l.cfg.Bias {
	case BiasNone:
		if h.Bias != nil {
			return newError(ErrContractViolation, op, "hyper returned a bias for a layer without bias")
		}
	case BiasDense:
		if h.Bias == nil || !h.Bias.Shape().Equal(tensor.Shape(l.cfg.OutSize)) {
			return newError(ErrContractViolation, op, "dense bias must have shape %v", l.cfg.OutSize)
		}
	case BiasSparse:
		return newError(ErrUnimplemented, op, "sparse bias is not supported")
	}
	return nil
}

// sample runs the training pipeline and returns the integer indices (b, entries, r) with
// their blended values (b, entries).
func (l *Layer[B]) sample(
	h HyperOutput[B], c, k int, bounds []int, o *forwardOptions, stats *ForwardStats,
) (*tensor.RawTensor, *tensor.Tensor[float32, B], error) {
	b, r := h.Means.Shape()[0], h.Means.Shape()[2]
	means := h.Means.Reshape(b, c, k, r)
	sigmas := h.Sigmas.Reshape(b, c, k, r)
	values := h.Values.Reshape(b, c, k)

	from, to := 0, k
	if o.ranged {
		from, to = o.from, o.to
	}
	active := to - from
	if active < k {
		means, sigmas = means.Narrow(2, from, active), sigmas.Narrow(2, from, active)
	}
	activeValues := values
	if active < k {
		activeValues = values.Narrow(2, from, active)
	}

	ints, err := l.generator.Generate(means.Raw(), bounds, l.rngFor(o))
	if err != nil {
		return nil, nil, err
	}
	candidates := tensor.New[int64](ints, l.backend)

	dups, err := Duplicates(candidates, l.cfg.Duplicates)
	if err != nil {
		return nil, nil, err
	}
	for _, d := range dups.Data() {
		if d {
			stats.Duplicates++
		}
	}

	props, err := Densities(tensor.New[float32](toFloat(ints), l.backend), means, sigmas)
	if err != nil {
		return nil, nil, err
	}
	props, stats.Degenerate = NormalizeContexts(MaskDuplicates(props, dups))

	// value of candidate i = sum_k props[i, k] * value[k]
	blended := props.Mul(activeValues.Reshape(b, c, 1, active)).SumDim(3, false)

	if active < k {
		rest := outside(values, from, to).Detach()
		restMeans := outside(h.Means.Reshape(b, c, k, r), from, to)
		ints = l.backend.Cat([]*tensor.RawTensor{ints, roundTuples(restMeans.Raw())}, 2)
		blended = tensor.Cat([]*tensor.Tensor[float32, B]{blended, rest}, 2)
	}

	stats.Candidates = l.generator.Candidates()
	entries := ints.Shape()[2]
	return ints.View(tensor.Shape{b, c * entries, r}), blended.Reshape(b, c*entries), nil
}

// rngFor picks the random source of one forward pass.
func (l *Layer[B]) rngFor(o *forwardOptions) *rand.Rand {
	switch {
	case o.rng != nil:
		return o.rng
	case o.seeded:
		return rand.New(rand.NewPCG(o.seed, sampleStream))
	default:
		return l.rng
	}
}

// outside returns the slices of x before from and from to onwards along the tuple axis.
func outside[B tensor.Backend](x *tensor.Tensor[float32, B], from, to int) *tensor.Tensor[float32, B] {
	k := x.Shape()[2]
	var parts []*tensor.Tensor[float32, B]
	if from > 0 {
		parts = append(parts, x.Narrow(2, 0, from))
	}
	if to < k {
		parts = append(parts, x.Narrow(2, to, k-to))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return tensor.Cat(parts, 2)
}

// toFloat converts integer tuples to float32 coordinates.
func toFloat(ints *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustNewRaw(ints.Shape(), tensor.Float32, ints.Device())
	dst := out.AsFloat32()
	for i, v := range ints.AsInt64() {
		dst[i] = float32(v)
	}
	return out
}
