package sparse

import (
	"math"
	"math/rand/v2"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// TupleGenerator turns continuous index tuples into candidate integer tuples.
//
// Every continuous tuple m yields Candidates() integer tuples, in this order:
//   - 2^Rank neighbours: every floor/ceil combination of m. Row 0 floors every axis, the
//     last row ceils every axis, and the first axis varies slowest.
//   - GAdditional global samples drawn uniformly from [0, bound) on every axis.
//   - RAdditional local samples drawn uniformly from a window of Region[axis] cells around
//     round(m). The window starts at round(m) - Region/2, is clipped at 0 and, when it
//     passes the upper bound, is shifted down to end at the bound. A window wider than
//     the axis is narrowed to the axis.
type TupleGenerator struct {
	Rank        int   // Number of axes of a tuple
	GAdditional int   // Global samples per tuple
	RAdditional int   // Local samples per tuple
	Region      []int // Local window width per axis (len Rank when RAdditional > 0)
}

// Candidates returns the number of integer tuples generated per continuous tuple.
func (g TupleGenerator) Candidates() int {
	return 1<<g.Rank + g.GAdditional + g.RAdditional
}

// Validate checks the generator settings.
func (g TupleGenerator) Validate() error {
	const op = "tuple generator"
	switch {
	case g.Rank < 1:
		return newError(ErrConfiguration, op, "rank must be positive, got %d", g.Rank)
	case g.Rank > 16:
		return newError(ErrConfiguration, op, "rank %d yields too many neighbours", g.Rank)
	case g.GAdditional < 0 || g.RAdditional < 0:
		return newError(ErrConfiguration, op, "sample counts must be >= 0, got global %d, local %d",
			g.GAdditional, g.RAdditional)
	case g.RAdditional > 0 && len(g.Region) != g.Rank:
		return newError(ErrConfiguration, op, "region %v must have one width per learnable column (%d)",
			g.Region, g.Rank)
	}
	for _, w := range g.Region {
		if w < 1 {
			return newError(ErrConfiguration, op, "region widths must be positive, got %v", g.Region)
		}
	}
	return nil
}

// Generate produces the candidate tuples for means of shape (b, c, k, Rank).
//
// bounds holds the exclusive upper bound of every axis. rng drives the global and local
// samples and may be nil only when no samples are requested.
//
// Returns an int64 tensor of shape (b, c, k*Candidates(), Rank): the candidates of each
// continuous tuple are contiguous. The result is not connected to any gradient.
func (g TupleGenerator) Generate(means *tensor.RawTensor, bounds []int, rng *rand.Rand) (*tensor.RawTensor, error) {
	const op = "generate tuples"
	if err := g.Validate(); err != nil {
		return nil, err
	}
	shape := means.Shape()
	if means.DType() != tensor.Float32 || len(shape) != 4 || shape[3] != g.Rank {
		return nil, newError(ErrShape, op, "means %s%v do not have rank %d", means.DType(), shape, g.Rank)
	}
	if len(bounds) != g.Rank {
		return nil, newError(ErrShape, op, "bounds %v do not have rank %d", bounds, g.Rank)
	}
	for _, bound := range bounds {
		if bound < 1 {
			return nil, newError(ErrShape, op, "bounds must be positive, got %v", bounds)
		}
	}
	if rng == nil && g.GAdditional+g.RAdditional > 0 {
		return nil, newError(ErrContractViolation, op, "sampling requested without a random source")
	}

	b, c, k, r := shape[0], shape[1], shape[2], shape[3]
	cands := g.Candidates()
	out, err := tensor.NewRaw(tensor.Shape{b, c, k * cands, r}, tensor.Int64, means.Device())
	if err != nil {
		return nil, err
	}

	mask := floorMask(r)
	src, dst := means.AsFloat32(), out.AsInt64()
	for t := 0; t < b*c*k; t++ {
		m := src[t*r : (t+1)*r]
		rows := dst[t*cands*r : (t+1)*cands*r]

		for j, floors := range mask {
			for a, floor := range floors {
				if floor {
					rows[j*r+a] = int64(math.Floor(float64(m[a])))
				} else {
					rows[j*r+a] = int64(math.Ceil(float64(m[a])))
				}
			}
		}
		rows = rows[len(mask)*r:]

		for j := 0; j < g.GAdditional; j++ {
			for a := 0; a < r; a++ {
				rows[j*r+a] = uniform(rng, 0, bounds[a])
			}
		}
		rows = rows[g.GAdditional*r:]

		for j := 0; j < g.RAdditional; j++ {
			for a := 0; a < r; a++ {
				lower, width := localWindow(m[a], g.Region[a], bounds[a])
				rows[j*r+a] = uniform(rng, lower, width)
			}
		}
	}
	return out, nil
}

// GenerateIntegerTuples is Generate for typed tensors.
func GenerateIntegerTuples[B tensor.Backend](
	means *tensor.Tensor[float32, B], bounds []int, g TupleGenerator, rng *rand.Rand,
) (*tensor.Tensor[int64, B], error) {
	raw, err := g.Generate(means.Raw(), bounds, rng)
	if err != nil {
		return nil, err
	}
	return tensor.New[int64](raw, means.Backend()), nil
}

// floorMask lists every floor/ceil combination of rank axes. true means floor.
func floorMask(rank int) [][]bool {
	rows := make([][]bool, 1<<rank)
	for j := range rows {
		rows[j] = make([]bool, rank)
		for a := 0; a < rank; a++ {
			rows[j][a] = (j>>(rank-1-a))&1 == 0
		}
	}
	return rows
}

// localWindow returns the first cell and width of the local sampling window of an axis.
//
// The window starts at the integer round(mean) - width/2 and never exceeds the axis. A float
// start of round(mean) - region/2 truncated toward zero would reach one cell further for odd
// regions and could begin below zero when region > bound; both are clamped here instead.
func localWindow(mean float32, region, bound int) (lower, width int) {
	width = min(region, bound)
	lower = int(math.RoundToEven(float64(mean))) - width/2
	if lower < 0 {
		lower = 0
	}
	if lower+width > bound {
		lower = bound - width
	}
	return lower, width
}

// uniform draws an integer from [lower, lower+width).
func uniform(rng *rand.Rand, lower, width int) int64 {
	u := rng.Float64() * (1.0 - Epsilon)
	return int64(lower) + int64(math.Floor(u*float64(width)))
}

// roundTuples rounds float32 coordinates to the nearest integer (ties to even).
func roundTuples(means *tensor.RawTensor) *tensor.RawTensor {
	out := tensor.MustNewRaw(means.Shape(), tensor.Int64, means.Device())
	dst := out.AsInt64()
	for i, v := range means.AsFloat32() {
		dst[i] = int64(math.RoundToEven(float64(v)))
	}
	return out
}
