package sparse

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Densities computes the unnormalised Gaussian weight of every candidate point under every
// continuous tuple of the same context:
//
//	out[b, c, i, k] = exp(-0.5 * sum_r (p[b,c,i,r] - m[b,c,k,r])^2 / (Epsilon + sigma[b,c,k,r]))
//
// Parameters:
//   - points: (b, c, i, r) candidate integer tuples as float32
//   - means, sigmas: (b, c, k, r)
//
// Returns (b, c, i, k). Gradients flow to means and sigmas.
func Densities[B tensor.Backend](points, means, sigmas *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	ps, ms := points.Shape(), means.Shape()
	if len(ps) != 4 || len(ms) != 4 || ps[0] != ms[0] || ps[1] != ms[1] || ps[3] != ms[3] {
		return nil, newError(ErrShape, "densities", "points %v incompatible with means %v", ps, ms)
	}
	if !ms.Equal(sigmas.Shape()) {
		return nil, newError(ErrShape, "densities", "sigmas %v differ from means %v", sigmas.Shape(), ms)
	}

	b := means.Backend()
	return tensor.New[float32](b.Densities(points.Raw(), means.Raw(), sigmas.Raw(), Epsilon), b), nil
}

// DuplicatePolicy selects which rows of a group of identical candidate tuples are zeroed.
type DuplicatePolicy int

const (
	// DuplicatesZeroAll flags every occurrence of a tuple that appears more than once,
	// including the first. A tuple whose candidates all collide ends up with zero weight
	// and contributes nothing. This is the default.
	DuplicatesZeroAll DuplicatePolicy = iota

	// DuplicatesKeepFirst flags every occurrence of a tuple except the first one in
	// candidate order. Opt-in only.
	DuplicatesKeepFirst
)

// String returns the policy name used in configuration files.
func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicatesZeroAll:
		return "zero-all"
	case DuplicatesKeepFirst:
		return "keep-first"
	default:
		return fmt.Sprintf("DuplicatePolicy(%d)", int(p))
	}
}

// ParseDuplicatePolicy parses a policy name. The empty string selects DuplicatesZeroAll.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "zero-all":
		return DuplicatesZeroAll, nil
	case "keep-first":
		return DuplicatesKeepFirst, nil
	default:
		return 0, newError(ErrConfiguration, "duplicate policy", "unknown policy %q", s)
	}
}

// Duplicates marks candidate tuples that repeat within their context.
//
// indices has shape (b, c, i, r); tuples are compared coordinate by coordinate. The result
// has shape (b, c, i) and is true for rows whose density must be zeroed under policy.
func Duplicates[B tensor.Backend](indices *tensor.Tensor[int64, B], policy DuplicatePolicy) (*tensor.Tensor[bool, B], error) {
	shape := indices.Shape()
	if len(shape) != 4 {
		return nil, newError(ErrShape, "duplicates", "indices %v must be (batch, contexts, candidates, rank)", shape)
	}

	b, c, n, r := shape[0], shape[1], shape[2], shape[3]
	mask := tensor.Zeros[bool](tensor.Shape{b, c, n}, indices.Backend())
	data, flags := indices.Raw().Data(), mask.Data()
	rowBytes := r * tensor.Int64.Size()

	for ctx := 0; ctx < b*c; ctx++ {
		first := make(map[string]int, n)
		for i := 0; i < n; i++ {
			row := ctx*n + i
			key := string(data[row*rowBytes : (row+1)*rowBytes])
			prev, seen := first[key]
			if !seen {
				first[key] = row
				continue
			}
			flags[row] = true
			if policy == DuplicatesZeroAll {
				flags[prev] = true
			}
		}
	}
	return mask, nil
}

// MaskDuplicates returns props (b, c, i, k) with every row flagged in dups (b, c, i) set to
// zero. props itself is left untouched.
func MaskDuplicates[B tensor.Backend](props *tensor.Tensor[float32, B], dups *tensor.Tensor[bool, B]) *tensor.Tensor[float32, B] {
	shape := props.Shape()
	keep := tensor.Ones(tensor.Shape{shape[0], shape[1], shape[2], 1}, props.Backend())
	data := keep.Data()
	for i, dup := range dups.Data() {
		if dup {
			data[i] = 0
		}
	}
	return props.Mul(keep)
}

// NormalizeContexts divides props (b, c, i, k) by their sum over the candidate axis i, so
// the weights each continuous tuple spreads over its context sum to one.
//
// A tuple whose weights are all zero keeps zero weights instead of producing NaN. The
// second result counts such degenerate tuples.
func NormalizeContexts[B tensor.Backend](props *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], int) {
	shape := props.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("normalize contexts: props %v must be (batch, contexts, candidates, tuples)", shape))
	}
	n, k := shape[2], shape[3]

	degenerate := 0
	data := props.Data()
	for ctx := 0; ctx < shape[0]*shape[1]; ctx++ {
		for j := 0; j < k; j++ {
			var sum float32
			for i := 0; i < n; i++ {
				sum += data[(ctx*n+i)*k+j]
			}
			if sum == 0 {
				degenerate++
			}
		}
	}

	b := props.Backend()
	return tensor.New[float32](b.NormalizeDim(props.Raw(), 2), b), degenerate
}
