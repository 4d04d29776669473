package sparse

import "math/rand/v2"

// ForwardOption configures a single forward pass.
type ForwardOption func(*forwardOptions)

type forwardOptions struct {
	rng      *rand.Rand
	seed     uint64
	seeded   bool
	from, to int
	ranged   bool
	stats    *ForwardStats
}

// WithSeed samples the candidate tuples of this call from a fresh generator seeded with
// seed. The layer's own generator is not advanced.
func WithSeed(seed uint64) ForwardOption {
	return func(o *forwardOptions) {
		o.seed, o.seeded = seed, true
	}
}

// WithRand samples the candidate tuples of this call from rng.
func WithRand(rng *rand.Rand) ForwardOption {
	return func(o *forwardOptions) {
		o.rng = rng
	}
}

// WithGradientRange restricts sampling and gradients to tuples [from, to) of every context.
// Tuples outside the range are rounded and contribute to the output without a gradient.
// Cannot be combined with a template.
func WithGradientRange(from, to int) ForwardOption {
	return func(o *forwardOptions) {
		o.from, o.to, o.ranged = from, to, true
	}
}

// WithStats fills stats with a summary of the forward pass.
func WithStats(stats *ForwardStats) ForwardOption {
	return func(o *forwardOptions) {
		o.stats = stats
	}
}

// ForwardStats summarises one forward pass.
type ForwardStats struct {
	Training   bool // Whether candidate tuples were sampled
	Contexts   int  // Number of contexts per batch element
	Candidates int  // Integer candidates per sampled tuple (0 in inference)
	Entries    int  // (index, value) pairs contracted per batch element
	Duplicates int  // Candidate rows zeroed as duplicates, over the whole batch
	Degenerate int  // Tuples whose weights were all zero, over the whole batch
}
