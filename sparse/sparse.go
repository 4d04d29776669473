// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package sparse provides learned sparse-tensor layers.
//
// A sparse layer is a linear map whose weight tensor has few non-zero entries. The
// positions of those entries are continuous index tuples that are learned by gradient
// descent: every tuple is spread over nearby integer tuples with Gaussian weights, so the
// loss reaches the tuple coordinates through the weights.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	layer, err := sparse.NewNASLayer(sparse.NASConfig{
//	    InSize: []int{16}, OutSize: []int{8}, K: 32, GAdditional: 2, RAdditional: 2, Region: []int{4, 4},
//	}, backend)
//	if err != nil {
//	    return err
//	}
//	out, err := layer.ForwardWith(input) // input (b, 16) → out (b, 8)
package sparse

import (
	"log/slog"
	"math/rand/v2"

	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Error kinds. Use errors.Is to test for them.
var (
	ErrConfiguration     = sparse.ErrConfiguration
	ErrContractViolation = sparse.ErrContractViolation
	ErrUnimplemented     = sparse.ErrUnimplemented
	ErrShape             = sparse.ErrShape
	ErrNonFinite         = sparse.ErrNonFinite
)

// LayerError describes a failure in one step of a sparse layer.
type LayerError = sparse.LayerError

// Logger is the structured logger layers report to.
type Logger = logger.Logger

// NewLogger creates a Logger writing to handler.
func NewLogger(handler slog.Handler) Logger {
	return logger.New(handler)
}

// BiasType selects how a layer adds a bias.
type BiasType = sparse.BiasType

// Bias types.
const (
	BiasNone   = sparse.BiasNone
	BiasDense  = sparse.BiasDense
	BiasSparse = sparse.BiasSparse
)

// ParseBiasType parses "none", "dense" or "sparse".
func ParseBiasType(s string) (BiasType, error) {
	return sparse.ParseBiasType(s)
}

// DuplicatePolicy selects which of a group of identical candidate tuples are zeroed.
type DuplicatePolicy = sparse.DuplicatePolicy

// Duplicate policies.
const (
	DuplicatesZeroAll   = sparse.DuplicatesZeroAll
	DuplicatesKeepFirst = sparse.DuplicatesKeepFirst
)

// ParseDuplicatePolicy parses "zero-all" (the default, also "") or "keep-first".
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	return sparse.ParseDuplicatePolicy(s)
}

// HyperOutput is what a hyper function supplies for one forward pass.
type HyperOutput[B tensor.Backend] = sparse.HyperOutput[B]

// Hyper supplies the continuous index tuples of a layer for a given input.
type Hyper[B tensor.Backend] = sparse.Hyper[B]

// HyperFunc adapts an ordinary function to the Hyper interface.
type HyperFunc[B tensor.Backend] = sparse.HyperFunc[B]

// LayerConfig describes the geometry and sampling policy of a layer.
type LayerConfig = sparse.LayerConfig

// Layer is a sparse layer driven by a Hyper strategy.
type Layer[B tensor.Backend] = sparse.Layer[B]

// NewLayer validates cfg and creates a layer.
func NewLayer[B tensor.Backend](cfg LayerConfig, hyper Hyper[B], backend B) (*Layer[B], error) {
	return sparse.NewLayer(cfg, hyper, backend)
}

// NASConfig configures a NASLayer.
type NASConfig = sparse.NASConfig

// NASLayer is a sparse layer whose tuples are free parameters.
type NASLayer[B tensor.Backend] = sparse.NASLayer[B]

// NewNASLayer creates a NASLayer with N(0, 1) initialised parameters.
func NewNASLayer[B tensor.Backend](cfg NASConfig, backend B) (*NASLayer[B], error) {
	return sparse.NewNASLayer(cfg, backend)
}

// ForwardOption configures a single forward pass.
type ForwardOption = sparse.ForwardOption

// ForwardStats summarises one forward pass.
type ForwardStats = sparse.ForwardStats

// WithSeed samples the candidates of one call from a generator seeded with seed.
func WithSeed(seed uint64) ForwardOption { return sparse.WithSeed(seed) }

// WithRand samples the candidates of one call from rng.
func WithRand(rng *rand.Rand) ForwardOption { return sparse.WithRand(rng) }

// WithGradientRange restricts sampling and gradients to tuples [from, to) of every context.
func WithGradientRange(from, to int) ForwardOption { return sparse.WithGradientRange(from, to) }

// WithStats fills stats with a summary of the forward pass.
func WithStats(stats *ForwardStats) ForwardOption { return sparse.WithStats(stats) }

// TupleGenerator turns continuous index tuples into candidate integer tuples.
type TupleGenerator = sparse.TupleGenerator

// TransformMeans maps raw means into tensor coordinates.
func TransformMeans[B tensor.Backend](means *tensor.Tensor[float32, B], size []int, clamp bool) (*tensor.Tensor[float32, B], error) {
	return sparse.TransformMeans(means, size, clamp)
}

// TransformSigmas maps raw sigmas to positive spreads scaled by the tensor size.
func TransformSigmas[B tensor.Backend](sigmas *tensor.Tensor[float32, B], size []int, minSigma float32) (*tensor.Tensor[float32, B], error) {
	return sparse.TransformSigmas(sigmas, size, minSigma)
}

// Densities evaluates the Gaussian weight of every candidate tuple.
func Densities[B tensor.Backend](points, means, sigmas *tensor.Tensor[float32, B]) (*tensor.Tensor[float32, B], error) {
	return sparse.Densities(points, means, sigmas)
}

// Contract multiplies a batch of sparse tensors given as (index, value) pairs with input.
func Contract[B tensor.Backend](
	indices *tensor.Tensor[int64, B], values *tensor.Tensor[float32, B], size tensor.Shape, input *tensor.Tensor[float32, B],
) (*tensor.Tensor[float32, B], error) {
	return sparse.Contract(indices, values, size, input)
}
