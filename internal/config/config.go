// Package config loads the YAML description of a sparse layer and the CLI runtime defaults.
//
// Example file:
//
//	layer:
//	  in_size: [16]
//	  out_size: [8]
//	  k: 12
//	  gadditional: 4
//	  radditional: 2
//	  region: [2, 2]
//	  bias: true
//	runtime:
//	  log_level: debug
//	  optimizer: adam
//	  lr: 0.01
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/sparse"
)

// File is the top-level configuration document.
type File struct {
	Layer   Layer   `yaml:"layer"`
	Runtime Runtime `yaml:"runtime"`
}

// Layer describes a NAS layer. It is also stored as JSON in checkpoint headers.
type Layer struct {
	InSize  []int `yaml:"in_size" json:"in_size"`
	OutSize []int `yaml:"out_size" json:"out_size"`
	K       int   `yaml:"k" json:"k"`

	SigmaScale float32 `yaml:"sigma_scale" json:"sigma_scale,omitempty"`
	MinSigma   float32 `yaml:"min_sigma" json:"min_sigma,omitempty"`
	FixValues  bool    `yaml:"fix_values" json:"fix_values,omitempty"`
	Bias       bool    `yaml:"bias" json:"bias,omitempty"`
	Clamp      bool    `yaml:"clamp" json:"clamp,omitempty"`

	GAdditional int    `yaml:"gadditional" json:"gadditional,omitempty"`
	RAdditional int    `yaml:"radditional" json:"radditional,omitempty"`
	Region      []int  `yaml:"region" json:"region,omitempty"`
	ChunkSize   int    `yaml:"chunk_size" json:"chunk_size,omitempty"`
	Duplicates  string `yaml:"duplicates" json:"duplicates,omitempty"`

	Seed uint64 `yaml:"seed" json:"seed,omitempty"`
}

// Runtime holds CLI defaults. Pointer fields distinguish "not set" from zero values.
type Runtime struct {
	LogLevel  string   `yaml:"log_level"`
	LogFormat string   `yaml:"log_format"`
	Seed      *uint64  `yaml:"seed"` // Sampling seed for forward passes
	Optimizer string   `yaml:"optimizer"`
	LR        *float32 `yaml:"lr"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (File, error) {
	//nolint:gosec // G304: configuration paths come from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates a YAML document. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return File{}, fmt.Errorf("parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate reports every problem in the file.
func (f File) Validate() error {
	return errors.Join(f.Layer.Validate(), f.Runtime.Validate())
}

// Validate reports every problem in the layer description.
func (l Layer) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("layer: "+format, args...))
	}

	if len(l.InSize) == 0 {
		add("in_size is required")
	}
	if len(l.OutSize) == 0 {
		add("out_size is required")
	}
	for _, d := range append(append([]int(nil), l.InSize...), l.OutSize...) {
		if d < 1 {
			add("sizes must be positive, got in_size %v, out_size %v", l.InSize, l.OutSize)
			break
		}
	}
	if l.K < 1 {
		add("k must be positive, got %d", l.K)
	}
	if l.SigmaScale < 0 {
		add("sigma_scale must be >= 0, got %v", l.SigmaScale)
	}
	if l.MinSigma < 0 {
		add("min_sigma must be >= 0, got %v", l.MinSigma)
	}
	if l.GAdditional < 0 || l.RAdditional < 0 {
		add("gadditional and radditional must be >= 0")
	}
	if rank := len(l.InSize) + len(l.OutSize); l.RAdditional > 0 && len(l.Region) != rank {
		add("region needs %d widths when radditional > 0, got %v", rank, l.Region)
	}
	for _, w := range l.Region {
		if w < 1 {
			add("region widths must be positive, got %v", l.Region)
			break
		}
	}
	if l.ChunkSize < 0 {
		add("chunk_size must be >= 0, got %d", l.ChunkSize)
	} else if l.ChunkSize > 0 && l.K > 0 && l.K%l.ChunkSize != 0 {
		add("chunk_size %d does not divide k %d", l.ChunkSize, l.K)
	}
	if _, err := sparse.ParseDuplicatePolicy(l.Duplicates); err != nil {
		add("duplicates: %q is not zero-all or keep-first", l.Duplicates)
	}
	return errors.Join(errs...)
}

// Validate reports every problem in the runtime section.
func (r Runtime) Validate() error {
	var errs []error
	switch r.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("runtime: unknown log_level %q", r.LogLevel))
	}
	switch r.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("runtime: unknown log_format %q", r.LogFormat))
	}
	switch r.Optimizer {
	case "", "sgd", "adam":
	default:
		errs = append(errs, fmt.Errorf("runtime: unknown optimizer %q", r.Optimizer))
	}
	if r.LR != nil && *r.LR <= 0 {
		errs = append(errs, fmt.Errorf("runtime: lr must be positive, got %v", *r.LR))
	}
	return errors.Join(errs...)
}

// NASConfig converts the layer description into a sparse.NASConfig.
func (l Layer) NASConfig(log logger.Logger) (sparse.NASConfig, error) {
	if err := l.Validate(); err != nil {
		return sparse.NASConfig{}, err
	}
	policy, err := sparse.ParseDuplicatePolicy(l.Duplicates)
	if err != nil {
		return sparse.NASConfig{}, err
	}
	return sparse.NASConfig{
		InSize:      l.InSize,
		OutSize:     l.OutSize,
		K:           l.K,
		SigmaScale:  l.SigmaScale,
		MinSigma:    l.MinSigma,
		FixValues:   l.FixValues,
		HasBias:     l.Bias,
		Clamp:       l.Clamp,
		GAdditional: l.GAdditional,
		RAdditional: l.RAdditional,
		Region:      l.Region,
		ChunkSize:   l.ChunkSize,
		Duplicates:  policy,
		Seed:        l.Seed,
		Logger:      log,
	}, nil
}

// FromNASConfig describes an existing layer configuration, including its resolved seed.
func FromNASConfig(cfg sparse.NASConfig) Layer {
	return Layer{
		InSize:      cfg.InSize,
		OutSize:     cfg.OutSize,
		K:           cfg.K,
		SigmaScale:  cfg.SigmaScale,
		MinSigma:    cfg.MinSigma,
		FixValues:   cfg.FixValues,
		Bias:        cfg.HasBias,
		Clamp:       cfg.Clamp,
		GAdditional: cfg.GAdditional,
		RAdditional: cfg.RAdditional,
		Region:      cfg.Region,
		ChunkSize:   cfg.ChunkSize,
		Duplicates:  cfg.Duplicates.String(),
		Seed:        cfg.Seed,
	}
}
