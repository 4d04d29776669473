// Package optim implements the optimizers that update sparse layer parameters after a
// backward pass.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Example usage:
//
//	optimizer := optim.NewAdam(layer.Parameters(), optim.AdamConfig{LR: 0.01}, backend)
//
//	backend.Tape().StartRecording()
//	out, err := layer.ForwardWith(input)
//	loss := nn.NewMSELoss[Backend]().Forward(out, target)
//	grads := autodiff.Backward(loss, backend)
//
//	optimizer.Step(grads)
//	optimizer.ZeroGrad()
package optim

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/nn"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies gradient updates to all parameters in place.
	//
	// grads is the map returned by autodiff.Backward. Parameters without a gradient
	// are left unchanged.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32
}

// Config is the base configuration for all optimizers.
type Config struct {
	LR float32 // Learning rate
}

// Names of the optimizers accepted by New.
const (
	NameSGD  = "sgd"
	NameAdam = "adam"
)

// New creates the optimizer called name ("sgd" or "adam") with the given learning rate and
// default settings otherwise.
func New[B tensor.Backend](name string, params []*nn.Parameter[B], cfg Config, backend B) (Optimizer, error) {
	switch name {
	case NameSGD:
		return NewSGD(params, SGDConfig{LR: cfg.LR}, backend), nil
	case "", NameAdam:
		return NewAdam(params, AdamConfig{LR: cfg.LR}, backend), nil
	default:
		return nil, fmt.Errorf("optim: unknown optimizer %q (want %s or %s)", name, NameSGD, NameAdam)
	}
}

// getGradient safely retrieves gradient for a parameter.
//
// Returns nil if no gradient is found (parameter wasn't part of computation graph).
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) []float32 {
	if param == nil {
		return nil
	}
	grad, ok := grads[param.Tensor().Raw()]
	if !ok {
		return nil
	}
	if !grad.Shape().Equal(param.Tensor().Shape()) {
		panic(fmt.Sprintf("optim: gradient %v does not match parameter %s %v",
			grad.Shape(), param.Name(), param.Tensor().Shape()))
	}
	return grad.AsFloat32()
}
