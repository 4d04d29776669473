package nn

import (
	"fmt"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// MSELoss computes Mean Squared Error loss.
//
// Loss = mean((predictions - targets)²)
//
// The loss is built from recorded tensor operations, so it is differentiable
// when the backend is an autodiff backend.
//
// Example:
//
//	mse := nn.NewMSELoss[Backend]()
//	loss := mse.Forward(layer.Forward(input), targets)
//	grads := autodiff.Backward(loss, backend)
type MSELoss[B tensor.Backend] struct{}

// NewMSELoss creates a new MSE loss function.
func NewMSELoss[B tensor.Backend]() *MSELoss[B] {
	return &MSELoss[B]{}
}

// Forward computes the MSE loss. Returns a scalar tensor.
//
// Panics if predictions and targets differ in shape.
func (m *MSELoss[B]) Forward(predictions, targets *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	if !predictions.Shape().Equal(targets.Shape()) {
		panic(fmt.Sprintf("MSELoss: predictions %v and targets %v must have the same shape",
			predictions.Shape(), targets.Shape()))
	}

	diff := predictions.Sub(targets)
	n := max(predictions.NumElements(), 1)
	return diff.Mul(diff).Sum().MulScalar(1 / float32(n))
}
