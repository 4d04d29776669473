package sparse

import (
	"errors"
	"fmt"
)

// Error kinds returned by the sparse layer. Use errors.Is to test for them.
var (
	// ErrConfiguration reports invalid construction arguments.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrContractViolation reports misuse detected at call time (mismatched batch sizes,
	// gradient range combined with a template, malformed hyper output).
	ErrContractViolation = errors.New("contract violation")

	// ErrUnimplemented reports a feature that exists in the API but is not supported.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrShape reports tensors whose shapes do not fit an operation.
	ErrShape = errors.New("shape mismatch")

	// ErrNonFinite reports NaN or Inf values about to be contracted.
	ErrNonFinite = errors.New("non-finite values")
)

// LayerError describes a failure in one step of the sparse layer.
type LayerError struct {
	Kind   error  // One of the Err* kinds above
	Op     string // Operation that failed (e.g. "forward", "new layer")
	Detail string // Human-readable description of the condition
}

// Error implements the error interface.
func (e *LayerError) Error() string {
	return fmt.Sprintf("sparse: %s: %s: %v", e.Op, e.Detail, e.Kind)
}

// Unwrap returns the error kind.
func (e *LayerError) Unwrap() error {
	return e.Kind
}

func newError(kind error, op, format string, args ...any) *LayerError {
	return &LayerError{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}
