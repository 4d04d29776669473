package sparse

import "fmt"

// BiasType selects how a sparse layer adds a bias to its output.
type BiasType int

const (
	// BiasNone adds no bias.
	BiasNone BiasType = iota
	// BiasDense adds a dense bias of shape out_size after the contraction.
	BiasDense
	// BiasSparse is reserved for a sparse bias. It is not supported.
	BiasSparse
)

// String returns the bias type name used in configuration files.
func (t BiasType) String() string {
	switch t {
	case BiasNone:
		return "none"
	case BiasDense:
		return "dense"
	case BiasSparse:
		return "sparse"
	default:
		return fmt.Sprintf("BiasType(%d)", int(t))
	}
}

// ParseBiasType parses a bias type name.
func ParseBiasType(s string) (BiasType, error) {
	switch s {
	case "none", "":
		return BiasNone, nil
	case "dense":
		return BiasDense, nil
	case "sparse":
		return BiasSparse, nil
	default:
		return 0, newError(ErrConfiguration, "bias type", "unknown bias type %q", s)
	}
}

// check reports whether the layer can run with this bias type.
func (t BiasType) check(op string) error {
	switch t {
	case BiasNone, BiasDense:
		return nil
	case BiasSparse:
		return newError(ErrUnimplemented, op, "sparse bias is not supported")
	default:
		return newError(ErrConfiguration, op, "unknown bias type %d", int(t))
	}
}
