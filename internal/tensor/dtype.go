// Package tensor provides the core tensor types used by the sparse layer: a low-level
// RawTensor, the generic Tensor facade and the Backend contract that executes operations.
package tensor

// DType is a constraint for supported tensor element types.
//
// Float tensors carry parameters, activations and gradients; int64 tensors carry
// integer index tuples; bool tensors carry masks (e.g. duplicate flags).
type DType interface {
	~float32 | ~int64 | ~bool
}

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
	Int64
	Bool
)

// Size returns the byte size of one element of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32:
		return 4
	case Int64:
		return 8
	case Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns the lower-case name used in logs and checkpoint headers.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, bool) {
	switch s {
	case "float32":
		return Float32, true
	case "int64":
		return Int64, true
	case "bool":
		return Bool, true
	default:
		return 0, false
	}
}

// inferDataType returns the DataType that corresponds to T.
func inferDataType[T DType]() DataType {
	var dummy T
	switch any(dummy).(type) {
	case float32:
		return Float32
	case int64:
		return Int64
	case bool:
		return Bool
	default:
		panic("unsupported type")
	}
}
