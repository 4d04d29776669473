package serialization

import (
	"time"

	"github.com/goccy/go-json"
)

// Format constants.
const (
	MagicBytes      = "SPLK"
	FormatVersion   = 1
	HeaderAlignment = 64   // Tensor data starts on a 64-byte boundary
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size (32 bytes)
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// Flags for the .spl format.
const (
	FlagHasMetadata uint32 = 1 << 0 // bit 0: custom metadata included
	FlagTrained     uint32 = 1 << 1 // bit 1: at least one optimizer step was taken
)

// Header represents the JSON header of a .spl file.
type Header struct {
	FormatVersion int               `json:"format_version"`     // Version of the .spl format
	Version       string            `json:"version"`            // Version of the program that wrote the file
	LayerType     string            `json:"layer_type"`         // Type of layer (e.g. "NASLayer")
	RunID         string            `json:"run_id"`             // Identifier of the run that created the layer
	CreatedAt     time.Time         `json:"created_at"`         // When the file was written
	Config        json.RawMessage   `json:"config,omitempty"`   // Layer configuration as JSON
	Training      *TrainingMeta     `json:"training,omitempty"` // Training progress (optional)
	Tensors       []TensorMeta      `json:"tensors"`            // Tensor metadata
	Metadata      map[string]string `json:"metadata,omitempty"` // Custom metadata
}

// TrainingMeta records the training progress of a checkpoint.
type TrainingMeta struct {
	Step      int64   `json:"step"`      // Number of optimizer steps taken
	Loss      float64 `json:"loss"`      // Loss of the last step
	Optimizer string  `json:"optimizer"` // Optimizer name ("sgd", "adam")
	LR        float32 `json:"lr"`        // Learning rate of the last step
}

// TensorMeta describes a tensor in the .spl file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "means")
	DType  string `json:"dtype"`  // Data type (e.g., "float32")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section (bytes from start of tensor data)
	Size   int64  `json:"size"`   // Size in bytes
}

// padding returns the number of zero bytes between a JSON header of headerSize bytes and
// the tensor data.
func padding(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return (HeaderAlignment - pos%HeaderAlignment) % HeaderAlignment
}
