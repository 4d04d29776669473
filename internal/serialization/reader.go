package serialization

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/born-ml/sparsehyper/internal/tensor"
)

// ReaderOptions configures how checkpoints are read.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// Checkpoint is a decoded .spl file.
type Checkpoint struct {
	Header  Header
	Flags   uint32
	Tensors map[string]*tensor.RawTensor // CPU tensors by name
}

// TensorNames returns the tensor names in file order.
func (c *Checkpoint) TensorNames() []string {
	names := make([]string, len(c.Header.Tensors))
	for i, t := range c.Header.Tensors {
		names[i] = t.Name
	}
	return names
}

// Read decodes a checkpoint from r.
func Read(r io.Reader, opts ReaderOptions) (*Checkpoint, error) {
	fixed := make([]byte, FixedHeaderSize)
	if _, err := io.ReadFull(r, fixed); err != nil {
		return nil, truncated("fixed header", err)
	}
	if string(fixed[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}
	if version := binary.LittleEndian.Uint32(fixed[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrUnsupportedVersion, version, FormatVersion)
	}

	flags := binary.LittleEndian.Uint32(fixed[8:12])
	headerSize := binary.LittleEndian.Uint64(fixed[16:24])
	dataSize := binary.LittleEndian.Uint64(fixed[24:32])
	var stored [ChecksumSize]byte
	copy(stored[:], fixed[ChecksumOffset:ChecksumOffset+ChecksumSize])

	if headerSize > MaxHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrHeaderTooLarge, headerSize)
	}
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, truncated("header", err)
	}

	var header Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header JSON: %w", err)
	}
	if err := ValidateHeader(&header, int64(dataSize), opts.ValidationLevel); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	//nolint:gosec // G115: headerSize is bounded by MaxHeaderSize
	if _, err := io.CopyN(io.Discard, r, padding(int64(headerSize))); err != nil {
		return nil, truncated("padding", err)
	}
	data, err := io.ReadAll(io.LimitReader(r, int64(dataSize)))
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}
	if uint64(len(data)) != dataSize {
		return nil, fmt.Errorf("%w: tensor data has %d of %d bytes", ErrTruncated, len(data), dataSize)
	}
	if !opts.SkipChecksumValidation {
		if err := ValidateChecksum(ComputeChecksum(data), stored); err != nil {
			return nil, err
		}
	}

	tensors := make(map[string]*tensor.RawTensor, len(header.Tensors))
	for _, meta := range header.Tensors {
		raw, err := loadTensor(meta, data)
		if err != nil {
			return nil, err
		}
		tensors[meta.Name] = raw
	}
	return &Checkpoint{Header: header, Flags: flags, Tensors: tensors}, nil
}

// ReadFile decodes the checkpoint at path.
func ReadFile(path string, opts ReaderOptions) (*Checkpoint, error) {
	//nolint:gosec // G304: checkpoint paths come from the user
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	ckpt, err := Read(bufio.NewReader(file), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ckpt, nil
}

// loadTensor copies one tensor out of the data section.
func loadTensor(meta TensorMeta, data []byte) (*tensor.RawTensor, error) {
	dtype, ok := tensor.ParseDataType(meta.DType)
	if !ok {
		return nil, &ValidationError{Kind: ErrInvalidTensor, Tensor: meta.Name, Details: fmt.Sprintf("unknown dtype %q", meta.DType)}
	}
	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, tensor.CPU)
	if err != nil {
		return nil, &ValidationError{Kind: ErrInvalidTensor, Tensor: meta.Name, Details: err.Error()}
	}
	end := meta.Offset + int64(raw.ByteSize())
	if meta.Offset < 0 || end > int64(len(data)) {
		return nil, &ValidationError{
			Kind:    ErrOutOfBounds,
			Tensor:  meta.Name,
			Details: fmt.Sprintf("bytes [%d, %d) outside data section of %d", meta.Offset, end, len(data)),
		}
	}
	copy(raw.Data(), data[meta.Offset:end])
	return raw, nil
}

func truncated(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncated, part)
	}
	return fmt.Errorf("failed to read %s: %w", part, err)
}
