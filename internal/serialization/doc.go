// Package serialization reads and writes sparse layer checkpoints in the .spl format.
//
// A checkpoint stores the named tensors of a layer state dict together with a JSON header
// that records the layer configuration, a run id and training progress:
//
//	Format Structure:
//	  [64 bytes: fixed header]
//	    0x00-0x03  Magic "SPLK"
//	    0x04-0x07  Version (uint32 LE)
//	    0x08-0x0B  Flags (uint32 LE)
//	    0x0C-0x0F  Reserved
//	    0x10-0x17  Header size (uint64 LE)
//	    0x18-0x1F  Data size (uint64 LE)
//	    0x20-0x3F  SHA-256 of the tensor data
//	  [Header: JSON metadata]
//	  [Padding to a 64-byte boundary]
//	  [Tensor data: raw little-endian bytes, in header order]
//
// Example usage:
//
//	header := serialization.Header{LayerType: "NASLayer", RunID: uuid.NewString()}
//	if err := serialization.WriteFile("model.spl", layer.StateDict(), header); err != nil {
//	    return err
//	}
//
//	ckpt, err := serialization.ReadFile("model.spl", serialization.ReaderOptions{})
//	if err != nil {
//	    return err
//	}
//	err = layer.LoadStateDict(ckpt.Tensors)
package serialization
