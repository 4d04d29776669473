package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/born-ml/sparsehyper/internal/config"
	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/serialization"
	"github.com/born-ml/sparsehyper/internal/sparse"
	"github.com/born-ml/sparsehyper/internal/tensor"
)

const layerType = "NASLayer"

// tensorJSON is the on-disk form of CLI inputs, targets and outputs.
type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// readTensor loads a float32 tensor from a JSON file.
func readTensor[B tensor.Backend](path string, backend B) (*tensor.Tensor[float32, B], error) {
	//nolint:gosec // G304: input paths come from the user
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tj tensorJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t, err := tensor.FromSlice(tj.Data, tensor.Shape(tj.Shape), backend)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func toJSON[B tensor.Backend](t *tensor.Tensor[float32, B]) tensorJSON {
	return tensorJSON{Shape: []int(t.Shape().Clone()), Data: t.Data()}
}

// loadLayer rebuilds the layer stored in a checkpoint.
func loadLayer[B tensor.Backend](path string, backend B, log logger.Logger) (*sparse.NASLayer[B], *serialization.Checkpoint, error) {
	ckpt, err := serialization.ReadFile(path, serialization.ReaderOptions{ValidationLevel: serialization.ValidationStrict})
	if err != nil {
		return nil, nil, err
	}
	if ckpt.Header.LayerType != layerType {
		return nil, nil, fmt.Errorf("%s: unsupported layer type %q", path, ckpt.Header.LayerType)
	}
	var desc config.Layer
	if err := json.Unmarshal(ckpt.Header.Config, &desc); err != nil {
		return nil, nil, fmt.Errorf("%s: layer config: %w", path, err)
	}
	cfg, err := desc.NASConfig(log)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	layer, err := sparse.NewNASLayer(cfg, backend)
	if err != nil {
		return nil, nil, err
	}
	if err := layer.LoadStateDict(ckpt.Tensors); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return layer, ckpt, nil
}

// saveLayer writes the layer's state under header. The layer config in the header is
// refreshed from the layer.
func saveLayer[B tensor.Backend](path string, layer *sparse.NASLayer[B], header serialization.Header) error {
	cfg, err := json.Marshal(config.FromNASConfig(layer.Config()))
	if err != nil {
		return fmt.Errorf("marshal layer config: %w", err)
	}
	header.Version = version
	header.LayerType = layerType
	header.Config = cfg
	return serialization.WriteFile(path, layer.StateDict(), header)
}
