package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/serialization"
)

const testConfig = `layer:
  in_size: [4]
  out_size: [3]
  k: 4
  gadditional: 1
  radditional: 1
  region: [2, 2]
  bias: true
  seed: 7
runtime:
  log_level: error
  optimizer: sgd
  lr: 0.05
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func writeTensor(t *testing.T, dir, name string, shape []int, data []float32) string {
	t.Helper()
	raw, err := json.Marshal(tensorJSON{Shape: shape, Data: data})
	require.NoError(t, err)
	return writeFile(t, dir, name, string(raw))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := newApp(&out, &errOut).Run(context.Background(), append([]string{"sparsehyper"}, args...))
	return out.String(), err
}

func TestCLI_Workflow(t *testing.T) {
	dir := t.TempDir()
	cfg := writeFile(t, dir, "layer.yaml", testConfig)
	model := filepath.Join(dir, "model.spl")
	input := writeTensor(t, dir, "input.json", []int{2, 4}, []float32{1, 0, -1, 2, 0.5, 0.5, 1, -2})
	target := writeTensor(t, dir, "target.json", []int{2, 3}, []float32{1, 0, 0, 0, 1, 0})

	out, err := run(t, "--config", cfg, "init", "--out", model)
	require.NoError(t, err)
	assert.Contains(t, out, "NASLayer(in=[4], out=[3], k=4")

	ckpt, err := serialization.ReadFile(model, serialization.ReaderOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, ckpt.Header.RunID)
	assert.Equal(t, []string{"bias", "means", "sigmas", "values"}, ckpt.TensorNames())
	assert.Nil(t, ckpt.Header.Training)

	out, err = run(t, "forward", "--model", model, "--input", input)
	require.NoError(t, err)
	var result tensorJSON
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []int{2, 3}, result.Shape)
	assert.Len(t, result.Data, 6)

	again, err := run(t, "forward", "--model", model, "--input", input, "--train", "--seed", "3")
	require.NoError(t, err)
	same, err := run(t, "forward", "--model", model, "--input", input, "--train", "--seed", "3")
	require.NoError(t, err)
	assert.Equal(t, again, same, "seeded training passes are reproducible")

	for range 2 {
		_, err = run(t, "--config", cfg, "step", "--model", model, "--input", input, "--target", target)
		require.NoError(t, err)
	}
	ckpt, err = serialization.ReadFile(model, serialization.ReaderOptions{})
	require.NoError(t, err)
	require.NotNil(t, ckpt.Header.Training)
	assert.Equal(t, int64(2), ckpt.Header.Training.Step)
	assert.Equal(t, "sgd", ckpt.Header.Training.Optimizer)
	assert.InDelta(t, 0.05, ckpt.Header.Training.LR, 1e-7)
	assert.NotZero(t, ckpt.Flags&serialization.FlagTrained)

	out, err = run(t, "inspect", "--model", model, "--dense", "--tensors")
	require.NoError(t, err)
	assert.Contains(t, out, "run id:")
	assert.Contains(t, out, "training:")
	assert.Contains(t, out, "step 2")
	assert.Contains(t, out, "weights (3x4")
	assert.Contains(t, out, "bias:")
	assert.Contains(t, out, "means:")
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.spl")

	_, err := run(t, "init", "--out", model)
	require.ErrorContains(t, err, "--config is required")

	bad := writeFile(t, dir, "bad.yaml", "layer:\n  in_size: [4]\n  out_size: [2]\n  k: 0\n")
	_, err = run(t, "--config", bad, "init", "--out", model)
	require.ErrorContains(t, err, "k must be positive")

	_, err = run(t, "inspect", "--model", filepath.Join(dir, "missing.spl"))
	require.Error(t, err)

	_, err = run(t, "--log-format", "xml", "version")
	require.ErrorContains(t, err, "unknown log format")
}

func TestCLI_Version(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sparsehyper "+version+"\n", out)
}

func TestReadTensor(t *testing.T) {
	dir := t.TempDir()
	backend := cpu.New()

	x, err := readTensor(writeTensor(t, dir, "ok.json", []int{1, 2}, []float32{3, 4}), backend)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, x.Data())
	assert.Equal(t, tensorJSON{Shape: []int{1, 2}, Data: []float32{3, 4}}, toJSON(x))

	_, err = readTensor(writeTensor(t, dir, "short.json", []int{2, 2}, []float32{1}), backend)
	require.Error(t, err)
	_, err = readTensor(writeFile(t, dir, "garbage.json", "{"), backend)
	require.Error(t, err)
}
