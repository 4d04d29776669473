package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/densify"
	"github.com/born-ml/sparsehyper/internal/logger"
)

func (a *app) inspectCmd() *cli.Command {
	var (
		modelPath   string
		showDense   bool
		showTensors bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the metadata and parameters of a checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "checkpoint path (.spl)", Destination: &modelPath, Required: true},
			&cli.BoolFlag{Name: "tensors", Usage: "print parameter values", Destination: &showTensors},
			&cli.BoolFlag{Name: "dense", Usage: "print the dense weight matrix (one input and one output dimension only)", Destination: &showDense},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			backend := cpu.New()
			layer, ckpt, err := loadLayer(modelPath, backend, logger.FromContext(ctx))
			if err != nil {
				return err
			}

			h := ckpt.Header
			tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "layer:\t%s\n", layer)
			_, _ = fmt.Fprintf(tw, "run id:\t%s\n", h.RunID)
			_, _ = fmt.Fprintf(tw, "written by:\t%s\n", h.Version)
			_, _ = fmt.Fprintf(tw, "written at:\t%s\n", h.CreatedAt.Format(time.RFC3339))
			_, _ = fmt.Fprintf(tw, "seed:\t%d\n", layer.Seed())
			_, _ = fmt.Fprintf(tw, "config:\t%s\n", h.Config)
			if h.Training != nil {
				_, _ = fmt.Fprintf(tw, "training:\tstep %d, loss %.6g, %s lr %g\n",
					h.Training.Step, h.Training.Loss, h.Training.Optimizer, h.Training.LR)
			}
			for _, meta := range h.Tensors {
				_, _ = fmt.Fprintf(tw, "tensor %s:\t%s%v\t%d bytes\n", meta.Name, meta.DType, meta.Shape, meta.Size)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if showTensors {
				for _, name := range ckpt.TensorNames() {
					_, _ = fmt.Fprintf(a.out, "%s: %v\n", name, ckpt.Tensors[name].AsFloat32())
				}
			}
			if showDense {
				return printDense(a.out, modelPath, layer.Config().InSize, backend, layer)
			}
			return nil
		},
	}
}

func printDense(w io.Writer, path string, inSize []int, backend *cpu.CPUBackend, layer densify.Layer[*cpu.CPUBackend]) error {
	if len(inSize) != 1 {
		return fmt.Errorf("%s: %w: input size %v", path, densify.ErrNotMatrix, inSize)
	}
	weights, bias, err := densify.Matrix(layer, inSize[0], backend)
	if err != nil {
		return err
	}
	rows, cols := weights.Dims()
	_, _ = fmt.Fprintf(w, "weights (%dx%d, %d non-zero):\n%s\n", rows, cols, densify.NonZero(weights), densify.Format(weights))
	if bias != nil {
		_, _ = fmt.Fprintf(w, "bias: %.4g\n", bias)
	}
	return nil
}
