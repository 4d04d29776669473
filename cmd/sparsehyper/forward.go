package main

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/sparse"
)

func (a *app) forwardCmd() *cli.Command {
	var (
		modelPath string
		inputPath string
		train     bool
		seed      int64
	)

	return &cli.Command{
		Name:  "forward",
		Usage: "Run one forward pass and print the output as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "checkpoint path (.spl)", Destination: &modelPath, Required: true},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input tensor JSON ({\"shape\": [...], \"data\": [...]})", Destination: &inputPath, Required: true},
			&cli.BoolFlag{Name: "train", Usage: "sample candidate tuples instead of rounding the means", Destination: &train},
			&cli.Int64Flag{Name: "seed", Usage: "sampling seed for this pass (with --train)", Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			backend := cpu.New()
			layer, _, err := loadLayer(modelPath, backend, log)
			if err != nil {
				return err
			}
			input, err := readTensor(inputPath, backend)
			if err != nil {
				return err
			}

			var stats sparse.ForwardStats
			opts := []sparse.ForwardOption{sparse.WithStats(&stats)}
			if s, ok := a.forwardSeed(cmd, seed); ok {
				opts = append(opts, sparse.WithSeed(s))
			}
			layer.SetTraining(train)
			out, err := layer.ForwardWith(input, opts...)
			if err != nil {
				return err
			}
			log.Info("forward",
				"training", stats.Training,
				"entries", stats.Entries,
				"duplicates", stats.Duplicates,
				"degenerate", stats.Degenerate)

			enc := json.NewEncoder(a.out)
			return enc.Encode(toJSON(out))
		},
	}
}

// forwardSeed returns the sampling seed from --seed or, when the flag is not set, from the
// runtime section of the config.
func (a *app) forwardSeed(cmd *cli.Command, seed int64) (uint64, bool) {
	if cmd.IsSet("seed") {
		return uint64(seed), true //nolint:gosec // G115: any bit pattern is a valid seed
	}
	if a.file.Runtime.Seed != nil {
		return *a.file.Runtime.Seed, true
	}
	return 0, false
}
