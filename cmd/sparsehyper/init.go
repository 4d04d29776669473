package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/serialization"
	"github.com/born-ml/sparsehyper/internal/sparse"
)

func (a *app) initCmd() *cli.Command {
	var (
		outPath string
		seed    int64
	)

	return &cli.Command{
		Name:  "init",
		Usage: "Create a NAS layer from the layer section of --config and save it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "checkpoint path (.spl)", Destination: &outPath, Required: true},
			&cli.Int64Flag{Name: "seed", Usage: "initialisation seed (overrides the config; 0 = random)", Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if a.configPath == "" {
				return errors.New("init: --config is required")
			}
			desc := a.file.Layer
			if cmd.IsSet("seed") {
				desc.Seed = uint64(seed) //nolint:gosec // G115: any bit pattern is a valid seed
			}
			cfg, err := desc.NASConfig(log)
			if err != nil {
				return err
			}
			layer, err := sparse.NewNASLayer(cfg, cpu.New())
			if err != nil {
				return err
			}

			runID := uuid.NewString()
			if err := saveLayer(outPath, layer, serialization.Header{RunID: runID}); err != nil {
				return err
			}
			log.Info("layer initialised", "path", outPath, "run_id", runID, "seed", layer.Seed())
			_, err = fmt.Fprintf(a.out, "wrote %s: %s, run %s\n", outPath, layer, runID)
			return err
		},
	}
}
