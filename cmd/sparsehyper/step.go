package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparsehyper/internal/autodiff"
	"github.com/born-ml/sparsehyper/internal/backend/cpu"
	"github.com/born-ml/sparsehyper/internal/logger"
	"github.com/born-ml/sparsehyper/internal/nn"
	"github.com/born-ml/sparsehyper/internal/optim"
	"github.com/born-ml/sparsehyper/internal/serialization"
	"github.com/born-ml/sparsehyper/internal/sparse"
)

type trainBackend = *autodiff.AutodiffBackend[*cpu.CPUBackend]

func (a *app) stepCmd() *cli.Command {
	var (
		modelPath  string
		inputPath  string
		targetPath string
		outPath    string
		optimizer  string
		lr         float64
		seed       int64
	)

	return &cli.Command{
		Name:  "step",
		Usage: "Take one optimizer step on the MSE between the layer output and a target",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "checkpoint path (.spl)", Destination: &modelPath, Required: true},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input tensor JSON", Destination: &inputPath, Required: true},
			&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Usage: "target tensor JSON", Destination: &targetPath, Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "where to save the updated checkpoint (default: --model)", Destination: &outPath},
			&cli.StringFlag{Name: "optimizer", Usage: "sgd or adam", Value: optim.NameAdam, Destination: &optimizer},
			&cli.Float64Flag{Name: "lr", Usage: "learning rate (0 = optimizer default)", Destination: &lr},
			&cli.Int64Flag{Name: "seed", Usage: "sampling seed for this step", Destination: &seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if rt := a.file.Runtime; rt.Optimizer != "" && !cmd.IsSet("optimizer") {
				optimizer = rt.Optimizer
			}
			if rt := a.file.Runtime; rt.LR != nil && !cmd.IsSet("lr") {
				lr = float64(*rt.LR)
			}
			if outPath == "" {
				outPath = modelPath
			}

			backend := autodiff.New(cpu.New())
			layer, ckpt, err := loadLayer(modelPath, backend, log)
			if err != nil {
				return err
			}
			input, err := readTensor(inputPath, backend)
			if err != nil {
				return err
			}
			target, err := readTensor(targetPath, backend)
			if err != nil {
				return err
			}
			opt, err := optim.New(optimizer, layer.Parameters(), optim.Config{LR: float32(lr)}, backend)
			if err != nil {
				return err
			}

			var opts []sparse.ForwardOption
			if s, ok := a.forwardSeed(cmd, seed); ok {
				opts = append(opts, sparse.WithSeed(s))
			}
			layer.SetTraining(true)
			backend.Tape().StartRecording()
			out, err := layer.ForwardWith(input, opts...)
			if err != nil {
				return err
			}
			if !out.Shape().Equal(target.Shape()) {
				return fmt.Errorf("step: target shape %v does not match output shape %v", target.Shape(), out.Shape())
			}
			loss := nn.NewMSELoss[trainBackend]().Forward(out, target)
			grads := autodiff.Backward(loss, backend)
			opt.Step(grads)

			header := ckpt.Header
			header.CreatedAt = time.Time{}
			training := serialization.TrainingMeta{Optimizer: optimizer, LR: opt.GetLR(), Loss: float64(loss.Item())}
			if header.Training != nil {
				training.Step = header.Training.Step
			}
			training.Step++
			header.Training = &training

			if err := saveLayer(outPath, layer, header); err != nil {
				return err
			}
			log.Info("step", "step", training.Step, "loss", training.Loss, "optimizer", optimizer, "lr", training.LR)
			_, err = fmt.Fprintf(a.out, "step %d loss %.6g\n", training.Step, training.Loss)
			return err
		},
	}
}
