// Command sparsehyper initialises, runs, trains and inspects sparse NAS layers stored as
// .spl checkpoints.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparsehyper/internal/config"
	"github.com/born-ml/sparsehyper/internal/logger"
)

// version is set via -ldflags "-X main.version=...".
var version = "v0.1.0-dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the state shared by the commands: output streams and the global flags.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	logLevel   string
	logFormat  string

	file config.File
}

func newApp(out, errOut io.Writer) *cli.Command {
	a := &app{out: out, errOut: errOut}
	return &cli.Command{
		Name:  "sparsehyper",
		Usage: "Learned sparse tensor layers",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML layer/runtime config", Destination: &a.configPath},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Value: "info", Destination: &a.logLevel},
			&cli.StringFlag{Name: "log-format", Usage: "text or json", Value: "text", Destination: &a.logFormat},
		},
		Before: a.before,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			a.initCmd(),
			a.forwardCmd(),
			a.stepCmd(),
			a.inspectCmd(),
			a.versionCmd(),
		},
	}
}

// before loads the config file and puts the logger on the context. Flags set on the
// command line win over the runtime section of the file.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if a.configPath != "" {
		f, err := config.Load(a.configPath)
		if err != nil {
			return ctx, err
		}
		a.file = f
		if f.Runtime.LogLevel != "" && !cmd.IsSet("log-level") {
			a.logLevel = f.Runtime.LogLevel
		}
		if f.Runtime.LogFormat != "" && !cmd.IsSet("log-format") {
			a.logFormat = f.Runtime.LogFormat
		}
	}

	log, err := logger.Open(a.errOut, a.logFormat, a.logLevel)
	if err != nil {
		return ctx, err
	}
	return logger.WithContext(ctx, log), nil
}

func (a *app) versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(a.out, "sparsehyper %s\n", version)
			return err
		},
	}
}
