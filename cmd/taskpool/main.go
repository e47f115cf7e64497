// Command taskpool runs the bounded worker pool from the command line.
//
// Usage:
//
//	taskpool demo [--tasks N] [--unit D]
//	taskpool run --config taskpool.yaml
//
// demo pushes Tasks tasks into a 4-worker pool with 4 queue slots; task i
// sleeps i*Unit and returns i. run feeds the configured schedules into the
// pool and serves Prometheus metrics until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/vnykmshr/taskpool/internal/config"
	"github.com/vnykmshr/taskpool/internal/logging"
	tperrors "github.com/vnykmshr/taskpool/pkg/common/errors"
)

// Set at build time with -ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := createApp(os.Stdout, os.Stderr)
	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "taskpool: %v\n", err)
		if tperrors.IsValidationError(err) {
			return 2
		}
		return 1
	}
	return 0
}

func createApp(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "taskpool",
		Usage:     "bounded worker pool with futures and backpressure",
		Version:   fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON configuration file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "number of workers",
			},
			&cli.IntFlag{
				Name:    "queue-size",
				Aliases: []string{"q"},
				Usage:   "number of queue slots",
			},
		},
		Commands: []*cli.Command{
			createDemoCommand(),
			createRunCommand(),
		},
		DefaultCommand: "demo",
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

// loadConfig reads --config over the defaults and applies flag overrides.
func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	// the flags size whichever pool the command builds
	if cmd.IsSet("workers") {
		cfg.Pool.Workers = cmd.Int("workers")
		cfg.Demo.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("queue-size") {
		cfg.Pool.QueueSize = cmd.Int("queue-size")
		cfg.Demo.QueueSize = cmd.Int("queue-size")
	}
	if cmd.IsSet("tasks") {
		cfg.Demo.Tasks = cmd.Int("tasks")
	}
	if cmd.IsSet("unit") {
		cfg.Demo.Unit = cmd.Duration("unit")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup loads configuration and builds the logger. The returned cleanup
// closes the log file, if any.
func setup(cmd *cli.Command) (config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, closer, err := logging.New(cfg.Log, cmd.Root().ErrWriter)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	cleanup := func() {
		if err := closer.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			fmt.Fprintf(cmd.Root().ErrWriter, "taskpool: closing log: %v\n", err)
		}
	}
	return cfg, logger.With("version", Version), cleanup, nil
}
