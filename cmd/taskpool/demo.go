package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/vnykmshr/taskpool/internal/config"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
)

func createDemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "demo",
		Usage: "push sleeping tasks through a small pool and print their results",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "tasks",
				Usage: "number of tasks to push",
			},
			&cli.DurationFlag{
				Name:  "unit",
				Usage: "task i sleeps i*unit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, logger, cleanup, err := setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			_, err = runDemo(ctx, cmd.Root().Writer, cfg, logger)
			return err
		},
	}
}

// runDemo submits cfg.Demo.Tasks tasks, printing "push task i" as each is
// accepted, then prints every result in submission order. It returns the
// pool counters once the pool has drained.
func runDemo(ctx context.Context, w io.Writer, cfg config.Config, logger *slog.Logger) (workerpool.Stats, error) {
	pool, err := workerpool.NewWithConfig(workerpool.Config{
		Workers:   cfg.Demo.Workers,
		QueueSize: cfg.Demo.QueueSize,
		Name:      "demo",
		Logger:    logger,
	})
	if err != nil {
		return workerpool.Stats{}, err
	}
	pool.Start()
	defer pool.Stop()

	unit := cfg.Demo.Unit
	futures := make([]*workerpool.Future[int], 0, cfg.Demo.Tasks)
	for i := range cfg.Demo.Tasks {
		f, err := workerpool.CallContext(ctx, pool, func(ctx context.Context) (int, error) {
			select {
			case <-time.After(time.Duration(i) * unit):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
			return i, nil
		})
		if err != nil {
			return pool.Stats(), fmt.Errorf("push task %d: %w", i, err)
		}
		futures = append(futures, f)
		fmt.Fprintf(w, "push task %d\n", i)
	}

	var b strings.Builder
	b.WriteString("get result: ")
	for _, f := range futures {
		v, err := f.Get(ctx)
		if err != nil {
			return pool.Stats(), fmt.Errorf("task %d: %w", f.ID(), err)
		}
		fmt.Fprintf(&b, "%d ", v)
	}
	fmt.Fprintln(w, b.String())

	err = pool.Shutdown(ctx)
	return pool.Stats(), err
}
