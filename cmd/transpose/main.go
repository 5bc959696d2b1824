package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fxnlabs/transpose-bench/fixtures"
	"github.com/fxnlabs/transpose-bench/internal/benchmark"
	"github.com/fxnlabs/transpose-bench/internal/config"
	"github.com/fxnlabs/transpose-bench/internal/gpu"
	"github.com/fxnlabs/transpose-bench/internal/kernel"
	"github.com/fxnlabs/transpose-bench/internal/logger"
	"github.com/fxnlabs/transpose-bench/internal/metrics"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return 0
	}

	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		if msg := exitErr.Error(); msg != "" {
			fmt.Fprintln(stdout, msg)
		}
		return exitErr.ExitCode()
	}
	fmt.Fprintf(stdout, "ERROR: %v\n", err)
	return 1
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "transpose",
		Usage:     "Measure the memory bandwidth of a parallel matrix transpose",
		ArgsUsage: "<iterations> <matrix_order> [tile_size]",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"TRANSPOSE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "kernel",
				Usage: fmt.Sprintf("Kernel variant (%v)", kernel.Names()),
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Device backend: auto, cpu or cuda",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Goroutines used by the CPU backend, 0 for one per CPU",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log verbosity: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "metrics-textfile",
				Usage: "Write Prometheus metrics to this file after the run",
			},
			&cli.BoolFlag{
				Name:  "dump",
				Usage: "Print every element when validation fails",
			},
			&cli.BoolFlag{
				Name:  "banner",
				Usage: "Print an ASCII-art banner",
			},
		},
		// Exit codes are mapped by run
		ExitErrHandler: func(*cli.Context, error) {},
		Action:         runBenchmark,
		Commands: []*cli.Command{
			initConfigCommand(),
		},
	}
}

// loadConfig reads --config when given and applies the flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if c.IsSet("kernel") {
		cfg.Kernel.Variant = c.String("kernel")
	}
	if c.IsSet("backend") {
		cfg.Device.Backend = c.String("backend")
	}
	if c.IsSet("workers") {
		cfg.Device.Workers = c.Int("workers")
	}
	if c.IsSet("log-level") {
		cfg.Logger.Verbosity = c.String("log-level")
	}
	if c.IsSet("metrics-textfile") {
		cfg.Metrics.Textfile = c.String("metrics-textfile")
	}
	if c.IsSet("dump") {
		cfg.Report.Dump = c.Bool("dump")
	}
	if c.IsSet("banner") {
		cfg.Report.Banner = c.Bool("banner")
	}
	return cfg, cfg.Validate()
}

func runBenchmark(c *cli.Context) error {
	// Arguments are validated before anything is allocated
	params, err := config.ParseArgs(c.Args().Slice())
	if err != nil {
		return cli.Exit("ERROR: "+err.Error(), 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit("ERROR: "+err.Error(), 1)
	}

	zapLogger, err := logger.New(cfg.Logger.Verbosity)
	if err != nil {
		return cli.Exit("ERROR: "+err.Error(), 1)
	}
	defer zapLogger.Sync()
	rootLogger := zapLogger.Named("transpose")

	strategy, err := kernel.New(cfg.Kernel.Variant, params.TileSize)
	if err != nil {
		return cli.Exit("ERROR: "+err.Error(), 1)
	}
	if params.TileClamped {
		rootLogger.Debug("Tile size out of range, using matrix order", zap.Int("tile_size", params.TileSize))
	}

	var bench *benchmark.Benchmark
	var m *metrics.Metrics
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, params, rootLogger),
		fx.Provide(
			func() kernel.Strategy { return strategy },
			metrics.New,
			newSession,
			func(s *gpu.Session, k kernel.Strategy, p *config.Params, log *zap.Logger, m *metrics.Metrics) *benchmark.Benchmark {
				return benchmark.New(s, k, p, log.Named("benchmark"), benchmark.Options{
					Out:     c.App.Writer,
					Dump:    cfg.Report.Dump,
					Banner:  cfg.Report.Banner,
					Metrics: m,
				})
			},
		),
		fx.Populate(&bench, &m),
	)
	if err := app.Err(); err != nil {
		return cli.Exit("ERROR: "+err.Error(), 1)
	}

	ctx := c.Context
	if err := app.Start(ctx); err != nil {
		return cli.Exit("ERROR: "+err.Error(), 1)
	}
	_, runErr := bench.Run(ctx)
	if err := app.Stop(context.Background()); err != nil {
		rootLogger.Warn("Failed to release the device session", zap.Error(err))
	}

	if path := cfg.Metrics.Textfile; path != "" {
		if err := m.WriteTextfile(path); err != nil {
			rootLogger.Error("Failed to write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}

	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, benchmark.ErrValidation):
		// The report already carries the error line
		return cli.Exit("", 1)
	default:
		rootLogger.Error("Benchmark failed", zap.Error(runErr))
		return cli.Exit("ERROR: "+runErr.Error(), 1)
	}
}

// newSession opens the device session and closes it when the fx app stops.
func newSession(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Session, error) {
	session, err := gpu.NewSession(gpu.Options{
		Backend: cfg.Device.Backend,
		Workers: cfg.Device.Workers,
	}, log.Named("session"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return session.Close()
		},
	})
	return session, nil
}

func initConfigCommand() *cli.Command {
	return &cli.Command{
		Name:      "init-config",
		Usage:     "Write a config file with the default settings",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("usage: transpose init-config [--force] <path>", 1)
			}
			path := c.Args().First()
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return cli.Exit(fmt.Sprintf("ERROR: %s already exists, use --force to overwrite", path), 1)
			}
			if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
				return cli.Exit("ERROR: "+err.Error(), 1)
			}
			fmt.Fprintf(c.App.Writer, "Config written to %s\n", path)
			return nil
		},
	}
}
