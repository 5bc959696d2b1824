// Package benchmark runs one transpose benchmark end to end: it allocates and
// initializes the matrices, drives the harness, validates the result and
// prints the report.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/fxnlabs/transpose-bench/internal/config"
	"github.com/fxnlabs/transpose-bench/internal/gpu"
	"github.com/fxnlabs/transpose-bench/internal/harness"
	"github.com/fxnlabs/transpose-bench/internal/kernel"
	"github.com/fxnlabs/transpose-bench/internal/metrics"
	"github.com/fxnlabs/transpose-bench/internal/validate"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrValidation is returned when the transposed matrix does not match its
// closed-form value.
var ErrValidation = errors.New("solution did not validate")

const bytesPerElement = 8

// Options controls the report.
type Options struct {
	// Out receives the report; nil means os.Stdout.
	Out io.Writer
	// Dump prints every element when validation fails.
	Dump bool
	// Banner prints an ASCII-art title before the report.
	Banner bool
	// Metrics may be nil.
	Metrics *metrics.Metrics
}

// Report is the outcome of a run.
type Report struct {
	Backend    string
	Device     gpu.DeviceInfo
	Kernel     string
	Order      int
	Iterations int
	TileSize   int
	Warnings   []string

	Timing     harness.Timing
	Validation validate.Result
	// Bandwidth is in MB/s; zero when the run did not validate.
	Bandwidth float64
}

// Benchmark is one configured run on one session.
type Benchmark struct {
	session  *gpu.Session
	strategy kernel.Strategy
	params   *config.Params
	logger   *zap.Logger
	opts     Options
}

// New creates a benchmark. The session stays owned by the caller.
func New(session *gpu.Session, strategy kernel.Strategy, params *config.Params, logger *zap.Logger, opts Options) *Benchmark {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Benchmark{
		session:  session,
		strategy: strategy,
		params:   params,
		logger:   logger,
		opts:     opts,
	}
}

// Bandwidth returns the MB/s of reading and writing one order×order matrix
// of float64 in avgSeconds.
func Bandwidth(order int, avgSeconds float64) float64 {
	nbytes := 2 * float64(order) * float64(order) * bytesPerElement
	return 1.0e-6 * nbytes / avgSeconds
}

// Run executes the benchmark and prints the report. It returns ErrValidation
// when the result is wrong; the report is returned in that case too.
func (b *Benchmark) Run(ctx context.Context) (*Report, error) {
	order := b.params.Order
	info := b.session.DeviceInfo()
	report := &Report{
		Backend:    b.session.BackendType(),
		Device:     info,
		Kernel:     b.strategy.Name(),
		Order:      order,
		Iterations: b.params.Iterations,
		TileSize:   b.strategy.TileSize(),
		Warnings:   b.strategy.Warnings(order, info),
	}
	b.printHeader(report)

	footprint := 2 * b.params.Bytes()
	if info.AvailableMemory > 0 && footprint > info.AvailableMemory {
		return report, fmt.Errorf("matrices need %s but the device has %s available",
			humanize.IBytes(uint64(footprint)), humanize.IBytes(uint64(info.AvailableMemory)))
	}

	hostA := gpu.NewHostMatrix(order)
	hostB := gpu.NewHostMatrix(order)
	// A[j*order+i] = order*j+i is the flat index of each element
	for k, data := 0, gpu.HostData(hostA); k < len(data); k++ {
		data[k] = float64(k)
	}

	n := order * order
	devA, err := b.session.Allocate(n)
	if err != nil {
		return report, err
	}
	defer devA.Release()
	devB, err := b.session.Allocate(n)
	if err != nil {
		return report, err
	}
	defer devB.Release()

	if err := gpu.UploadMatrix(devA, hostA); err != nil {
		return report, fmt.Errorf("failed to upload A: %w", err)
	}
	if err := gpu.UploadMatrix(devB, hostB); err != nil {
		return report, fmt.Errorf("failed to upload B: %w", err)
	}

	b.opts.Metrics.SetRun(order, b.params.Iterations)
	h, err := harness.New(b.session, b.strategy, order, b.params.Iterations,
		b.logger.Named("harness"), harness.WithMetrics(b.opts.Metrics))
	if err != nil {
		return report, err
	}
	report.Timing, err = h.Run(ctx, devA, devB)
	if err != nil {
		return report, err
	}

	if err := gpu.DownloadMatrix(hostB, devB); err != nil {
		return report, fmt.Errorf("failed to download B: %w", err)
	}

	report.Validation, err = validate.Check(gpu.HostData(hostB), order, b.params.Iterations)
	if err != nil {
		return report, err
	}

	avg := report.Timing.Avg()
	if report.Validation.Valid {
		report.Bandwidth = Bandwidth(order, avg.Seconds())
	}
	b.opts.Metrics.SetResult(avg, report.Bandwidth, report.Validation.AbsErr, report.Validation.Valid)
	b.logger.Info("Benchmark finished",
		zap.String("kernel", report.Kernel),
		zap.Int("order", order),
		zap.Duration("avg", avg),
		zap.Float64("abs_err", report.Validation.AbsErr),
		zap.Bool("valid", report.Validation.Valid))

	if report.Validation.Valid {
		fmt.Fprintln(b.opts.Out, "Solution validates")
		fmt.Fprintf(b.opts.Out, "Rate (MB/s): %f Avg time (s): %f\n", report.Bandwidth, avg.Seconds())
		return report, nil
	}

	fmt.Fprintf(b.opts.Out, "ERROR: Aggregate squared error %g exceeds threshold %g\n",
		report.Validation.AbsErr, report.Validation.Epsilon)
	if b.opts.Dump {
		if err := b.dump(hostA, hostB, devA); err != nil {
			b.logger.Warn("Failed to dump matrices", zap.Error(err))
		}
	}
	return report, ErrValidation
}

func (b *Benchmark) dump(hostA, hostB *mat.Dense, devA gpu.Buffer) error {
	if err := gpu.DownloadMatrix(hostA, devA); err != nil {
		return fmt.Errorf("failed to download A: %w", err)
	}
	return validate.Dump(b.opts.Out, hostA, hostB)
}

func (b *Benchmark) printHeader(r *Report) {
	out := b.opts.Out
	if b.opts.Banner {
		fmt.Fprintln(out, figure.NewFigure("Transpose", "", true).String())
	}
	fmt.Fprintln(out, "Parallel Research Kernels version 2")
	fmt.Fprintf(out, "Go/%s Matrix transpose: B = A^T\n", r.Backend)
	fmt.Fprintf(out, "Device: %s (%s), memory %s\n",
		r.Device.Name, r.Device.ComputeCapability, humanize.IBytes(uint64(max(r.Device.TotalMemory, 0))))
	fmt.Fprintf(out, "Number of iterations  = %d\n", r.Iterations)
	fmt.Fprintf(out, "Matrix order          = %d\n", r.Order)
	fmt.Fprintf(out, "Tile size             = %d\n", r.TileSize)
	fmt.Fprintf(out, "Kernel                = %s\n", r.Kernel)
	fmt.Fprintf(out, "Matrix footprint      = %s\n", humanize.IBytes(uint64(2*b.params.Bytes())))
	for _, w := range r.Warnings {
		fmt.Fprintf(out, "WARNING: %s\n", w)
	}
}
