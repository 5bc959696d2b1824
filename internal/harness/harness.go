// Package harness drives the repeated launch/synchronize loop of a run and
// times its steady state.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/fxnlabs/transpose-bench/internal/gpu"
	"github.com/fxnlabs/transpose-bench/internal/metrics"
	"go.uber.org/zap"
)

// Phase is the state of a harness run.
type Phase int

const (
	Warmup Phase = iota
	Measuring
	Done
)

func (p Phase) String() string {
	switch p {
	case Warmup:
		return "warmup"
	case Measuring:
		return "measuring"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Device is the part of a gpu.Session the harness needs.
type Device interface {
	Launch(ctx context.Context, k gpu.Kernel, order int, a, b gpu.Buffer) error
	Synchronize() error
}

// Clock returns the current time.
type Clock func() time.Time

// Timing is the result of the measured part of a run.
type Timing struct {
	Iterations int
	Elapsed    time.Duration
	// Launches counts every launch, warm-up included.
	Launches int
}

// Avg returns the mean duration of one measured iteration. It is never zero
// so that it can always be divided by.
func (t Timing) Avg() time.Duration {
	if t.Iterations <= 0 {
		return time.Nanosecond
	}
	avg := t.Elapsed / time.Duration(t.Iterations)
	if avg <= 0 {
		return time.Nanosecond
	}
	return avg
}

// Harness runs one kernel iterations+1 times over the same pair of buffers.
type Harness struct {
	device     Device
	kernel     gpu.Kernel
	order      int
	iterations int

	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      Clock
	observer func(Phase)
}

// Option configures a Harness.
type Option func(*Harness)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(h *Harness) {
		h.now = c
	}
}

// WithObserver registers a callback invoked on every phase transition.
func WithObserver(fn func(Phase)) Option {
	return func(h *Harness) {
		h.observer = fn
	}
}

// WithMetrics records every launch cycle.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Harness) {
		h.metrics = m
	}
}

// New creates a harness. iterations must be at least 1.
func New(device Device, k gpu.Kernel, order, iterations int, logger *zap.Logger, opts ...Option) (*Harness, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("iterations must be >= 1, got %d", iterations)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Harness{
		device:     device,
		kernel:     k,
		order:      order,
		iterations: iterations,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run performs one warm-up cycle followed by the measured cycles. The buffers
// are not reset in between, so after Run the data has seen iterations+1
// passes.
func (h *Harness) Run(ctx context.Context, a, b gpu.Buffer) (Timing, error) {
	timing := Timing{Iterations: h.iterations}

	h.enter(Warmup)
	if err := h.cycle(ctx, Warmup, a, b); err != nil {
		return timing, fmt.Errorf("warm-up launch: %w", err)
	}
	timing.Launches++

	h.enter(Measuring)
	start := h.now()
	for iter := 1; iter <= h.iterations; iter++ {
		if err := h.cycle(ctx, Measuring, a, b); err != nil {
			return timing, fmt.Errorf("iteration %d: %w", iter, err)
		}
		timing.Launches++
	}
	timing.Elapsed = h.now().Sub(start)

	h.enter(Done)
	h.logger.Debug("Harness finished",
		zap.String("kernel", h.kernel.Name()),
		zap.Int("launches", timing.Launches),
		zap.Duration("elapsed", timing.Elapsed),
		zap.Duration("avg", timing.Avg()))
	return timing, nil
}

func (h *Harness) cycle(ctx context.Context, phase Phase, a, b gpu.Buffer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	began := h.now()
	if err := h.device.Launch(ctx, h.kernel, h.order, a, b); err != nil {
		return err
	}
	if err := h.device.Synchronize(); err != nil {
		return err
	}
	h.metrics.ObserveLaunch(h.kernel.Name(), phase.String(), h.now().Sub(began))
	return nil
}

func (h *Harness) enter(p Phase) {
	h.logger.Debug("Harness phase", zap.Stringer("phase", p))
	if h.observer != nil {
		h.observer(p)
	}
}
