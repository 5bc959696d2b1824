package harness

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fxnlabs/transpose-bench/internal/gpu"
	"github.com/fxnlabs/transpose-bench/internal/kernel"
	"github.com/fxnlabs/transpose-bench/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDevice advances a fake clock by step on every Synchronize.
type fakeDevice struct {
	now      time.Time
	step     time.Duration
	launches int
	syncs    int
	pending  bool

	failLaunchAt int
	syncErr      error
}

func (d *fakeDevice) clock() time.Time { return d.now }

func (d *fakeDevice) Launch(_ context.Context, _ gpu.Kernel, _ int, _, _ gpu.Buffer) error {
	d.launches++
	if d.failLaunchAt > 0 && d.launches == d.failLaunchAt {
		return errors.New("launch rejected")
	}
	if d.pending {
		return gpu.ErrLaunchPending
	}
	d.pending = true
	return nil
}

func (d *fakeDevice) Synchronize() error {
	d.syncs++
	d.pending = false
	d.now = d.now.Add(d.step)
	return d.syncErr
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "warmup", Warmup.String())
	assert.Equal(t, "measuring", Measuring.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "Phase(7)", Phase(7).String())
}

func TestNew_RejectsZeroIterations(t *testing.T) {
	_, err := New(&fakeDevice{}, kernel.NewNaive(4), 4, 0, nil)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name       string
		iterations int
		step       time.Duration
		wantAvg    time.Duration
	}{
		{name: "single iteration", iterations: 1, step: 10 * time.Millisecond, wantAvg: 10 * time.Millisecond},
		{name: "many iterations", iterations: 5, step: 3 * time.Millisecond, wantAvg: 3 * time.Millisecond},
		{name: "clock did not move", iterations: 3, step: 0, wantAvg: time.Nanosecond},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dev := &fakeDevice{now: time.Unix(0, 0), step: tc.step}
			var phases []Phase
			h, err := New(dev, kernel.NewNaive(4), 4, tc.iterations, zap.NewNop(),
				WithClock(dev.clock),
				WithObserver(func(p Phase) { phases = append(phases, p) }))
			require.NoError(t, err)

			timing, err := h.Run(context.Background(), nil, nil)
			require.NoError(t, err)

			assert.Equal(t, tc.iterations+1, dev.launches)
			assert.Equal(t, tc.iterations+1, dev.syncs)
			assert.Equal(t, tc.iterations+1, timing.Launches)
			assert.Equal(t, tc.iterations, timing.Iterations)
			// The warm-up cycle is not timed
			assert.Equal(t, time.Duration(tc.iterations)*tc.step, timing.Elapsed)
			assert.Equal(t, tc.wantAvg, timing.Avg())
			assert.Equal(t, []Phase{Warmup, Measuring, Done}, phases)
		})
	}
}

func TestRun_Errors(t *testing.T) {
	t.Run("warm-up launch fails", func(t *testing.T) {
		dev := &fakeDevice{failLaunchAt: 1}
		h, err := New(dev, kernel.NewNaive(4), 4, 3, nil, WithClock(dev.clock))
		require.NoError(t, err)
		_, err = h.Run(context.Background(), nil, nil)
		assert.ErrorContains(t, err, "warm-up launch")
		assert.Equal(t, 1, dev.launches)
	})

	t.Run("measured launch fails", func(t *testing.T) {
		dev := &fakeDevice{failLaunchAt: 3}
		h, err := New(dev, kernel.NewNaive(4), 4, 3, nil, WithClock(dev.clock))
		require.NoError(t, err)
		timing, err := h.Run(context.Background(), nil, nil)
		assert.ErrorContains(t, err, "iteration 2")
		assert.Equal(t, 2, timing.Launches)
	})

	t.Run("synchronize fails", func(t *testing.T) {
		syncErr := errors.New("device lost")
		dev := &fakeDevice{syncErr: syncErr}
		h, err := New(dev, kernel.NewNaive(4), 4, 3, nil, WithClock(dev.clock))
		require.NoError(t, err)
		_, err = h.Run(context.Background(), nil, nil)
		assert.ErrorIs(t, err, syncErr)
	})

	t.Run("canceled context", func(t *testing.T) {
		dev := &fakeDevice{}
		h, err := New(dev, kernel.NewNaive(4), 4, 3, nil, WithClock(dev.clock))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = h.Run(ctx, nil, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, dev.launches)
	})
}

func TestRun_Metrics(t *testing.T) {
	m := metrics.New()
	dev := &fakeDevice{step: time.Millisecond}
	h, err := New(dev, kernel.NewTiled(), 64, 4, nil, WithClock(dev.clock), WithMetrics(m))
	require.NoError(t, err)

	_, err = h.Run(context.Background(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Launches.WithLabelValues("tiled", "warmup")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Launches.WithLabelValues("tiled", "measuring")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LaunchDuration))
}

func TestRun_CPUSession(t *testing.T) {
	session, err := gpu.NewSession(gpu.Options{Backend: gpu.BackendCPU, Workers: 2}, zap.NewNop())
	require.NoError(t, err)
	defer session.Close()

	const order = 8
	a, err := session.Allocate(order * order)
	require.NoError(t, err)
	b, err := session.Allocate(order * order)
	require.NoError(t, err)

	h, err := New(session, kernel.NewNaive(4), order, 2, zap.NewNop())
	require.NoError(t, err)
	timing, err := h.Run(context.Background(), a, b)
	require.NoError(t, err)
	assert.Equal(t, 3, timing.Launches)
	assert.Greater(t, timing.Avg(), time.Duration(0))

	// A starts at zero here, so after three passes every element is 3
	out := make([]float64, order*order)
	require.NoError(t, a.Download(out))
	for _, v := range out {
		assert.Equal(t, 3.0, v)
	}
}
