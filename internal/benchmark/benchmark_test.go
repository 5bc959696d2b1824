package benchmark

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/fxnlabs/transpose-bench/internal/config"
	"github.com/fxnlabs/transpose-bench/internal/gpu"
	"github.com/fxnlabs/transpose-bench/internal/kernel"
	"github.com/fxnlabs/transpose-bench/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSession(t *testing.T) *gpu.Session {
	t.Helper()
	session, err := gpu.NewSession(gpu.Options{Backend: gpu.BackendCPU, Workers: 3}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func mustParse(t *testing.T, args ...string) *config.Params {
	t.Helper()
	p, err := config.ParseArgs(args)
	require.NoError(t, err)
	return p
}

func TestBandwidth(t *testing.T) {
	testCases := []struct {
		order int
		avg   float64
		want  float64
	}{
		{order: 1, avg: 1, want: 16e-6},
		{order: 1024, avg: 0.001, want: 16777.216},
		{order: 4, avg: 2, want: 128e-6},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.want, Bandwidth(tc.order, tc.avg), tc.want*1e-12)
	}
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name     string
		strategy kernel.Strategy
		args     []string
	}{
		{name: "naive order 1", strategy: kernel.NewNaive(1), args: []string{"1", "1"}},
		{name: "naive order 4", strategy: kernel.NewNaive(4), args: []string{"2", "4"}},
		{name: "naive ragged tiles", strategy: kernel.NewNaive(7), args: []string{"3", "50", "7"}},
		{name: "tiled order 64", strategy: kernel.NewTiled(), args: []string{"2", "64"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			m := metrics.New()
			params := mustParse(t, tc.args...)
			b := New(newSession(t), tc.strategy, params, zap.NewNop(), Options{Out: &out, Metrics: m})

			report, err := b.Run(context.Background())
			require.NoError(t, err)

			assert.True(t, report.Validation.Valid)
			assert.Zero(t, report.Validation.AbsErr)
			assert.Empty(t, report.Warnings)
			assert.Equal(t, params.Iterations+1, report.Timing.Launches)
			assert.Greater(t, report.Timing.Avg().Seconds(), 0.0)
			assert.InDelta(t, Bandwidth(params.Order, report.Timing.Avg().Seconds()), report.Bandwidth, 1e-9)

			text := out.String()
			assert.True(t, strings.HasPrefix(text, "Parallel Research Kernels version 2\n"))
			assert.Contains(t, text, "Go/cpu Matrix transpose: B = A^T")
			assert.Contains(t, text, "Solution validates\n")
			assert.Contains(t, text, "Rate (MB/s): ")
			assert.Contains(t, text, " Avg time (s): ")

			assert.Equal(t, 1.0, testutil.ToFloat64(m.Validated))
			assert.Equal(t, float64(params.Order), testutil.ToFloat64(m.MatrixOrder))
		})
	}
}

func TestRun_Header(t *testing.T) {
	var out bytes.Buffer
	b := New(newSession(t), kernel.NewNaive(4), mustParse(t, "2", "4"), nil, Options{Out: &out})
	_, err := b.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Number of iterations  = 2\n")
	assert.Contains(t, out.String(), "Matrix order          = 4\n")
	assert.Contains(t, out.String(), "Tile size             = 4\n")
	assert.Contains(t, out.String(), "Kernel                = naive\n")
	assert.Contains(t, out.String(), "Matrix footprint      = 256 B\n")
}

func TestRun_TiledNonMultipleOrder(t *testing.T) {
	var out bytes.Buffer
	m := metrics.New()
	b := New(newSession(t), kernel.NewTiled(), mustParse(t, "1", "40"), nil, Options{Out: &out, Metrics: m})

	report, err := b.Run(context.Background())
	assert.ErrorIs(t, err, ErrValidation)
	require.NotNil(t, report)
	require.Len(t, report.Warnings, 1)
	assert.False(t, report.Validation.Valid)
	assert.Zero(t, report.Bandwidth)

	assert.Contains(t, out.String(), "WARNING: ")
	assert.Contains(t, out.String(), "ERROR: Aggregate squared error ")
	assert.Contains(t, out.String(), "exceeds threshold 1e-08\n")
	assert.NotContains(t, out.String(), "Solution validates")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Validated))
}

func TestRun_Dump(t *testing.T) {
	var out bytes.Buffer
	b := New(newSession(t), kernel.NewTiled(), mustParse(t, "1", "33"), nil, Options{Out: &out, Dump: true})

	_, err := b.Run(context.Background())
	require.ErrorIs(t, err, ErrValidation)

	// One line per element follows the error line
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "32 32 1088.000000 0.000000", lines[len(lines)-1])
	assert.Equal(t, "0 0 2.000000 1.000000", lines[len(lines)-33*33])
}

func TestRun_Banner(t *testing.T) {
	var out bytes.Buffer
	b := New(newSession(t), kernel.NewNaive(1), mustParse(t, "1", "1"), nil, Options{Out: &out, Banner: true})
	_, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(out.String(), "Parallel Research Kernels"))
	assert.Contains(t, out.String(), "Parallel Research Kernels version 2")
}

func TestRun_Canceled(t *testing.T) {
	var out bytes.Buffer
	b := New(newSession(t), kernel.NewNaive(4), mustParse(t, "5", "16"), nil, Options{Out: &out})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotContains(t, out.String(), "Solution validates")
}
