package gpu

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pbnjay/memory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"
)

// cpuMaxThreadsPerBlock mirrors the work-group limit of current CUDA devices
// so that launch geometries behave the same on both backends.
const cpuMaxThreadsPerBlock = 1024

// CPUBackend implements Backend by emulating the device on the host.
// Work-groups are distributed over a fixed set of goroutines.
type CPUBackend struct {
	logger      *zap.Logger
	workers     int
	initialized bool

	mu      sync.Mutex
	pending *errgroup.Group
}

// NewCPUBackend creates a new CPU backend instance. workers <= 0 means one
// worker per logical CPU.
func NewCPUBackend(logger *zap.Logger, workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPUBackend{
		logger:  logger,
		workers: workers,
	}
}

// Initialize prepares the CPU backend for use
func (c *CPUBackend) Initialize() error {
	if c.initialized {
		return nil
	}
	c.initialized = true
	c.logger.Info("CPU backend initialized", zap.Int("workers", c.workers))
	return nil
}

// Cleanup waits for any launch still in flight and marks the backend unusable.
func (c *CPUBackend) Cleanup() error {
	err := c.Synchronize()
	c.initialized = false
	return err
}

// IsAvailable checks if the backend is available (always true for CPU)
func (c *CPUBackend) IsAvailable() bool {
	return true
}

// GetDeviceInfo returns device information for CPU
func (c *CPUBackend) GetDeviceInfo() DeviceInfo {
	return DeviceInfo{
		Name:               fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		TotalMemory:        int64(memory.TotalMemory()),
		AvailableMemory:    int64(memory.FreeMemory()),
		ComputeCapability:  cpuFeatures(),
		DriverVersion:      runtime.Version(),
		MaxThreadsPerBlock: cpuMaxThreadsPerBlock,
		MultiProcessors:    c.workers,
	}
}

// Allocate reserves a zero-filled host buffer standing in for device memory.
func (c *CPUBackend) Allocate(n int) (Buffer, error) {
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid buffer length %d", n)
	}
	return &hostBuffer{owner: c, data: make([]float64, n)}, nil
}

// Launch fans the work-groups of k out to the worker goroutines and returns
// without waiting for them.
func (c *CPUBackend) Launch(ctx context.Context, k Kernel, order int, a, b Buffer) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	da, err := c.own(a)
	if err != nil {
		return fmt.Errorf("source buffer: %w", err)
	}
	db, err := c.own(b)
	if err != nil {
		return fmt.Errorf("destination buffer: %w", err)
	}
	if n := order * order; len(da.data) < n || len(db.data) < n {
		return fmt.Errorf("buffers too small for order %d: have %d and %d elements, need %d",
			order, len(da.data), len(db.data), n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return ErrLaunchPending
	}

	cfg := k.LaunchConfig(order)
	groups := cfg.Groups()
	workers := min(c.workers, groups)

	c.logger.Debug("Launching kernel on CPU backend",
		zap.String("kernel", k.Name()),
		zap.Int("order", order),
		zap.Int("groups", groups),
		zap.Int("group_size", cfg.Block.Size()),
		zap.Int("workers", workers))

	eg, ctx := errgroup.WithContext(ctx)
	var next atomic.Int64
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			group := &WorkGroup{
				BlockDim: cfg.Block,
				Shared:   make([]float64, cfg.SharedWords),
			}
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				n := int(next.Add(1) - 1)
				if n >= groups {
					return nil
				}
				group.BlockIdx = groupIndex(n, cfg.Grid)
				k.ExecuteGroup(group, order, da.data, db.data)
			}
		})
	}
	c.pending = eg
	return nil
}

// Synchronize blocks until the outstanding launch, if any, has completed.
func (c *CPUBackend) Synchronize() error {
	c.mu.Lock()
	eg := c.pending
	c.pending = nil
	c.mu.Unlock()

	if eg == nil {
		return nil
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("kernel execution aborted: %w", err)
	}
	return nil
}

func (c *CPUBackend) own(b Buffer) (*hostBuffer, error) {
	hb, ok := b.(*hostBuffer)
	if !ok || hb.owner != c {
		return nil, ErrForeignBuffer
	}
	if hb.data == nil {
		return nil, ErrReleased
	}
	return hb, nil
}

// groupIndex maps a linear work-group number to its grid coordinate, X fastest.
func groupIndex(n int, grid Dim3) Dim3 {
	gx, gy := atLeastOne(grid.X), atLeastOne(grid.Y)
	return Dim3{X: n % gx, Y: (n / gx) % gy, Z: n / (gx * gy)}
}

// cpuFeatures summarises the vector extensions the host offers.
func cpuFeatures() string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
		if cpu.X86.HasSSE42 {
			features = append(features, "sse4.2")
		}
	case "arm64":
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
	}
	if len(features) == 0 {
		return "N/A"
	}
	return strings.Join(features, ",")
}

// hostBuffer is device memory of the CPU backend.
type hostBuffer struct {
	owner *CPUBackend
	data  []float64
}

func (h *hostBuffer) Len() int {
	return len(h.data)
}

func (h *hostBuffer) Upload(src []float64) error {
	if h.data == nil {
		return ErrReleased
	}
	if len(src) != len(h.data) {
		return fmt.Errorf("upload size mismatch: expected %d, got %d", len(h.data), len(src))
	}
	copy(h.data, src)
	return nil
}

func (h *hostBuffer) Download(dst []float64) error {
	if h.data == nil {
		return ErrReleased
	}
	if len(dst) != len(h.data) {
		return fmt.Errorf("download size mismatch: expected %d, got %d", len(h.data), len(dst))
	}
	copy(dst, h.data)
	return nil
}

func (h *hostBuffer) Release() error {
	h.data = nil
	return nil
}
