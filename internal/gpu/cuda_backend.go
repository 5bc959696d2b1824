//go:build cuda
// +build cuda

package gpu

import (
	"context"
	"fmt"

	"github.com/fxnlabs/transpose-bench/cuda"
	"go.uber.org/zap"
)

// CUDABackend implements Backend using NVIDIA CUDA
type CUDABackend struct {
	logger      *zap.Logger
	initialized bool
	deviceInfo  DeviceInfo
	available   bool
}

// NewCUDABackend creates a new CUDA backend instance
func NewCUDABackend(logger *zap.Logger) *CUDABackend {
	backend := &CUDABackend{
		logger: logger,
	}

	if err := cuda.CheckDevice(); err != nil {
		logger.Warn("CUDA device not available", zap.Error(err))
		backend.available = false
	} else {
		backend.available = true
	}

	return backend
}

// Initialize prepares the CUDA backend for use
func (c *CUDABackend) Initialize() error {
	if !c.available {
		return fmt.Errorf("CUDA device not available")
	}
	if c.initialized {
		return nil
	}

	c.logger.Debug("Initializing CUDA backend")
	if err := cuda.Init(); err != nil {
		return err
	}

	info, err := cuda.GetDeviceInfo()
	if err != nil {
		return err
	}
	c.deviceInfo = DeviceInfo{
		Name:               info.Name,
		TotalMemory:        int64(info.TotalMemory),
		AvailableMemory:    int64(info.FreeMemory),
		ComputeCapability:  fmt.Sprintf("%d.%d", info.Major, info.Minor),
		DriverVersion:      formatCUDAVersion(info.DriverVersion),
		CUDAVersion:        formatCUDAVersion(info.RuntimeVersion),
		MaxThreadsPerBlock: info.MaxThreadsPerBlock,
		MultiProcessors:    info.MultiProcessorCount,
	}

	c.initialized = true
	c.logger.Info("CUDA backend initialized",
		zap.String("device", c.deviceInfo.Name),
		zap.String("compute_capability", c.deviceInfo.ComputeCapability),
		zap.Float64("total_memory_gb", float64(c.deviceInfo.TotalMemory)/(1<<30)))
	return nil
}

// Allocate reserves a zero-filled device buffer.
func (c *CUDABackend) Allocate(n int) (Buffer, error) {
	if !c.initialized {
		return nil, ErrNotInitialized
	}
	ptr, err := cuda.Malloc(n)
	if err != nil {
		return nil, err
	}
	return &cudaBuffer{owner: c, ptr: ptr, live: true}, nil
}

// Launch enqueues the native kernel matching k.Name.
func (c *CUDABackend) Launch(_ context.Context, k Kernel, order int, a, b Buffer) error {
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

	cfg := k.LaunchConfig(order)
	c.logger.Debug("Launching CUDA kernel",
		zap.String("kernel", k.Name()),
		zap.Int("order", order),
		zap.Int("groups", cfg.Groups()),
		zap.Int("group_size", cfg.Block.Size()))

	switch k.Name() {
	case "naive":
		return cuda.LaunchNaive(order, cfg.Block.X, da.ptr, db.ptr)
	case "tiled":
		return cuda.LaunchTiled(order, da.ptr, db.ptr)
	default:
		return fmt.Errorf("no CUDA implementation of kernel %q", k.Name())
	}
}

// Synchronize waits for the device to become idle.
func (c *CUDABackend) Synchronize() error {
	if !c.initialized {
		return nil
	}
	return cuda.Synchronize()
}

// GetDeviceInfo returns information about the CUDA device
func (c *CUDABackend) GetDeviceInfo() DeviceInfo {
	return c.deviceInfo
}

// IsAvailable checks if CUDA is available
func (c *CUDABackend) IsAvailable() bool {
	return c.available
}

// Cleanup releases CUDA resources
func (c *CUDABackend) Cleanup() error {
	if !c.initialized {
		return nil
	}

	c.logger.Debug("Cleaning up CUDA backend")
	if err := cuda.Cleanup(); err != nil {
		return err
	}
	c.initialized = false
	return nil
}

func (c *CUDABackend) own(b Buffer) (*cudaBuffer, error) {
	cb, ok := b.(*cudaBuffer)
	if !ok || cb.owner != c {
		return nil, ErrForeignBuffer
	}
	if !cb.live {
		return nil, ErrReleased
	}
	return cb, nil
}

// formatCUDAVersion renders the 1000*major+10*minor encoding used by CUDA.
func formatCUDAVersion(v int) string {
	return fmt.Sprintf("%d.%d", v/1000, (v%1000)/10)
}

type cudaBuffer struct {
	owner *CUDABackend
	ptr   cuda.DevicePtr
	live  bool
}

func (b *cudaBuffer) Len() int {
	return b.ptr.Len()
}

func (b *cudaBuffer) Upload(src []float64) error {
	if !b.live {
		return ErrReleased
	}
	return cuda.Upload(b.ptr, src)
}

func (b *cudaBuffer) Download(dst []float64) error {
	if !b.live {
		return ErrReleased
	}
	return cuda.Download(dst, b.ptr)
}

func (b *cudaBuffer) Release() error {
	if !b.live {
		return nil
	}
	b.live = false
	return cuda.Free(b.ptr)
}
