package gpu

import (
	"context"
	"errors"
)

var (
	// ErrNotInitialized is returned when a backend is used before Initialize.
	ErrNotInitialized = errors.New("backend not initialized")
	// ErrReleased is returned by buffer operations after Release.
	ErrReleased = errors.New("buffer already released")
	// ErrLaunchPending is returned when a kernel is launched before the previous
	// launch was synchronized. Launches are never overlapped.
	ErrLaunchPending = errors.New("previous launch not synchronized")
	// ErrForeignBuffer is returned when a buffer allocated by one backend is
	// handed to another.
	ErrForeignBuffer = errors.New("buffer does not belong to this backend")
)

// DeviceInfo contains information about the compute device
type DeviceInfo struct {
	Name              string `json:"name"`
	TotalMemory       int64  `json:"totalMemory"`     // in bytes
	AvailableMemory   int64  `json:"availableMemory"` // in bytes
	ComputeCapability string `json:"computeCapability"`
	DriverVersion     string `json:"driverVersion"`
	CUDAVersion       string `json:"cudaVersion,omitempty"`
	// MaxThreadsPerBlock is the largest number of work units a single
	// work-group may hold.
	MaxThreadsPerBlock int `json:"maxThreadsPerBlock"`
	// MultiProcessors is the number of work-groups that can execute at once.
	MultiProcessors int `json:"multiProcessors"`
}

// Buffer is an owned handle on a device-resident linear array of float64.
//
// A buffer is created by Backend.Allocate and must be released exactly once;
// Release is idempotent so it can be deferred on every path.
type Buffer interface {
	// Len returns the number of float64 elements in the buffer.
	Len() int
	// Upload copies src from host memory into the buffer. len(src) must equal Len.
	Upload(src []float64) error
	// Download copies the buffer into dst in host memory. len(dst) must equal Len.
	Download(dst []float64) error
	// Release frees the device memory.
	Release() error
}

// Backend defines the interface for compute backends.
// This interface allows for multiple device implementations (CUDA, host
// emulation) behind one API for buffer management and kernel dispatch.
//
// Implementation notes:
// - Launch is asynchronous; Synchronize blocks until the last launch completed
// - Automatic fallback to CPU is handled by the Session, not the backend
// - Resource cleanup is critical to prevent device memory leaks
type Backend interface {
	// Allocate reserves a zero-filled device buffer of n float64 elements.
	Allocate(n int) (Buffer, error)

	// Launch enqueues one execution of k over an order×order problem, with a
	// and b as its source and destination. It returns as soon as the work is
	// queued.
	Launch(ctx context.Context, k Kernel, order int, a, b Buffer) error

	// Synchronize blocks until the most recent launch has finished and reports
	// any error it produced.
	Synchronize() error

	// GetDeviceInfo returns information about the device
	GetDeviceInfo() DeviceInfo

	// IsAvailable checks if the backend is available for use
	// This should perform a quick check without heavy initialization
	IsAvailable() bool

	// Initialize prepares the backend for use. Should be called once before
	// first use.
	Initialize() error

	// Cleanup releases any resources held by the backend.
	// Must be called when the backend is no longer needed
	Cleanup() error
}
