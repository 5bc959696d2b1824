//go:build cuda
// +build cuda

// Package cuda binds the CUDA transpose kernels in transpose.cu.
package cuda

/*
#cgo CFLAGS: -I${SRCDIR}
#cgo LDFLAGS: -L${SRCDIR} -ltranspose_cuda -lcudart

#include "transpose.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"
)

//go:generate nvcc -O3 -Xcompiler -fPIC -shared -o libtranspose_cuda.so transpose.cu

// TileDim and BlockRows are the geometry of the tiled kernel.
const (
	TileDim   = C.TRANSPOSE_TILE_DIM
	BlockRows = C.TRANSPOSE_BLOCK_ROWS
)

// DeviceInfo represents CUDA device information
type DeviceInfo struct {
	Name                string
	Major               int
	Minor               int
	TotalMemory         uint64 // in bytes
	FreeMemory          uint64 // in bytes
	MaxThreadsPerBlock  int
	MultiProcessorCount int
	DriverVersion       int
	RuntimeVersion      int
}

// DevicePtr is a device allocation of float64 elements.
type DevicePtr struct {
	ptr *C.double
	n   int
}

// Len returns the number of elements of the allocation.
func (p DevicePtr) Len() int {
	return p.n
}

// CheckDevice checks if a CUDA device is available
func CheckDevice() error {
	if err := C.transpose_check_device(); err != C.cudaSuccess {
		return fmt.Errorf("CUDA device check failed: %s", getCudaErrorString(err))
	}
	return nil
}

// Init initializes the CUDA context
func Init() error {
	if err := C.transpose_init(); err != C.cudaSuccess {
		return fmt.Errorf("CUDA initialization failed: %s", getCudaErrorString(err))
	}
	return nil
}

// Cleanup releases CUDA resources
func Cleanup() error {
	if err := C.transpose_cleanup(); err != C.cudaSuccess {
		return fmt.Errorf("CUDA cleanup failed: %s", getCudaErrorString(err))
	}
	return nil
}

// GetDeviceInfo returns information about the current CUDA device
func GetDeviceInfo() (*DeviceInfo, error) {
	var cInfo C.TransposeDeviceInfo
	if err := C.transpose_get_device_info(&cInfo); err != C.cudaSuccess {
		return nil, fmt.Errorf("failed to get device info: %s", getCudaErrorString(err))
	}

	return &DeviceInfo{
		Name:                C.GoString(&cInfo.name[0]),
		Major:               int(cInfo.major),
		Minor:               int(cInfo.minor),
		TotalMemory:         uint64(cInfo.total_memory),
		FreeMemory:          uint64(cInfo.free_memory),
		MaxThreadsPerBlock:  int(cInfo.max_threads_per_block),
		MultiProcessorCount: int(cInfo.multi_processor_count),
		DriverVersion:       int(cInfo.driver_version),
		RuntimeVersion:      int(cInfo.runtime_version),
	}, nil
}

// Malloc allocates n zero-filled float64 elements on the device.
func Malloc(n int) (DevicePtr, error) {
	var ptr *C.double
	if err := C.transpose_malloc(&ptr, C.size_t(n)); err != C.cudaSuccess {
		return DevicePtr{}, fmt.Errorf("cudaMalloc of %d elements failed: %s", n, getCudaErrorString(err))
	}
	return DevicePtr{ptr: ptr, n: n}, nil
}

// Free releases a device allocation.
func Free(p DevicePtr) error {
	if p.ptr == nil {
		return nil
	}
	if err := C.transpose_free(p.ptr); err != C.cudaSuccess {
		return fmt.Errorf("cudaFree failed: %s", getCudaErrorString(err))
	}
	return nil
}

// Upload copies src into the device allocation.
func Upload(dst DevicePtr, src []float64) error {
	if len(src) != dst.n {
		return fmt.Errorf("upload size mismatch: expected %d, got %d", dst.n, len(src))
	}
	if dst.n == 0 {
		return nil
	}
	srcPtr := (*C.double)(unsafe.Pointer(&src[0]))
	if err := C.transpose_upload(dst.ptr, srcPtr, C.size_t(dst.n)); err != C.cudaSuccess {
		return fmt.Errorf("host to device copy failed: %s", getCudaErrorString(err))
	}
	return nil
}

// Download copies the device allocation into dst.
func Download(dst []float64, src DevicePtr) error {
	if len(dst) != src.n {
		return fmt.Errorf("download size mismatch: expected %d, got %d", src.n, len(dst))
	}
	if src.n == 0 {
		return nil
	}
	dstPtr := (*C.double)(unsafe.Pointer(&dst[0]))
	if err := C.transpose_download(dstPtr, src.ptr, C.size_t(src.n)); err != C.cudaSuccess {
		return fmt.Errorf("device to host copy failed: %s", getCudaErrorString(err))
	}
	return nil
}

// LaunchNaive enqueues the element-wise kernel with tile×tile thread blocks.
func LaunchNaive(order, tile int, a, b DevicePtr) error {
	if err := C.transpose_launch_naive(C.uint(order), C.uint(tile), a.ptr, b.ptr); err != C.cudaSuccess {
		return fmt.Errorf("naive transpose launch failed: %s", getCudaErrorString(err))
	}
	return nil
}

// LaunchTiled enqueues the shared-memory kernel.
func LaunchTiled(order int, a, b DevicePtr) error {
	if err := C.transpose_launch_tiled(C.uint(order), a.ptr, b.ptr); err != C.cudaSuccess {
		return fmt.Errorf("tiled transpose launch failed: %s", getCudaErrorString(err))
	}
	return nil
}

// Synchronize blocks until all queued device work has finished.
func Synchronize() error {
	if err := C.transpose_synchronize(); err != C.cudaSuccess {
		return fmt.Errorf("cudaDeviceSynchronize failed: %s", getCudaErrorString(err))
	}
	return nil
}

// getCudaErrorString converts CUDA error code to string
func getCudaErrorString(err C.cudaError_t) string {
	return C.GoString(C.cudaGetErrorString(err))
}
