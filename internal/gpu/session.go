package gpu

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Backend names accepted by Options.Backend.
const (
	BackendAuto = "auto"
	BackendCPU  = "cpu"
	BackendCUDA = "cuda"
)

// Options selects and tunes the backend of a Session.
type Options struct {
	// Backend is one of BackendAuto, BackendCPU or BackendCUDA. Empty means auto.
	Backend string
	// Workers bounds the goroutines of the CPU backend; <= 0 uses GOMAXPROCS.
	Workers int
}

// Session owns one initialized backend and every buffer allocated through it.
// It is created explicitly and passed to whatever needs the device; closing it
// releases all outstanding buffers and the backend itself.
type Session struct {
	backend Backend
	kind    string
	logger  *zap.Logger

	mu      sync.Mutex
	buffers []Buffer
	closed  bool
}

// NewSession creates a new session and selects the requested backend,
// falling back to CPU when auto-detection finds no accelerator.
func NewSession(opts Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		logger: logger,
	}

	if err := s.detectAndInitialize(opts); err != nil {
		return nil, err
	}

	info := s.backend.GetDeviceInfo()
	s.logger.Info("Device session opened",
		zap.String("backend", s.kind),
		zap.String("device", info.Name),
		zap.String("compute_capability", info.ComputeCapability))
	return s, nil
}

// detectAndInitialize detects available backends and initializes the best one
func (s *Session) detectAndInitialize(opts Options) error {
	switch opts.Backend {
	case "", BackendAuto, BackendCUDA:
		// CUDA exists only when built with the cuda tag
		if cudaBackend := s.tryCreateCUDABackend(); cudaBackend != nil && cudaBackend.IsAvailable() {
			if err := cudaBackend.Initialize(); err == nil {
				s.backend, s.kind = cudaBackend, BackendCUDA
				return nil
			} else if opts.Backend == BackendCUDA {
				_ = cudaBackend.Cleanup()
				return fmt.Errorf("failed to initialize CUDA backend: %w", err)
			}
			_ = cudaBackend.Cleanup()
		}
		if opts.Backend == BackendCUDA {
			return fmt.Errorf("CUDA backend requested but not available")
		}
	case BackendCPU:
	default:
		return fmt.Errorf("unknown backend %q", opts.Backend)
	}

	cpuBackend := NewCPUBackend(s.logger, opts.Workers)
	if err := cpuBackend.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize CPU backend: %w", err)
	}
	s.backend, s.kind = cpuBackend, BackendCPU
	return nil
}

// BackendType returns the name of the active backend.
func (s *Session) BackendType() string {
	return s.kind
}

// DeviceInfo returns device information from the current backend
func (s *Session) DeviceInfo() DeviceInfo {
	return s.backend.GetDeviceInfo()
}

// Allocate reserves a device buffer of n float64 elements owned by the session.
func (s *Session) Allocate(n int) (Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}

	buf, err := s.backend.Allocate(n)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %d elements on %s: %w", n, s.kind, err)
	}
	s.buffers = append(s.buffers, buf)
	return buf, nil
}

// Launch enqueues kernel k on the device.
func (s *Session) Launch(ctx context.Context, k Kernel, order int, a, b Buffer) error {
	if err := s.backend.Launch(ctx, k, order, a, b); err != nil {
		return fmt.Errorf("failed to launch %s kernel: %w", k.Name(), err)
	}
	return nil
}

// Synchronize blocks until the device is idle.
func (s *Session) Synchronize() error {
	return s.backend.Synchronize()
}

// Close releases every buffer that was not released yet and cleans up the
// backend. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	// Drain in-flight work before freeing the memory it uses.
	errs := []error{s.backend.Synchronize()}
	for _, buf := range s.buffers {
		errs = append(errs, buf.Release())
	}
	s.buffers = nil
	errs = append(errs, s.backend.Cleanup())

	s.logger.Debug("Device session closed", zap.String("backend", s.kind))
	return errors.Join(errs...)
}
