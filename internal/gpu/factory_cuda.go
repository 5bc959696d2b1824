//go:build cuda
// +build cuda

package gpu

// tryCreateCUDABackend attempts to create a CUDA backend when cuda build tag is present
func (s *Session) tryCreateCUDABackend() Backend {
	return NewCUDABackend(s.logger)
}
