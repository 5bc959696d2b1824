//go:build !cuda
// +build !cuda

package gpu

// tryCreateCUDABackend reports no CUDA backend when built without the cuda tag
func (s *Session) tryCreateCUDABackend() Backend {
	return nil
}
