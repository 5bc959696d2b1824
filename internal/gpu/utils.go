package gpu

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// NewHostMatrix allocates a zeroed order×order matrix in host memory, backed
// by a single contiguous row-major slice so it can be copied to the device
// in one transfer.
func NewHostMatrix(order int) *mat.Dense {
	return mat.NewDense(order, order, nil)
}

// HostData returns the row-major backing slice of a host matrix.
func HostData(m *mat.Dense) []float64 {
	raw := m.RawMatrix()
	if raw.Stride != raw.Cols {
		panic(fmt.Sprintf("gpu: host matrix is not contiguous (stride %d, cols %d)", raw.Stride, raw.Cols))
	}
	return raw.Data[:raw.Rows*raw.Cols]
}

// UploadMatrix copies a host matrix into a device buffer of the same size.
func UploadMatrix(dst Buffer, src *mat.Dense) error {
	return dst.Upload(HostData(src))
}

// DownloadMatrix copies a device buffer back into a host matrix.
func DownloadMatrix(dst *mat.Dense, src Buffer) error {
	return src.Download(HostData(dst))
}
