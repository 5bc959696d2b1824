package gpu

// Dim3 is a three dimensional extent or index, as used for grids and
// work-groups.
type Dim3 struct {
	X, Y, Z int
}

// Size returns the number of points in the extent. Zero components count as 1.
func (d Dim3) Size() int {
	return atLeastOne(d.X) * atLeastOne(d.Y) * atLeastOne(d.Z)
}

func atLeastOne(v int) int {
	if v < 1 {
		return 1
	}
	return v
}

// LaunchConfig describes how a kernel is partitioned into work-groups.
type LaunchConfig struct {
	// Grid is the number of work-groups along each axis.
	Grid Dim3
	// Block is the number of work units inside one work-group.
	Block Dim3
	// SharedWords is the number of float64 words of group-shared storage
	// each work-group needs.
	SharedWords int
}

// Groups returns the total number of work-groups of the launch. An empty axis
// means an empty launch.
func (c LaunchConfig) Groups() int {
	if c.Grid.X <= 0 || c.Grid.Y <= 0 {
		return 0
	}
	return c.Grid.Size()
}

// WorkGroup is the execution context of one work-group on a host-emulated
// device.
type WorkGroup struct {
	BlockIdx Dim3
	BlockDim Dim3
	// Shared is group-shared scratch storage of LaunchConfig.SharedWords
	// words. Its contents are undefined when the group starts.
	Shared []float64
}

// Kernel is a data-parallel program that a Backend can launch.
//
// Name identifies the kernel to backends that carry a native implementation
// (CUDA). ExecuteGroup is the host rendition used by the CPU backend: it runs
// every work unit of one group, honouring any intra-group barrier by phase
// ordering. Distinct groups must never write the same element.
type Kernel interface {
	Name() string
	LaunchConfig(order int) LaunchConfig
	ExecuteGroup(g *WorkGroup, order int, a, b []float64)
}
