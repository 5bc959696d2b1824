package kernel

import (
	"fmt"

	"github.com/fxnlabs/transpose-bench/internal/gpu"
)

// Naive assigns one work unit per element and groups units into tile×tile
// work-groups. Units past the matrix edge do nothing.
type Naive struct {
	tile int
}

// NewNaive returns the element-wise strategy. tile < 1 is treated as 1.
func NewNaive(tile int) *Naive {
	if tile < 1 {
		tile = 1
	}
	return &Naive{tile: tile}
}

func (n *Naive) Name() string { return NaiveName }

func (n *Naive) TileSize() int { return n.tile }

func (n *Naive) LaunchConfig(order int) gpu.LaunchConfig {
	groups := (order + n.tile - 1) / n.tile
	return gpu.LaunchConfig{
		Grid:  gpu.Dim3{X: groups, Y: groups, Z: 1},
		Block: gpu.Dim3{X: n.tile, Y: n.tile, Z: 1},
	}
}

func (n *Naive) ExecuteGroup(g *gpu.WorkGroup, order int, a, b []float64) {
	for ty := 0; ty < g.BlockDim.Y; ty++ {
		j := g.BlockIdx.Y*g.BlockDim.Y + ty
		for tx := 0; tx < g.BlockDim.X; tx++ {
			i := g.BlockIdx.X*g.BlockDim.X + tx
			if i < order && j < order {
				b[i*order+j] += a[j*order+i]
				a[j*order+i] += 1.0
			}
		}
	}
}

func (n *Naive) Warnings(order int, info gpu.DeviceInfo) []string {
	var warnings []string
	if units := n.tile * n.tile; info.MaxThreadsPerBlock > 0 && units > info.MaxThreadsPerBlock {
		warnings = append(warnings, fmt.Sprintf(
			"tile_size %d gives %d units per work-group, above the device limit of %d; results may not validate",
			n.tile, units, info.MaxThreadsPerBlock))
	}
	return warnings
}
