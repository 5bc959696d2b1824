package kernel

import (
	"fmt"

	"github.com/fxnlabs/transpose-bench/internal/gpu"
)

const (
	// TileDim is the edge of the square tile one work-group transposes.
	TileDim = 32
	// BlockRows is the height of the band each unit row covers per step.
	BlockRows = 8

	// One padding column keeps column reads of the staged tile off a single
	// shared-memory bank.
	sharedStride = TileDim + 1
)

// Tiled stages a TileDim×TileDim block of A in group-shared storage and then
// writes it to B transposed, so that both the reads and the writes walk
// memory row-wise. Work-groups are TileDim×BlockRows units; each unit handles
// TileDim/BlockRows elements per phase.
//
// The grid covers order/TileDim tiles per axis, so an order that is not a
// multiple of TileDim leaves its last rows and columns untouched.
type Tiled struct{}

// NewTiled returns the shared-memory strategy.
func NewTiled() *Tiled {
	return &Tiled{}
}

func (t *Tiled) Name() string { return TiledName }

func (t *Tiled) TileSize() int { return TileDim }

func (t *Tiled) LaunchConfig(order int) gpu.LaunchConfig {
	groups := order / TileDim
	return gpu.LaunchConfig{
		Grid:        gpu.Dim3{X: groups, Y: groups, Z: 1},
		Block:       gpu.Dim3{X: TileDim, Y: BlockRows, Z: 1},
		SharedWords: TileDim * sharedStride,
	}
}

func (t *Tiled) ExecuteGroup(g *gpu.WorkGroup, order int, a, b []float64) {
	tile := g.Shared

	// Stage: unit (tx, ty) copies rows ty, ty+BlockRows, ... of the source tile.
	for ty := 0; ty < g.BlockDim.Y; ty++ {
		for tx := 0; tx < g.BlockDim.X; tx++ {
			x := g.BlockIdx.X*TileDim + tx
			y := g.BlockIdx.Y*TileDim + ty
			for j := 0; j < TileDim; j += BlockRows {
				if x < order && y+j < order {
					idx := (y+j)*order + x
					tile[(ty+j)*sharedStride+tx] = a[idx]
					a[idx] += 1.0
				}
			}
		}
	}

	// Barrier: the loop above finished for every unit of the group.

	// Write back with block coordinates swapped, reading the tile column-wise.
	for ty := 0; ty < g.BlockDim.Y; ty++ {
		for tx := 0; tx < g.BlockDim.X; tx++ {
			x := g.BlockIdx.Y*TileDim + tx
			y := g.BlockIdx.X*TileDim + ty
			for j := 0; j < TileDim; j += BlockRows {
				if x < order && y+j < order {
					b[(y+j)*order+x] += tile[tx*sharedStride+ty+j]
				}
			}
		}
	}
}

func (t *Tiled) Warnings(order int, info gpu.DeviceInfo) []string {
	var warnings []string
	if order%TileDim != 0 {
		warnings = append(warnings, fmt.Sprintf(
			"matrix order %d is not a multiple of the tile dimension %d; results will not validate",
			order, TileDim))
	}
	if units := TileDim * BlockRows; info.MaxThreadsPerBlock > 0 && units > info.MaxThreadsPerBlock {
		warnings = append(warnings, fmt.Sprintf(
			"tiled kernel needs %d units per work-group, above the device limit of %d",
			units, info.MaxThreadsPerBlock))
	}
	return warnings
}
