// Package kernel holds the transpose strategies. Each one computes, for every
// (i, j) of an order×order problem,
//
//	B[i*order+j] += A[j*order+i]
//	A[j*order+i] += 1.0
//
// and differs only in how the index space is split into work-groups.
package kernel

import (
	"fmt"
	"sort"

	"github.com/fxnlabs/transpose-bench/internal/gpu"
)

// Names of the available strategies.
const (
	NaiveName = "naive"
	TiledName = "tiled"
)

// Strategy is a transpose kernel that can be launched on any gpu.Backend.
type Strategy interface {
	gpu.Kernel

	// TileSize is the work-group edge the strategy actually uses.
	TileSize() int

	// Warnings lists the reasons why a run of the given order on the given
	// device is expected not to validate. A non-empty result is advisory; the
	// run still proceeds.
	Warnings(order int, info gpu.DeviceInfo) []string
}

var constructors = map[string]func(tile int) Strategy{
	NaiveName: func(tile int) Strategy { return NewNaive(tile) },
	TiledName: func(int) Strategy { return NewTiled() },
}

// New returns the strategy registered under name. tile is the work-group edge
// for strategies that take one.
func New(name string, tile int) (Strategy, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown kernel %q (available: %v)", name, Names())
	}
	return ctor(tile), nil
}

// Names returns the registered strategy names in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
