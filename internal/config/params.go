package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// DefaultTileSize is the work-group edge used when none is given.
	DefaultTileSize = 32

	// MaxOrder keeps order² within 32-bit index arithmetic on the device.
	MaxOrder = 46340 // floor(sqrt(math.MaxInt32))
)

var (
	ErrUsage         = errors.New("usage: <# iterations> <matrix order> [tile size]")
	ErrIterations    = errors.New("iterations must be >= 1")
	ErrOrder         = errors.New("matrix order must be positive")
	ErrOrderOverflow = errors.New("matrix dimension too large - overflow risk")
)

// Params are the validated positional arguments of one run.
type Params struct {
	Iterations int
	Order      int
	TileSize   int
	// TileClamped reports that the requested tile size was out of range and
	// was replaced by Order.
	TileClamped bool
}

// Bytes returns the size of one order×order matrix of float64.
func (p Params) Bytes() int64 {
	return int64(p.Order) * int64(p.Order) * 8
}

// ParseArgs validates `<iterations> <matrix_order> [tile_size]`. Nothing is
// allocated before this succeeds.
func ParseArgs(args []string) (*Params, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, ErrUsage
	}

	iterations, err := parseInt("iterations", args[0])
	if err != nil {
		return nil, err
	}
	if iterations < 1 {
		return nil, fmt.Errorf("%w: %d", ErrIterations, iterations)
	}

	order, err := parseInt("matrix order", args[1])
	if err != nil {
		return nil, err
	}
	if order <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrOrder, order)
	}
	if order > MaxOrder {
		return nil, fmt.Errorf("%w: %d > %d", ErrOrderOverflow, order, MaxOrder)
	}

	tile := DefaultTileSize
	if len(args) == 3 {
		if tile, err = parseInt("tile size", args[2]); err != nil {
			return nil, err
		}
	}

	p := &Params{Iterations: iterations, Order: order, TileSize: tile}
	if tile <= 0 || tile > order {
		p.TileSize = order
		p.TileClamped = true
	}
	return p, nil
}

func parseInt(name, s string) (int, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not an integer", ErrUsage, name, s)
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		if name == "matrix order" && v > 0 {
			return 0, fmt.Errorf("%w: %d > %d", ErrOrderOverflow, v, MaxOrder)
		}
		return 0, fmt.Errorf("%w: %s %d out of range", ErrUsage, name, v)
	}
	return int(v), nil
}
