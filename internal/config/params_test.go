package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArgs(t *testing.T) {
	testCases := []struct {
		name    string
		args    []string
		want    *Params
		wantErr error
	}{
		{
			name: "default tile",
			args: []string{"10", "1024"},
			want: &Params{Iterations: 10, Order: 1024, TileSize: DefaultTileSize},
		},
		{
			name: "explicit tile",
			args: []string{"3", "100", "16"},
			want: &Params{Iterations: 3, Order: 100, TileSize: 16},
		},
		{
			name: "tile equal to order",
			args: []string{"1", "8", "8"},
			want: &Params{Iterations: 1, Order: 8, TileSize: 8},
		},
		{
			name: "tile larger than order is clamped",
			args: []string{"1", "8", "64"},
			want: &Params{Iterations: 1, Order: 8, TileSize: 8, TileClamped: true},
		},
		{
			name: "zero tile is clamped",
			args: []string{"1", "8", "0"},
			want: &Params{Iterations: 1, Order: 8, TileSize: 8, TileClamped: true},
		},
		{
			name: "negative tile is clamped",
			args: []string{"1", "8", "-4"},
			want: &Params{Iterations: 1, Order: 8, TileSize: 8, TileClamped: true},
		},
		{
			name: "default tile clamped for small order",
			args: []string{"2", "4"},
			want: &Params{Iterations: 2, Order: 4, TileSize: 4, TileClamped: true},
		},
		{
			name: "largest order",
			args: []string{"1", "46340"},
			want: &Params{Iterations: 1, Order: MaxOrder, TileSize: DefaultTileSize},
		},
		{name: "too few", args: []string{"10"}, wantErr: ErrUsage},
		{name: "too many", args: []string{"1", "2", "3", "4"}, wantErr: ErrUsage},
		{name: "not a number", args: []string{"ten", "100"}, wantErr: ErrUsage},
		{name: "zero iterations", args: []string{"0", "100"}, wantErr: ErrIterations},
		{name: "negative iterations", args: []string{"-1", "100"}, wantErr: ErrIterations},
		{name: "zero order", args: []string{"1", "0"}, wantErr: ErrOrder},
		{name: "order overflow", args: []string{"1", "46341"}, wantErr: ErrOrderOverflow},
		{name: "order beyond int32", args: []string{"1", "99999999999"}, wantErr: ErrOrderOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseArgs(tc.args)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParams_Bytes(t *testing.T) {
	p := Params{Order: MaxOrder}
	assert.Equal(t, int64(MaxOrder)*MaxOrder*8, p.Bytes())
}
