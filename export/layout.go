package export

import (
	"errors"
	"fmt"

	"github.com/gorustyt/voxelmask/common"
)

var ErrBadRegionSize = errors.New("export: region size must be positive")

// Region is one rectangular export partition in cell units.
type Region struct {
	Index  int
	X, Z   int
	Width  int
	Height int
}

func (r Region) CellCount() int {
	return r.Width * r.Height
}

// Layout splits a grid into regions of Size x Size cells. Regions on the far
// edges are truncated to the grid.
type Layout struct {
	GridWidth  int
	GridHeight int
	Size       int
	RegionsX   int
	RegionsZ   int
	Regions    []Region
}

// Partition lays out the regions of a width x height grid in row-major
// order: region i starts at ((i % RegionsX) * size, (i / RegionsX) * size).
func Partition(width, height, size int) (Layout, error) {
	if size <= 0 {
		return Layout{}, fmt.Errorf("%w: %d", ErrBadRegionSize, size)
	}
	if width <= 0 || height <= 0 {
		return Layout{}, fmt.Errorf("export: empty grid %d x %d", width, height)
	}
	l := Layout{
		GridWidth:  width,
		GridHeight: height,
		Size:       size,
		RegionsX:   common.CeilDiv(width, size),
		RegionsZ:   common.CeilDiv(height, size),
	}
	n := l.RegionsX * l.RegionsZ
	l.Regions = make([]Region, n)
	for i := 0; i < n; i++ {
		cx := (i % l.RegionsX) * size
		cz := (i / l.RegionsX) * size
		l.Regions[i] = Region{
			Index:  i,
			X:      cx,
			Z:      cz,
			Width:  min(size, width-cx),
			Height: min(size, height-cz),
		}
	}
	return l, nil
}

// Uneven reports whether the edge regions are truncated.
func (l Layout) Uneven() bool {
	return l.GridWidth%l.Size != 0 || l.GridHeight%l.Size != 0
}
