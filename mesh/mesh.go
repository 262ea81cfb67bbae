package mesh

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gorustyt/voxelmask/common"
)

var (
	ErrBadVertexArray = errors.New("mesh: vertex array length is not a multiple of 3")
	ErrBadIndexArray  = errors.New("mesh: index array length is not a multiple of 3")
	ErrIndexRange     = errors.New("mesh: triangle index out of range")
)

// Group holds every triangle added under one mask, with per-triangle area
// ids. Indices are relative to the group's own vertex array.
type Group struct {
	Mask  uint16
	Verts []float32
	Tris  []int32
	Areas []uint8
	Masks []uint16
}

func (g *Group) VertCount() int { return len(g.Verts) / 3 }
func (g *Group) TriCount() int  { return len(g.Tris) / 3 }

func (g *Group) Bounds() common.Bounds {
	return common.CalcBounds(g.Verts)
}

// Data accumulates triangle soups keyed by auxiliary mask. Mask 0 is the base
// terrain, every other mask is an overlay.
type Data struct {
	groups map[uint16]*Group
}

func NewData() *Data {
	return &Data{groups: make(map[uint16]*Group)}
}

// Add appends a mesh to the group of mask. The triangle indices are rebased
// onto the group's vertex array.
func (d *Data) Add(verts []float32, tris []int32, area uint8, mask uint16) error {
	if len(verts)%3 != 0 {
		return fmt.Errorf("%w: %d", ErrBadVertexArray, len(verts))
	}
	if len(tris)%3 != 0 {
		return fmt.Errorf("%w: %d", ErrBadIndexArray, len(tris))
	}
	nv := int32(len(verts) / 3)
	for i, idx := range tris {
		if idx < 0 || idx >= nv {
			return fmt.Errorf("%w: tris[%d]=%d, %d vertices", ErrIndexRange, i, idx, nv)
		}
	}

	g, ok := d.groups[mask]
	if !ok {
		g = &Group{Mask: mask}
		d.groups[mask] = g
	}
	base := int32(g.VertCount())
	g.Verts = append(g.Verts, verts...)
	for _, idx := range tris {
		g.Tris = append(g.Tris, base+idx)
	}
	for i := 0; i < len(tris)/3; i++ {
		g.Areas = append(g.Areas, area)
		g.Masks = append(g.Masks, mask)
	}
	return nil
}

// Group returns the group of mask, or nil.
func (d *Data) Group(mask uint16) *Group {
	return d.groups[mask]
}

func (d *Data) HasBase() bool {
	g, ok := d.groups[0]
	return ok && g.TriCount() > 0
}

// Masks returns the masks present, ascending, so overlays rasterize in a
// stable order.
func (d *Data) Masks() []uint16 {
	masks := make([]uint16, 0, len(d.groups))
	for m := range d.groups {
		masks = append(masks, m)
	}
	sort.Slice(masks, func(i, j int) bool { return masks[i] < masks[j] })
	return masks
}

func (d *Data) VertCount() (n int) {
	for _, g := range d.groups {
		n += g.VertCount()
	}
	return n
}

func (d *Data) TriCount() (n int) {
	for _, g := range d.groups {
		n += g.TriCount()
	}
	return n
}

// Bounds is the union of every group's bounds.
func (d *Data) Bounds() common.Bounds {
	var b common.Bounds
	first := true
	for _, m := range d.Masks() {
		g := d.groups[m]
		if g.VertCount() == 0 {
			continue
		}
		if first {
			b = g.Bounds()
			first = false
			continue
		}
		b = b.Union(g.Bounds())
	}
	return b
}

func (d *Data) Reset() {
	clear(d.groups)
}
