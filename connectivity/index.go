package connectivity

import (
	"fmt"

	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/recast"
)

// Index is a disjoint set over the columns of a heightfield. Each column is
// keyed by the top of its lowest span; 4-neighbours whose keys differ by at
// most walkableHeight share a set. Only the first band of a column is
// considered, stacked floors above it are ignored.
type Index struct {
	width          int
	height         int
	walkableHeight int
	keys           []uint16
	flags          []byte
	parent         []int32
	rank           []uint8
}

// NewIndex keys every column of hf and unions the linked neighbours. The
// heightfield is not modified.
func NewIndex(hf *recast.RcHeightfield, walkableHeight int) *Index {
	n := hf.Width * hf.Height
	idx := &Index{
		width:          hf.Width,
		height:         hf.Height,
		walkableHeight: walkableHeight,
		keys:           make([]uint16, n),
		flags:          make([]byte, n),
		parent:         make([]int32, n),
		rank:           make([]uint8, n),
	}
	for c, head := range hf.Columns {
		idx.parent[c] = int32(c)
		if head == recast.RC_NULL_SPAN {
			continue
		}
		bot, top := hf.SpanTop(head)
		idx.keys[c] = hf.Spans[head].Smax
		if hf.Spans[head].Area != recast.RC_NULL_AREA && top-bot >= walkableHeight {
			idx.flags[c] = 1
		}
	}

	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			c := x + z*hf.Width
			// Right and forward neighbours cover every 4-neighbour pair once.
			if x+1 < hf.Width && idx.linked(c, c+1) {
				idx.union(c, c+1)
			}
			if z+1 < hf.Height && idx.linked(c, c+hf.Width) {
				idx.union(c, c+hf.Width)
			}
		}
	}
	return idx
}

func (idx *Index) linked(a, b int) bool {
	return common.Abs(int(idx.keys[a])-int(idx.keys[b])) <= idx.walkableHeight
}

func (idx *Index) union(a, b int) {
	ra := idx.Find(a)
	rb := idx.Find(b)
	if ra == rb {
		return
	}
	switch {
	case idx.rank[ra] < idx.rank[rb]:
		idx.parent[ra] = rb
	case idx.rank[ra] > idx.rank[rb]:
		idx.parent[rb] = ra
	default:
		idx.parent[rb] = ra
		idx.rank[ra]++
	}
}

// Find returns the set representative of column c, compressing the path.
func (idx *Index) Find(c int) int32 {
	i := int32(c)
	for idx.parent[i] != i {
		idx.parent[i] = idx.parent[idx.parent[i]]
		i = idx.parent[i]
	}
	return i
}

func (idx *Index) Width() int  { return idx.width }
func (idx *Index) Height() int { return idx.height }

// Key returns the height key of column (x, z).
func (idx *Index) Key(x, z int) uint16 {
	return idx.keys[x+z*idx.width]
}

func (idx *Index) inBounds(x, z int) bool {
	return x >= 0 && z >= 0 && x < idx.width && z < idx.height
}

// Connected reports whether columns (x0, z0) and (x1, z1) share a set.
func (idx *Index) Connected(x0, z0, x1, z1 int) (bool, error) {
	if !idx.inBounds(x0, z0) || !idx.inBounds(x1, z1) {
		return false, fmt.Errorf("%w: (%d,%d)-(%d,%d) in %dx%d grid", recast.ErrColumnOutOfRange, x0, z0, x1, z1, idx.width, idx.height)
	}
	return idx.Find(x0+z0*idx.width) == idx.Find(x1+z1*idx.width), nil
}

// Components returns the number of disjoint sets.
func (idx *Index) Components() int {
	n := 0
	for i := range idx.parent {
		if idx.parent[i] == int32(i) {
			n++
		}
	}
	return n
}

// ConnectFlags marks the columns whose lowest span is walkable and has at
// least walkableHeight of headroom. The slice is owned by the index.
func (idx *Index) ConnectFlags() []byte {
	return idx.flags
}

// walkable reports whether column c can be stood on and moved through.
func (idx *Index) walkable(c int) bool {
	return idx.flags[c] != 0
}

// step reports whether an agent can move between neighbouring columns a and b.
func (idx *Index) step(a, b int) bool {
	return idx.walkable(a) && idx.walkable(b) && idx.linked(a, b)
}
