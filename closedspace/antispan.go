package closedspace

import (
	"github.com/gorustyt/voxelmask/recast"
)

// AntiSpans is the complement of the occupied spans of every column, stored
// as one struct of arrays. The anti-spans of column c are the index range
// [ColStart[c], ColStart[c+1]), bottom first.
type AntiSpans struct {
	Width    int
	Height   int
	ColStart []int32
	Col      []int32
	Min      []uint16
	Max      []uint16
	Reached  []bool
}

// Build derives the anti-spans of hf: the gap under the first span, the gaps
// between spans and the gap above the last span. Gaps of zero length are not
// stored. Tags are ignored.
func Build(hf *recast.RcHeightfield) *AntiSpans {
	cols := hf.Width * hf.Height
	total := recast.RcGetHeightFieldSpanCount(hf, false) + cols
	a := &AntiSpans{
		Width:    hf.Width,
		Height:   hf.Height,
		ColStart: make([]int32, cols+1),
		Col:      make([]int32, 0, total),
		Min:      make([]uint16, 0, total),
		Max:      make([]uint16, 0, total),
	}
	for c, head := range hf.Columns {
		a.ColStart[c] = int32(len(a.Min))
		bot := 0
		for i := head; i != recast.RC_NULL_SPAN; i = hf.Spans[i].Next {
			s := &hf.Spans[i]
			a.add(c, bot, int(s.Smin))
			bot = int(s.Smax)
		}
		a.add(c, bot, recast.RC_SPAN_MAX_HEIGHT)
	}
	a.ColStart[cols] = int32(len(a.Min))
	a.Reached = make([]bool, len(a.Min))
	return a
}

func (a *AntiSpans) add(col, bot, top int) {
	if top <= bot {
		return
	}
	a.Col = append(a.Col, int32(col))
	a.Min = append(a.Min, uint16(bot))
	a.Max = append(a.Max, uint16(top))
}

func (a *AntiSpans) Len() int {
	return len(a.Min)
}

// Column returns the anti-span index range of column (x, z).
func (a *AntiSpans) Column(x, z int) (begin, end int32) {
	c := x + z*a.Width
	return a.ColStart[c], a.ColStart[c+1]
}

// Find returns the anti-span of column (x, z) that contains y, or -1.
func (a *AntiSpans) Find(x, z, y int) int32 {
	begin, end := a.Column(x, z)
	for i := begin; i < end; i++ {
		if int(a.Min[i]) <= y && y < int(a.Max[i]) {
			return i
		}
	}
	return -1
}

// ReachedCount returns how many anti-spans the flood has marked.
func (a *AntiSpans) ReachedCount() int {
	n := 0
	for _, r := range a.Reached {
		if r {
			n++
		}
	}
	return n
}
