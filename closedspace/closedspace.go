package closedspace

import (
	"errors"
	"fmt"
	"math"

	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/recast"
)

var (
	ErrSeedOutOfBounds = errors.New("closedspace: seed outside the grid")
	ErrSeedInSolid     = errors.New("closedspace: seed inside a solid span")
)

// Result summarises one closed-space pass.
type Result struct {
	AntiSpans int
	Reached   int
	Demoted   int
}

// Locate returns the anti-span that holds the world position pos.
func Locate(hf *recast.RcHeightfield, a *AntiSpans, pos common.Vec3) (int32, error) {
	x := int(math.Floor(float64((pos[0] - hf.Bmin[0]) / hf.Cs)))
	z := int(math.Floor(float64((pos[2] - hf.Bmin[2]) / hf.Cs)))
	y := int(math.Floor(float64((pos[1] - hf.Bmin[1]) / hf.Ch)))
	if !hf.InBounds(x, z) || y < 0 || y >= recast.RC_SPAN_MAX_HEIGHT {
		return -1, fmt.Errorf("%w: %v -> cell (%d,%d,%d) in %dx%d grid", ErrSeedOutOfBounds, pos, x, y, z, hf.Width, hf.Height)
	}
	i := a.Find(x, z, y)
	if i < 0 {
		return -1, fmt.Errorf("%w: %v -> cell (%d,%d,%d)", ErrSeedInSolid, pos, x, y, z)
	}
	return i, nil
}

// Flood marks every anti-span reachable from seed. Two anti-spans in
// 8-neighbour columns connect when their vertical overlap is at least
// walkableHeight.
func Flood(a *AntiSpans, seed int32, walkableHeight int) {
	stack := common.NewStack(func() int32 { return 0 })
	stack.Reserve(256)

	a.Reached[seed] = true
	stack.Push(seed)
	for !stack.Empty() {
		cur := stack.Pop()
		c := int(a.Col[cur])
		x := c % a.Width
		z := c / a.Width
		bot := int(a.Min[cur])
		top := int(a.Max[cur])
		for dir := 0; dir < 8; dir++ {
			nx := x + common.GetDir8OffsetX(dir)
			nz := z + common.GetDir8OffsetZ(dir)
			if nx < 0 || nz < 0 || nx >= a.Width || nz >= a.Height {
				continue
			}
			begin, end := a.Column(nx, nz)
			for j := begin; j < end; j++ {
				if int(a.Min[j]) >= top {
					break
				}
				if a.Reached[j] {
					continue
				}
				if min(top, int(a.Max[j]))-max(bot, int(a.Min[j])) >= walkableHeight {
					a.Reached[j] = true
					stack.Push(j)
				}
			}
		}
	}
}

// Reconcile demotes every walkable span whose anti-span above is missing,
// unreached or lower than walkableHeight, then consolidates null spans again.
// It returns the number of demoted spans.
func Reconcile(hf *recast.RcHeightfield, a *AntiSpans, walkableHeight, walkableClimb int) (int, error) {
	demoted := 0
	for c, head := range hf.Columns {
		k := a.ColStart[c]
		end := a.ColStart[c+1]
		for i := head; i != recast.RC_NULL_SPAN; i = hf.Spans[i].Next {
			s := &hf.Spans[i]
			for k < end && a.Min[k] < s.Smax {
				k++
			}
			if s.Area == recast.RC_NULL_AREA {
				continue
			}
			paired := k < end && a.Min[k] == s.Smax
			if !paired || !a.Reached[k] || int(a.Max[k])-int(a.Min[k]) < walkableHeight {
				s.Area = recast.RC_NULL_AREA
				demoted++
			}
		}
	}
	if err := recast.RcFillNullSpans(walkableClimb, hf); err != nil {
		return demoted, err
	}
	return demoted, nil
}

// Run builds the anti-spans of hf, floods them from the seed position and
// demotes the walkable surfaces the flood never reached. The grid is left
// untouched when the seed cannot be located.
func Run(hf *recast.RcHeightfield, seed common.Vec3, walkableHeight, walkableClimb int) (Result, error) {
	if hf == nil {
		return Result{}, recast.ErrNilHeightfield
	}
	a := Build(hf)
	start, err := Locate(hf, a, seed)
	if err != nil {
		return Result{}, err
	}
	Flood(a, start, walkableHeight)
	res := Result{AntiSpans: a.Len(), Reached: a.ReachedCount()}
	res.Demoted, err = Reconcile(hf, a, walkableHeight, walkableClimb)
	return res, err
}
