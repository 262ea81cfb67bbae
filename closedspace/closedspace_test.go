package closedspace

import (
	"testing"

	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/recast"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	agentHeight = 2
	agentClimb  = 1
	fullHeight  = recast.RC_SPAN_MAX_HEIGHT
)

func newGrid(t *testing.T, w, h int) *recast.RcHeightfield {
	t.Helper()
	hf, err := recast.RcCreateHeightfield(w, h, []float32{0, 0, 0}, []float32{float32(w), 100, float32(h)}, 1, 1)
	require.NoError(t, err)
	return hf
}

func add(t *testing.T, hf *recast.RcHeightfield, x, z int, smin, smax uint16, area uint8) {
	t.Helper()
	require.NoError(t, recast.RcAddSpan(hf, x, z, smin, smax, area, 0, agentClimb))
}

func snapshot(hf *recast.RcHeightfield) [][]recast.RcSpan {
	out := make([][]recast.RcSpan, 0, hf.Width*hf.Height)
	for z := 0; z < hf.Height; z++ {
		for x := 0; x < hf.Width; x++ {
			spans := hf.ColumnSpans(nil, x, z)
			for i := range spans {
				spans[i].Next = 0
			}
			out = append(out, spans)
		}
	}
	return out
}

func TestAntiSpansPartitionColumns(t *testing.T) {
	hf := newGrid(t, 3, 1)
	add(t, hf, 0, 0, 0, 2, recast.RC_WALKABLE_AREA)
	add(t, hf, 0, 0, 5, 9, recast.RC_NULL_AREA)
	add(t, hf, 1, 0, 3, fullHeight, recast.RC_NULL_AREA)

	a := Build(hf)
	for x := 0; x < 3; x++ {
		occupied := 0
		for _, s := range hf.ColumnSpans(nil, x, 0) {
			occupied += int(s.Smax) - int(s.Smin)
		}
		free := 0
		begin, end := a.Column(x, 0)
		for i := begin; i < end; i++ {
			free += int(a.Max[i]) - int(a.Min[i])
		}
		assert.Equal(t, fullHeight, occupied+free, "column %d", x)
	}

	begin, end := a.Column(0, 0)
	assert.Equal(t, []uint16{2, 9}, a.Min[begin:end])
	assert.Equal(t, []uint16{5, fullHeight}, a.Max[begin:end])
	begin, end = a.Column(2, 0)
	assert.Equal(t, int32(1), end-begin)
	assert.Equal(t, int32(-1), a.Find(1, 0, 4))
	assert.Equal(t, begin, a.Find(2, 0, 0))
}

// sealedRoom builds a 7x7 grid: open floor on the outer ring, a full height
// wall ring one cell in, and a roofed 3x3 room inside. When door is set the
// wall column (1,3) is replaced by a roofed floor.
func sealedRoom(t *testing.T, door bool) *recast.RcHeightfield {
	hf := newGrid(t, 7, 7)
	for z := 0; z < 7; z++ {
		for x := 0; x < 7; x++ {
			ring := max(common.Abs(x-3), common.Abs(z-3))
			switch {
			case ring == 3:
				add(t, hf, x, z, 0, 2, recast.RC_WALKABLE_AREA)
			case ring == 2 && !(door && x == 1 && z == 3):
				add(t, hf, x, z, 0, fullHeight, recast.RC_NULL_AREA)
			default:
				add(t, hf, x, z, 0, 2, recast.RC_WALKABLE_AREA)
				add(t, hf, x, z, 10, fullHeight, recast.RC_NULL_AREA)
			}
		}
	}
	return hf
}

func TestRunDemotesSealedRoom(t *testing.T) {
	hf := sealedRoom(t, false)
	res, err := Run(hf, common.Vec3{0.5, 3, 0.5}, agentHeight, agentClimb)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Demoted)
	assert.Equal(t, 24, res.Reached)

	for z := 2; z <= 4; z++ {
		for x := 2; x <= 4; x++ {
			got := hf.ColumnSpans(nil, x, z)
			require.Len(t, got, 1, "room floor and roof merge once null")
			assert.Equal(t, uint8(recast.RC_NULL_AREA), got[0].Area)
		}
	}
	assert.Equal(t, uint8(recast.RC_WALKABLE_AREA), hf.Span(hf.Head(0, 0)).Area)
}

func TestRunKeepsRoomWithCorridor(t *testing.T) {
	hf := sealedRoom(t, true)
	res, err := Run(hf, common.Vec3{0.5, 3, 0.5}, agentHeight, agentClimb)
	require.NoError(t, err)
	assert.Zero(t, res.Demoted)
	for z := 2; z <= 4; z++ {
		for x := 2; x <= 4; x++ {
			assert.Equal(t, uint8(recast.RC_WALKABLE_AREA), hf.Span(hf.Head(x, z)).Area, "column %d,%d", x, z)
		}
	}
}

func TestRunLowCorridorDoesNotConnect(t *testing.T) {
	hf := sealedRoom(t, true)
	// Lower the door roof so the opening is shorter than the agent.
	add(t, hf, 1, 3, 3, 10, recast.RC_NULL_AREA)
	res, err := Run(hf, common.Vec3{0.5, 3, 0.5}, agentHeight, agentClimb)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Demoted)
}

func TestRunFlatGridWithOpenColumns(t *testing.T) {
	hf := newGrid(t, 10, 10)
	for z := 0; z < 10; z++ {
		for x := 0; x < 10; x++ {
			if x == 5 && z >= 5 {
				continue
			}
			add(t, hf, x, z, 0, 2, recast.RC_WALKABLE_AREA)
		}
	}
	res, err := Run(hf, common.Vec3{0, 3, 0}, agentHeight, agentClimb)
	require.NoError(t, err)
	assert.Zero(t, res.Demoted)
	assert.Equal(t, 100, res.Reached)
	assert.Equal(t, 95, recast.RcGetHeightFieldSpanCount(hf, true))
}

func TestRunSeedErrorsLeaveGridUntouched(t *testing.T) {
	cases := []struct {
		name string
		seed common.Vec3
		want error
	}{
		{"outside x", common.Vec3{-1, 3, 0.5}, ErrSeedOutOfBounds},
		{"outside z", common.Vec3{0.5, 3, 7.5}, ErrSeedOutOfBounds},
		{"below grid", common.Vec3{0.5, -2, 0.5}, ErrSeedOutOfBounds},
		{"in wall", common.Vec3{1.5, 3, 3.5}, ErrSeedInSolid},
		{"in floor", common.Vec3{0.5, 1, 0.5}, ErrSeedInSolid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hf := sealedRoom(t, false)
			before := snapshot(hf)
			_, err := Run(hf, tc.seed, agentHeight, agentClimb)
			require.ErrorIs(t, err, tc.want)
			if diff := cmp.Diff(before, snapshot(hf)); diff != "" {
				t.Errorf("grid mutated (-before +after):\n%s", diff)
			}
		})
	}
}

func TestRunNilGrid(t *testing.T) {
	_, err := Run(nil, common.Vec3{}, agentHeight, agentClimb)
	assert.ErrorIs(t, err, recast.ErrNilHeightfield)
}
