package connectivity

import (
	"testing"

	"github.com/gorustyt/voxelmask/recast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentHeight = 2

// floorGrid builds a w x h grid of walkable floor spans [0, 2). Columns for
// which wall returns true are solid to the top instead.
func floorGrid(t *testing.T, w, h int, wall func(x, z int) bool) *recast.RcHeightfield {
	t.Helper()
	hf, err := recast.RcCreateHeightfield(w, h, []float32{0, 0, 0}, []float32{float32(w), 100, float32(h)}, 1, 1)
	require.NoError(t, err)
	for z := 0; z < h; z++ {
		for x := 0; x < w; x++ {
			if wall != nil && wall(x, z) {
				require.NoError(t, recast.RcAddSpan(hf, x, z, 0, recast.RC_SPAN_MAX_HEIGHT, recast.RC_NULL_AREA, 0, 1))
				continue
			}
			require.NoError(t, recast.RcAddSpan(hf, x, z, 0, 2, recast.RC_WALKABLE_AREA, 0, 1))
		}
	}
	return hf
}

func TestIndexFlatGridIsConnected(t *testing.T) {
	idx := NewIndex(floorGrid(t, 6, 3, nil), agentHeight)
	ok, err := idx.Connected(0, 0, 5, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, idx.Components())
	assert.Equal(t, uint16(2), idx.Key(3, 1))
}

func TestIndexWallBlocks(t *testing.T) {
	hf := floorGrid(t, 6, 3, func(x, z int) bool { return x == 3 })
	idx := NewIndex(hf, agentHeight)

	ok, err := idx.Connected(0, 0, 5, 0)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = idx.Connected(0, 0, 2, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, idx.Components())
	assert.Equal(t, uint16(recast.RC_SPAN_MAX_HEIGHT), idx.Key(3, 0))
}

func TestIndexHeightKeyDelta(t *testing.T) {
	cases := []struct {
		name string
		step uint16
		want bool
	}{
		{"within agent height", 2, true},
		{"above agent height", 3, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hf := floorGrid(t, 2, 1, nil)
			require.NoError(t, recast.RcAddSpan(hf, 1, 0, 0, 2+tc.step, recast.RC_WALKABLE_AREA, 0, 1))
			ok, err := NewIndex(hf, agentHeight).Connected(0, 0, 1, 0)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestIndexEmptyColumnsKeyZero(t *testing.T) {
	hf, err := recast.RcCreateHeightfield(3, 1, []float32{0, 0, 0}, []float32{3, 10, 1}, 1, 1)
	require.NoError(t, err)
	require.NoError(t, recast.RcAddSpan(hf, 2, 0, 0, 2, recast.RC_WALKABLE_AREA, 0, 1))
	idx := NewIndex(hf, agentHeight)
	assert.Equal(t, uint16(0), idx.Key(0, 0))
	ok, err := idx.Connected(0, 0, 2, 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0, 0, 1}, idx.ConnectFlags())
}

func TestIndexOutOfRange(t *testing.T) {
	idx := NewIndex(floorGrid(t, 2, 2, nil), agentHeight)
	_, err := idx.Connected(0, 0, 2, 0)
	assert.ErrorIs(t, err, recast.ErrColumnOutOfRange)
	_, err = idx.Connected(-1, 0, 1, 1)
	assert.ErrorIs(t, err, recast.ErrColumnOutOfRange)
}

func TestGraphClustersAndEntrances(t *testing.T) {
	idx := NewIndex(floorGrid(t, 8, 8, nil), agentHeight)
	g, err := NewGraph(idx, 4)
	require.NoError(t, err)
	require.Len(t, g.Clusters(), 4)
	// One entrance on each side of the four internal borders.
	assert.Len(t, g.Nodes(), 8)
	for _, c := range g.Clusters() {
		assert.Len(t, c.Nodes, 2)
	}

	ok, err := g.Reachable(0, 0, 7, 7)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGraphLongRunGetsTwoEntrances(t *testing.T) {
	idx := NewIndex(floorGrid(t, 12, 6, nil), agentHeight)
	g, err := NewGraph(idx, 6)
	require.NoError(t, err)
	require.Len(t, g.Clusters(), 2)
	assert.Len(t, g.Nodes(), 4)
}

func TestGraphWallAndDoor(t *testing.T) {
	wall := func(x, z int) bool { return x == 4 }
	idx := NewIndex(floorGrid(t, 8, 8, wall), agentHeight)
	g, err := NewGraph(idx, 4)
	require.NoError(t, err)
	ok, err := g.Reachable(0, 0, 7, 7)
	require.NoError(t, err)
	assert.False(t, ok)

	door := func(x, z int) bool { return x == 4 && z != 6 }
	idx = NewIndex(floorGrid(t, 8, 8, door), agentHeight)
	g, err = NewGraph(idx, 4)
	require.NoError(t, err)
	ok, err = g.Reachable(0, 0, 7, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	connected, err := idx.Connected(0, 0, 7, 7)
	require.NoError(t, err)
	assert.True(t, connected)

	ok, err = g.Reachable(4, 0, 0, 0)
	require.NoError(t, err)
	assert.False(t, ok, "a wall column cannot be stood on")
}

func TestGraphRejectsBadInput(t *testing.T) {
	idx := NewIndex(floorGrid(t, 2, 2, nil), agentHeight)
	_, err := NewGraph(idx, 0)
	assert.Error(t, err)
	g, err := NewGraph(idx, 1)
	require.NoError(t, err)
	_, err = g.Reachable(0, 0, 0, 5)
	assert.ErrorIs(t, err, recast.ErrColumnOutOfRange)
}
