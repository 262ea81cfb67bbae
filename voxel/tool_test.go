package voxel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gorustyt/voxelmask/closedspace"
	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/export"
	"github.com/gorustyt/voxelmask/recast"
)

// quad returns a flat upward facing 4x4 quad at height y.
func quad(y float32) ([]float32, []int32) {
	return []float32{0, y, 0, 0, y, 4, 4, y, 4, 4, y, 0}, []int32{0, 1, 2, 0, 2, 3}
}

func newTool(t *testing.T, log *zap.Logger) *Tool {
	t.Helper()
	tool := NewTool(log)
	require.NoError(t, tool.SetBuildConfig(1, 0.5, 2, 0.9, 0, 45))
	tool.SetBoundBox(common.Vec3{0, 0, 0}, common.Vec3{4, 10, 4})
	verts, tris := quad(1)
	require.NoError(t, tool.AddMesh(verts, tris, recast.RC_NULL_AREA, 0))
	return tool
}

func TestSetBuildConfig(t *testing.T) {
	tool := NewTool(nil)
	require.NoError(t, tool.SetBuildConfig(0.5, 0.25, 2, 0.9, 0.6, 45))
	cfg := tool.Config()
	assert.Equal(t, 8, cfg.WalkableHeight)
	assert.Equal(t, 3, cfg.WalkableClimb)
	assert.Equal(t, 2, cfg.WalkableRadius)
	assert.Equal(t, float32(45), cfg.WalkableSlopeAngle)

	for _, tc := range []struct {
		name                                string
		cs, ch, height, climb, radius, slope float32
	}{
		{"zero cell size", 0, 0.25, 2, 0.9, 0.6, 45},
		{"zero cell height", 0.5, 0, 2, 0.9, 0.6, 45},
		{"zero agent height", 0.5, 0.25, 0, 0.9, 0.6, 45},
		{"vertical slope", 0.5, 0.25, 2, 0.9, 0.6, 90},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tool.SetBuildConfig(tc.cs, tc.ch, tc.height, tc.climb, tc.radius, tc.slope)
			assert.ErrorIs(t, err, ErrBadConfig)
			assert.Equal(t, cfg, tool.Config())
		})
	}
}

func TestBuildWithoutBaseGeometry(t *testing.T) {
	tool := NewTool(nil)
	require.NoError(t, tool.SetBuildConfig(1, 0.5, 2, 0.9, 0, 45))
	verts, tris := quad(1)
	require.NoError(t, tool.AddMesh(verts, tris, 0, 4))

	assert.ErrorIs(t, tool.Build(), ErrNoBaseGeometry)
	assert.Nil(t, tool.Heightfield())
	assert.Equal(t, 1, tool.Context().Count(recast.RC_LOG_ERROR))

	_, err := tool.GetSpans(0, 0, make([]uint16, 3))
	assert.ErrorIs(t, err, ErrNotBuilt)
	_, err = tool.Connected(0, 0, 1, 1)
	assert.ErrorIs(t, err, ErrNotBuilt)
	_, err = tool.SaveServerData("/srv/mask.bytes", "")
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestBuildFlatFloor(t *testing.T) {
	tool := newTool(t, nil)
	tool.SetFilters(false, false, false)
	require.NoError(t, tool.Build())

	hf := tool.Heightfield()
	require.NotNil(t, hf)
	assert.Equal(t, 4, hf.Width)
	assert.Equal(t, 4, hf.Height)

	stats := tool.Stats()
	assert.Equal(t, 16, stats.Spans)
	assert.Equal(t, 16, stats.WalkableSpans)
	assert.Zero(t, stats.Eroded)
	assert.NotEqual(t, [16]byte{}, [16]byte(stats.ID))

	buf := make([]uint16, 4*SpanElementNum)
	n, err := tool.GetSpans(1, 2, buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint16{2, 3, recast.RC_WALKABLE_AREA}, buf[:3])

	_, err = tool.GetSpans(4, 0, buf)
	assert.ErrorIs(t, err, recast.ErrColumnOutOfRange)
	_, err = tool.GetSpans(0, -1, buf)
	assert.ErrorIs(t, err, recast.ErrColumnOutOfRange)
}

func TestBuildDerivesBoundsPerBuild(t *testing.T) {
	tool := NewTool(nil)
	require.NoError(t, tool.SetBuildConfig(1, 0.5, 2, 0.9, 0, 45))
	tool.SetFilters(false, false, false)
	verts, tris := quad(1)
	require.NoError(t, tool.AddMesh(verts, tris, recast.RC_NULL_AREA, 0))
	require.NoError(t, tool.Build())
	assert.Equal(t, 4, tool.Heightfield().Width)

	tool.Reset()
	wide := []float32{0, 1, 0, 0, 1, 8, 8, 1, 8, 8, 1, 0}
	require.NoError(t, tool.AddMesh(wide, tris, recast.RC_NULL_AREA, 0))
	require.NoError(t, tool.Build())
	assert.Equal(t, 8, tool.Heightfield().Width)
	assert.Equal(t, 8, tool.Heightfield().Height)
	assert.Equal(t, [3]float32{8, 1, 8}, tool.Config().Bmax)
}

func TestBuildFiltersDemoteBorder(t *testing.T) {
	tool := newTool(t, nil)
	require.NoError(t, tool.Build())
	// Ledge filtering demotes the outer ring, the 2x2 centre stays walkable.
	assert.Equal(t, 16, tool.Stats().Spans)
	assert.Equal(t, 4, tool.Stats().WalkableSpans)

	buf := make([]uint16, 3)
	_, err := tool.GetSpans(0, 0, buf)
	require.NoError(t, err)
	assert.EqualValues(t, recast.RC_NULL_AREA, buf[2])
	_, err = tool.GetSpans(1, 1, buf)
	require.NoError(t, err)
	assert.EqualValues(t, recast.RC_WALKABLE_AREA, buf[2])
}

func TestGetSpansTruncatesOverflow(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	tool := newTool(t, zap.New(core))
	tool.SetFilters(false, false, false)
	verts, tris := quad(5)
	require.NoError(t, tool.AddMesh(verts, tris, recast.RC_NULL_AREA, 4))
	require.NoError(t, tool.Build())

	buf := make([]uint16, 2*SpanElementNum)
	n, err := tool.GetSpans(2, 2, buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint16{2, 3, recast.RC_WALKABLE_AREA, 10, 11, recast.RC_WALKABLE_AREA}, buf)
	assert.Zero(t, logs.Len())

	small := make([]uint16, SpanElementNum+1)
	n, err = tool.GetSpans(2, 2, small)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint16{2, 3, recast.RC_WALKABLE_AREA}, small[:3])
	assert.Equal(t, 1, logs.FilterMessage("span buffer overflow, column truncated").Len())
}

func TestBuildSeed(t *testing.T) {
	tool := newTool(t, nil)
	tool.SetFilters(false, false, false)
	tool.SetSeed(common.Vec3{2.5, 2, 2.5})
	require.NoError(t, tool.Build())
	closed := tool.Stats().ClosedSpace
	assert.Zero(t, closed.Demoted)
	assert.Equal(t, 32, closed.AntiSpans)
	assert.Equal(t, 16, closed.Reached)
	assert.Equal(t, 16, tool.Stats().WalkableSpans)

	for _, tc := range []struct {
		name string
		seed common.Vec3
		want error
	}{
		{"outside the grid", common.Vec3{100, 2, 2}, closedspace.ErrSeedOutOfBounds},
		{"below the grid", common.Vec3{2, -1, 2}, closedspace.ErrSeedOutOfBounds},
		{"inside the floor", common.Vec3{2.5, 1.1, 2.5}, closedspace.ErrSeedInSolid},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tool.SetSeed(tc.seed)
			assert.ErrorIs(t, tool.Build(), tc.want)
			assert.Nil(t, tool.Heightfield())
		})
	}
}

func TestConnectivityQueries(t *testing.T) {
	tool := newTool(t, nil)
	tool.SetFilters(false, false, false)
	require.NoError(t, tool.Build())

	ok, err := tool.Connected(0, 0, 3, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	idx, err := tool.Index()
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Components())

	g, err := tool.Graph(2)
	require.NoError(t, err)
	assert.Len(t, g.Clusters(), 4)
	ok, err = g.Reachable(0, 0, 3, 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSaveData(t *testing.T) {
	tool := newTool(t, nil)
	tool.SetFilters(false, false, false)
	fsys := export.NewMemoryFileSystem()
	tool.SetFileSystem(fsys)
	opts := export.DefaultOptions()
	opts.Workers = 2
	tool.SetExportOptions(opts)
	require.NoError(t, tool.Build())

	report, err := tool.SaveClientData("/out/bin", "/out/json", 2)
	require.NoError(t, err)
	require.NotNil(t, report.Manifest)
	assert.EqualValues(t, 4, report.Manifest.RegionNum)
	for _, r := range report.Regions {
		assert.Equal(t, 4, r.TotalSpans)
		assert.Equal(t, 1, r.MergedSpans)
	}
	assert.True(t, fsys.Exists(filepath.Join("/out/bin", export.ManifestBin)))

	m, err := tool.SaveServerData("/srv/conf_scene_mask_1.bytes", "/srv/ByteCompareTxt.txt")
	require.NoError(t, err)
	assert.Len(t, m.Entries, 1)
	assert.True(t, fsys.Exists("/srv/ByteCompareTxt.txt"))

	l, err := tool.SaveFullJSON("/out/full", 4)
	require.NoError(t, err)
	assert.Len(t, l.Regions, 1)
	assert.True(t, fsys.Exists(filepath.Join("/out/full", export.FullRegionJSON(0))))
}
