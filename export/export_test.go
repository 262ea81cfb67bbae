package export

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gorustyt/voxelmask/recast"
)

func newField(t *testing.T, w, h int, maxY float32) *recast.RcHeightfield {
	t.Helper()
	hf, err := recast.RcCreateHeightfield(w, h, []float32{0, 0, 0}, []float32{float32(w), maxY, float32(h)}, 1, 1)
	require.NoError(t, err)
	return hf
}

func addSpan(t *testing.T, hf *recast.RcHeightfield, x, z int, smin, smax uint16, area uint8, mask uint16) {
	t.Helper()
	require.NoError(t, recast.RcAddSpan(hf, x, z, smin, smax, area, mask, 1))
}

// sharedField is a 4x1 grid whose columns 0 and 2 have the same profile.
func sharedField(t *testing.T) *recast.RcHeightfield {
	hf := newField(t, 4, 1, 20)
	addSpan(t, hf, 0, 0, 0, 5, recast.RC_WALKABLE_AREA, 0)
	addSpan(t, hf, 1, 0, 0, 5, recast.RC_NULL_AREA, 0)
	addSpan(t, hf, 1, 0, 10, 12, recast.RC_WALKABLE_AREA, recast.MaskWater)
	addSpan(t, hf, 2, 0, 0, 5, recast.RC_WALKABLE_AREA, 0)
	return hf
}

func TestPartition(t *testing.T) {
	l, err := Partition(130, 70, 64)
	require.NoError(t, err)
	assert.Equal(t, 3, l.RegionsX)
	assert.Equal(t, 2, l.RegionsZ)
	require.Len(t, l.Regions, 6)
	assert.True(t, l.Uneven())

	assert.Equal(t, Region{Index: 2, X: 128, Z: 0, Width: 2, Height: 64}, l.Regions[2])
	assert.Equal(t, Region{Index: 4, X: 64, Z: 64, Width: 64, Height: 6}, l.Regions[4])

	cells := 0
	for _, r := range l.Regions {
		cells += r.CellCount()
	}
	assert.Equal(t, 130*70, cells)

	even, err := Partition(128, 64, 64)
	require.NoError(t, err)
	assert.False(t, even.Uneven())

	_, err = Partition(10, 10, 0)
	assert.ErrorIs(t, err, ErrBadRegionSize)
	_, err = Partition(0, 10, 4)
	assert.Error(t, err)
}

func TestClientRegionSharesIdenticalColumns(t *testing.T) {
	hf := sharedField(t)
	l, err := Partition(hf.Width, hf.Height, 4)
	require.NoError(t, err)

	r, dropped := BuildClientRegion(hf, l.Regions[0], nil)
	assert.Zero(t, dropped)
	assert.Equal(t, []uint8{1, 2, 1, 0}, r.CellSpanCountArr)
	assert.Equal(t, []uint32{0, 1, 0, 0}, r.CellSpanIndexArr)
	assert.Equal(t, 4, r.TotalSpanNum)
	assert.Equal(t, 3, r.MergeSpanNum)

	assert.Equal(t, []Span{{Min: 0, Max: 5, Area: recast.RC_WALKABLE_AREA}}, r.CellSpans(2))
	assert.Equal(t, []Span{
		{Min: 0, Max: 5},
		{Min: 10, Max: 12, Area: recast.RC_WALKABLE_AREA, Offset: uint8(recast.MaskWater)},
	}, r.CellSpans(1))
	assert.Empty(t, r.CellSpans(3))
}

func TestClientRegionKeepsDistinctAreaAndOffset(t *testing.T) {
	hf := newField(t, 3, 1, 20)
	addSpan(t, hf, 0, 0, 0, 5, recast.RC_WALKABLE_AREA, 0)
	addSpan(t, hf, 1, 0, 0, 5, recast.RC_WALKABLE_AREA, recast.MaskWater)
	addSpan(t, hf, 2, 0, 0, 5, recast.RC_NULL_AREA, 0)
	l, err := Partition(hf.Width, hf.Height, 4)
	require.NoError(t, err)

	r, _ := BuildClientRegion(hf, l.Regions[0], nil)
	assert.Equal(t, []uint32{0, 1, 2}, r.CellSpanIndexArr)
	assert.Equal(t, 3, r.MergeSpanNum)
	assert.Equal(t, []Span{{Min: 0, Max: 5, Area: recast.RC_WALKABLE_AREA, Offset: uint8(recast.MaskWater)}}, r.CellSpans(1))
	assert.Equal(t, []Span{{Min: 0, Max: 5}}, r.CellSpans(2))

	got, err := ReadClientRegion(EncodeClientRegion(r, true), true)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), got.CellSpans(0)[0].Offset)
	assert.Equal(t, uint8(recast.MaskWater), got.CellSpans(1)[0].Offset)
}

func TestClientRegionBinaryRoundTrip(t *testing.T) {
	hf := sharedField(t)
	l, err := Partition(hf.Width, hf.Height, 4)
	require.NoError(t, err)
	r, _ := BuildClientRegion(hf, l.Regions[0], nil)

	for _, withOffset := range []bool{false, true} {
		data := EncodeClientRegion(r, withOffset)
		spanSize := 4
		if withOffset {
			spanSize = 5
		}
		assert.Len(t, data, 8+4*5+r.MergeSpanNum*spanSize)

		got, err := ReadClientRegion(data, withOffset)
		require.NoError(t, err)

		want := *r
		want.Index = 0
		want.Spans = make([]Span, len(r.Spans))
		for i, s := range r.Spans {
			want.Spans[i] = Span{Min: s.Min, Max: s.Max}
			if withOffset {
				want.Spans[i].Offset = s.Offset
			}
		}
		if diff := cmp.Diff(&want, got); diff != "" {
			t.Errorf("withOffset=%v region mismatch (-want +got):\n%s", withOffset, diff)
		}
	}
}

func TestClientRegionJSONRoundTrip(t *testing.T) {
	hf := sharedField(t)
	l, err := Partition(hf.Width, hf.Height, 4)
	require.NoError(t, err)
	r, _ := BuildClientRegion(hf, l.Regions[0], []byte{1, 0, 1, 0})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"cellSpanCountArr":[1,2,1,0]`)
	assert.Contains(t, string(data), `"cellConnectFlags":[1,0,1,0]`)

	var got ClientRegion
	require.NoError(t, json.Unmarshal(data, &got))
	if diff := cmp.Diff(r, &got); diff != "" {
		t.Errorf("json round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadClientRegionRejectsCorruptData(t *testing.T) {
	hf := sharedField(t)
	l, err := Partition(hf.Width, hf.Height, 4)
	require.NoError(t, err)
	r, _ := BuildClientRegion(hf, l.Regions[0], nil)
	data := EncodeClientRegion(r, false)

	_, err = ReadClientRegion(data[:len(data)-1], false)
	assert.ErrorIs(t, err, ErrCorruptRegion)

	_, err = ReadClientRegion(data[:3], false)
	assert.ErrorIs(t, err, ErrCorruptRegion)

	bad := append([]byte(nil), data...)
	// Point cell 1 past the pool.
	bad[8+4+4] = 9
	_, err = ReadClientRegion(bad, false)
	assert.ErrorIs(t, err, ErrCorruptRegion)
}

func TestColumnOverflowIsTruncated(t *testing.T) {
	hf := newField(t, 1, 1, 700)
	for i := 0; i < 300; i++ {
		addSpan(t, hf, 0, 0, uint16(2*i), uint16(2*i+1), recast.RC_WALKABLE_AREA, 0)
	}
	spans, dropped := columnSpans(hf, 0, 0)
	assert.Len(t, spans, maxCellSpans)
	assert.Equal(t, 300-maxCellSpans, dropped)

	m, dropped := BuildServerMask(hf, 0)
	assert.Equal(t, 300-maxCellSpans, dropped)
	assert.EqualValues(t, maxCellSpans, m.Cells[0].Count)
}

// serverField is a 2x1 grid, both columns [0,2) and [5,6), max height 9.
func serverField(t *testing.T) *recast.RcHeightfield {
	hf := newField(t, 2, 1, 10)
	for x := 0; x < 2; x++ {
		addSpan(t, hf, x, 0, 0, 2, recast.RC_WALKABLE_AREA, 0)
		addSpan(t, hf, x, 0, 5, 6, recast.RC_WALKABLE_AREA, 0)
	}
	return hf
}

func TestBuildServerMask(t *testing.T) {
	hf := serverField(t)
	assert.Equal(t, 9, VoxelMaxHeight(hf))

	m, dropped := BuildServerMask(hf, 1)
	assert.Zero(t, dropped)
	assert.EqualValues(t, 1, m.CellX)
	assert.EqualValues(t, 0, m.CellZ)
	assert.EqualValues(t, 9, m.MaxHeight)

	// The gap above the last span runs to the max height; the margin is clamped.
	assert.Equal(t, []uint64{PackEntry(1, 6, ServerSpanFlag), PackEntry(5, 9, ServerSpanFlag)}, m.Entries)
	assert.Equal(t, []ServerCell{{Count: 2, Index: 0}, {Count: 2, Index: 0}}, m.Cells)

	lo, hi, flag := UnpackEntry(m.Entries[0])
	assert.EqualValues(t, 1, lo)
	assert.EqualValues(t, 6, hi)
	assert.EqualValues(t, ServerSpanFlag, flag)

	tight, _ := BuildServerMask(hf, 0)
	assert.Equal(t, []uint64{PackEntry(2, 5, ServerSpanFlag), PackEntry(6, 9, ServerSpanFlag)}, tight.Entries)
}

func TestServerMaskEmptyColumn(t *testing.T) {
	hf := newField(t, 2, 1, 10)
	addSpan(t, hf, 1, 0, 0, 3, recast.RC_WALKABLE_AREA, 0)

	m, _ := BuildServerMask(hf, 0)
	assert.Equal(t, ServerCell{}, m.Cells[0])
	assert.Empty(t, m.CellEntries(0))
	assert.Equal(t, []uint64{PackEntry(3, 9, ServerSpanFlag)}, m.CellEntries(1))
}

func TestServerMaskBinaryRoundTrip(t *testing.T) {
	m, _ := BuildServerMask(serverField(t), 1)
	data, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, serverHeaderSize+2*5+2*8)

	got, err := ReadServerMask(data)
	require.NoError(t, err)
	want := *m
	want.Margin = 0
	if diff := cmp.Diff(&want, got); diff != "" {
		t.Errorf("server mask mismatch (-want +got):\n%s", diff)
	}

	_, err = ReadServerMask(data[:len(data)-3])
	assert.ErrorIs(t, err, ErrCorruptServerMask)
	_, err = ReadServerMask(data[:10])
	assert.ErrorIs(t, err, ErrCorruptServerMask)

	bad := append([]byte(nil), data...)
	bad[serverHeaderSize+1] = 7
	_, err = ReadServerMask(bad)
	assert.ErrorIs(t, err, ErrCorruptServerMask)
}

func TestDumpServerMask(t *testing.T) {
	m, _ := BuildServerMask(serverField(t), 1)
	data, err := m.MarshalBinary()
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, DumpServerMask(data, &sb))
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	want := []string{
		"x:1",
		"y:9",
		"z:0",
		"totalSpansNum:2",
		"x:0,z:0,spanNum:2,index:0",
		"x:1,z:0,spanNum:2,index:0",
		"index:0,result:" + uitoa(PackEntry(1, 6, 1)) + ",min:1,max:6",
		"index:1,result:" + uitoa(PackEntry(5, 9, 1)) + ",min:5,max:9",
	}
	assert.Equal(t, want, lines)
}

func uitoa(v uint64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestManifest(t *testing.T) {
	hf, err := recast.RcCreateHeightfield(130, 70, []float32{0, 0, 0}, []float32{65, 20, 35}, 0.5, 0.25)
	require.NoError(t, err)
	l, err := Partition(hf.Width, hf.Height, 64)
	require.NoError(t, err)

	m := NewManifest(hf, l)
	assert.Equal(t, Manifest{
		VoxelSize:     0.5,
		VoxelHeight:   0.25,
		MapX:          65,
		MapY:          20,
		MapZ:          35,
		RegionAxisNum: 64,
		RegionNum:     6,
		RegionWidth:   3,
		RegionHeight:  2,
	}, m)

	bin, err := m.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, bin, 30)
	got, err := ReadManifest(bin)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = ReadManifest(bin[:20])
	assert.Error(t, err)

	pb, err := m.EncodeProto()
	require.NoError(t, err)
	fromPB, err := DecodeProtoManifest(pb)
	require.NoError(t, err)
	assert.Equal(t, m, fromPB)
}

func TestColumnStats(t *testing.T) {
	s := ColumnStats(sharedField(t))
	assert.Equal(t, 4, s.Columns)
	assert.Equal(t, 4, s.Spans)
	assert.Equal(t, 2, s.MaxSpans)
	assert.InDelta(t, 1.0, s.MeanSpans, 1e-9)
	assert.InDelta(t, 0.8165, s.StdDevSpans, 1e-4)

	s.setMerged(3)
	assert.Equal(t, 3, s.MergedSpans)
	assert.InDelta(t, 0.75, s.DedupRatio, 1e-9)
}

// gridField is a 5x3 grid with one walkable floor span per column.
func gridField(t *testing.T) *recast.RcHeightfield {
	hf := newField(t, 5, 3, 10)
	for z := 0; z < 3; z++ {
		for x := 0; x < 5; x++ {
			addSpan(t, hf, x, z, 0, uint16(1+x%2), recast.RC_WALKABLE_AREA, 0)
		}
	}
	return hf
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RegionSize = 2
	opts.Workers = 2
	return opts
}

func TestSaveClient(t *testing.T) {
	hf := gridField(t)
	fsys := NewMemoryFileSystem()
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewExporter(fsys, zap.New(core), testOptions())

	report, err := e.SaveClient(hf, nil, "/out/bin", "/out/json")
	require.NoError(t, err)
	require.NotNil(t, report.Manifest)
	assert.EqualValues(t, 6, report.Manifest.RegionNum)
	assert.Len(t, report.Regions, 6)
	assert.Equal(t, 15, report.Stats.Spans)
	uneven := logs.FilterMessage("grid does not divide evenly into regions, edge regions truncated").All()
	require.Len(t, uneven, 1)
	assert.Equal(t, zapcore.ErrorLevel, uneven[0].Level)

	bins := fsys.Files("/out/bin")
	assert.Contains(t, bins, filepath.Join("/out/bin", ManifestBin))
	assert.Contains(t, bins, filepath.Join("/out/bin", ManifestProto))
	assert.Len(t, bins, 8)
	assert.Len(t, fsys.Files("/out/json"), 7)

	data, err := fsys.ReadFile(filepath.Join("/out/bin", ClientRegionBin(5)))
	require.NoError(t, err)
	got, err := ReadClientRegion(data, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CellWidthNum)
	assert.Equal(t, 1, got.CellHeightNum)
	assert.Equal(t, []Span{{Min: 0, Max: 1}}, got.Spans)

	raw, err := fsys.ReadFile(filepath.Join("/out/bin", ManifestBin))
	require.NoError(t, err)
	m, err := ReadManifest(raw)
	require.NoError(t, err)
	assert.Equal(t, *report.Manifest, m)

	var fromJSON ClientRegion
	raw, err = fsys.ReadFile(filepath.Join("/out/json", ClientRegionJSON(0)))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &fromJSON))
	assert.Equal(t, 4, fromJSON.TotalSpanNum)
	assert.Equal(t, 2, fromJSON.MergeSpanNum)
}

type failingFS struct {
	*MemoryFileSystem
	fail string
}

var errDiskFull = errors.New("disk full")

func (f failingFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if filepath.Base(name) == f.fail {
		return errDiskFull
	}
	return f.MemoryFileSystem.WriteFile(name, data, perm)
}

func TestSaveClientRegionFailureSkipsManifest(t *testing.T) {
	hf := gridField(t)
	mem := NewMemoryFileSystem()
	e := NewExporter(failingFS{MemoryFileSystem: mem, fail: ClientRegionBin(2)}, zap.NewNop(), testOptions())

	report, err := e.SaveClient(hf, nil, "/out/bin", "/out/json")
	require.Error(t, err)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), "region 2")
	require.NotNil(t, report)
	assert.Nil(t, report.Manifest)
	assert.ErrorIs(t, report.Regions[2].Err, errDiskFull)

	for _, i := range []int{0, 1, 3, 4, 5} {
		assert.True(t, mem.Exists(filepath.Join("/out/bin", ClientRegionBin(i))), "region %d", i)
		assert.NoError(t, report.Regions[i].Err)
	}
	assert.False(t, mem.Exists(filepath.Join("/out/bin", ClientRegionBin(2))))
	assert.False(t, mem.Exists(filepath.Join("/out/bin", ManifestBin)))
	assert.False(t, mem.Exists(filepath.Join("/out/json", ManifestJSON)))
}

func TestSaveServer(t *testing.T) {
	fsys := NewMemoryFileSystem()
	e := NewExporter(fsys, nil, Options{Margin: 1})

	path := "/srv/conf_scene_mask_7.bytes"
	debug := "/srv/ByteCompareTxt.txt"
	m, err := e.SaveServer(serverField(t), path, debug)
	require.NoError(t, err)
	assert.Len(t, m.Entries, 2)

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	var dumped strings.Builder
	require.NoError(t, DumpServerMask(data, &dumped))
	text, err := fsys.ReadFile(debug)
	require.NoError(t, err)
	assert.Equal(t, dumped.String(), string(text))

	assert.Equal(t, "/srv/conf_scene_mask_7.json", ServerJSONPath(path))
	raw, err := fsys.ReadFile(ServerJSONPath(path))
	require.NoError(t, err)
	var mirror struct {
		Margin    int `json:"margin"`
		SpanCount int `json:"spanCount"`
		Spans     []struct {
			Min int `json:"min"`
			Max int `json:"max"`
		} `json:"spans"`
	}
	require.NoError(t, json.Unmarshal(raw, &mirror))
	assert.Equal(t, 1, mirror.Margin)
	assert.Equal(t, 2, mirror.SpanCount)
	assert.Equal(t, 5, mirror.Spans[1].Min)
	assert.Equal(t, 9, mirror.Spans[1].Max)
}

func TestSaveFullJSON(t *testing.T) {
	fsys := NewMemoryFileSystem()
	e := NewExporter(fsys, nil, Options{RegionSize: 4, Workers: 1})

	l, err := e.SaveFullJSON(sharedField(t), "/full")
	require.NoError(t, err)
	require.Len(t, l.Regions, 1)

	raw, err := fsys.ReadFile(filepath.Join("/full", FullRegionJSON(0)))
	require.NoError(t, err)
	var full FullRegion
	require.NoError(t, json.Unmarshal(raw, &full))
	assert.Equal(t, 4, full.CellWidth)
	assert.Equal(t, 1, full.CellHeight)
	require.Len(t, full.Spans, 4)
	assert.Equal(t, CellSpanInfo{X: 2, Z: 0, Spans: []Span{{Min: 0, Max: 5, Area: recast.RC_WALKABLE_AREA}}}, full.Spans[2])
	assert.Empty(t, full.Spans[3].Spans)
}
