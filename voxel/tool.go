package voxel

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gorustyt/voxelmask/closedspace"
	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/connectivity"
	"github.com/gorustyt/voxelmask/export"
	"github.com/gorustyt/voxelmask/mesh"
	"github.com/gorustyt/voxelmask/recast"
)

// SpanElementNum is the number of uint16 values GetSpans writes per span.
const SpanElementNum = 3

var (
	ErrNoBaseGeometry = errors.New("voxel: no base geometry (mask 0)")
	ErrNotBuilt       = errors.New("voxel: no successful build")
	ErrBadConfig      = errors.New("voxel: invalid build config")
)

// BuildStats summarises the last successful build.
type BuildStats struct {
	ID            uuid.UUID
	Width         int
	Height        int
	Spans         int
	WalkableSpans int
	ClosedSpace   closedspace.Result
	Eroded        int
	Duration      time.Duration
}

// Tool owns the meshes, the build configuration and the heightfield of one
// voxel build. It is not safe for concurrent use.
type Tool struct {
	log *zap.Logger
	ctx *recast.BuildContext

	meshes *mesh.Data
	cfg    recast.RcConfig
	// Bounds given by SetBoundBox; equal when unset.
	bmin, bmax common.Vec3

	seed    common.Vec3
	hasSeed bool

	filterLowHangingObstacles    bool
	filterLedgeSpans             bool
	filterWalkableLowHeightSpans bool
	fillFirstSpans               bool

	fs         export.FileSystem
	exportOpts export.Options

	solid *recast.RcHeightfield
	index *connectivity.Index
	stats BuildStats
}

func NewTool(log *zap.Logger) *Tool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tool{
		log:                          log,
		ctx:                          recast.NewBuildContext(log),
		meshes:                       mesh.NewData(),
		filterLowHangingObstacles:    true,
		filterLedgeSpans:             true,
		filterWalkableLowHeightSpans: true,
		fs:                           export.OSFileSystem{},
		exportOpts:                   export.DefaultOptions(),
	}
}

// SetBuildConfig converts the agent profile from world units to voxels.
func (t *Tool) SetBuildConfig(cellSize, cellHeight, agentHeight, agentClimb, agentRadius, agentMaxSlope float32) error {
	if cellSize <= 0 || cellHeight <= 0 {
		return fmt.Errorf("%w: cell size %v, cell height %v", ErrBadConfig, cellSize, cellHeight)
	}
	if agentHeight <= 0 || agentClimb < 0 || agentRadius < 0 {
		return fmt.Errorf("%w: agent height %v, climb %v, radius %v", ErrBadConfig, agentHeight, agentClimb, agentRadius)
	}
	if agentMaxSlope < 0 || agentMaxSlope >= 90 {
		return fmt.Errorf("%w: max slope %v", ErrBadConfig, agentMaxSlope)
	}
	t.cfg.Cs = cellSize
	t.cfg.Ch = cellHeight
	t.cfg.WalkableSlopeAngle = agentMaxSlope
	t.cfg.WalkableHeight = int(math.Ceil(float64(agentHeight / cellHeight)))
	t.cfg.WalkableClimb = int(math.Floor(float64(agentClimb / cellHeight)))
	t.cfg.WalkableRadius = int(math.Ceil(float64(agentRadius / cellSize)))
	return nil
}

// SetBoundBox sets the world bounds of the grid. Without it the bounds of
// the added meshes are used.
func (t *Tool) SetBoundBox(bmin, bmax common.Vec3) {
	t.bmin, t.bmax = bmin, bmax
	t.cfg.Bmin, t.cfg.Bmax = bmin, bmax
}

// SetSeed enables the closed-space pass, flooding from pos.
func (t *Tool) SetSeed(pos common.Vec3) {
	t.seed = pos
	t.hasSeed = true
}

func (t *Tool) ClearSeed() {
	t.hasSeed = false
}

func (t *Tool) SetFilters(lowHangingObstacles, ledgeSpans, walkableLowHeightSpans bool) {
	t.filterLowHangingObstacles = lowHangingObstacles
	t.filterLedgeSpans = ledgeSpans
	t.filterWalkableLowHeightSpans = walkableLowHeightSpans
}

func (t *Tool) SetFillFirstSpans(on bool) {
	t.fillFirstSpans = on
}

func (t *Tool) SetFileSystem(fs export.FileSystem) {
	t.fs = fs
}

func (t *Tool) SetExportOptions(opts export.Options) {
	t.exportOpts = opts
}

func (t *Tool) Config() recast.RcConfig {
	return t.cfg
}

func (t *Tool) Context() *recast.BuildContext {
	return t.ctx
}

// AddMesh queues a triangle soup. area is the initial area id of every
// triangle; slope marking may still upgrade it to walkable.
func (t *Tool) AddMesh(verts []float32, tris []int32, area uint8, mask uint16) error {
	return t.meshes.Add(verts, tris, area, mask)
}

// Reset drops the meshes and the last build.
func (t *Tool) Reset() {
	t.meshes.Reset()
	t.cleanup()
}

func (t *Tool) cleanup() {
	t.solid = nil
	t.index = nil
	t.stats = BuildStats{}
}

// Heightfield returns the grid of the last successful build, or nil.
func (t *Tool) Heightfield() *recast.RcHeightfield {
	return t.solid
}

func (t *Tool) Stats() BuildStats {
	return t.stats
}

func (t *Tool) checkSeed() error {
	if !t.hasSeed {
		return nil
	}
	x := int(math.Floor(float64((t.seed[0] - t.cfg.Bmin[0]) / t.cfg.Cs)))
	z := int(math.Floor(float64((t.seed[2] - t.cfg.Bmin[2]) / t.cfg.Cs)))
	if x < 0 || z < 0 || x >= t.cfg.Width || z >= t.cfg.Height || t.seed[1] < t.cfg.Bmin[1] {
		return fmt.Errorf("%w: %v outside bounds %v - %v", closedspace.ErrSeedOutOfBounds, t.seed, t.cfg.Bmin, t.cfg.Bmax)
	}
	return nil
}

func (t *Tool) rasterize(g *mesh.Group, hf *recast.RcHeightfield) error {
	areas := append([]uint8(nil), g.Areas...)
	recast.RcMarkWalkableTriangles(t.cfg.WalkableSlopeAngle, g.Verts, g.Tris, areas)
	return recast.RcRasterizeTriangles(g.Verts, g.Tris, areas, g.Masks, hf, t.cfg.WalkableClimb)
}

// Build runs the whole pipeline. On failure the previous grid is discarded
// and no partial grid is exposed.
func (t *Tool) Build() error {
	t.cleanup()
	if !t.meshes.HasBase() {
		t.ctx.Errorf("build: no base geometry (mask 0)")
		return ErrNoBaseGeometry
	}
	if t.cfg.Cs <= 0 || t.cfg.Ch <= 0 {
		t.ctx.Errorf("build: build config not set")
		return fmt.Errorf("%w: build config not set", ErrBadConfig)
	}
	t.cfg.Bmin, t.cfg.Bmax = t.bmin, t.bmax
	if t.bmin == t.bmax {
		b := t.meshes.Bounds()
		t.cfg.Bmin, t.cfg.Bmax = b.Min, b.Max
	}
	t.cfg.Width, t.cfg.Height = recast.RcCalcGridSize(t.cfg.Bmin[:], t.cfg.Bmax[:], t.cfg.Cs)
	if err := t.checkSeed(); err != nil {
		t.ctx.Errorf("build: %v", err)
		return err
	}

	t.ctx.ResetTimers()
	t.ctx.Progressf("building voxels: %d x %d cells, bounds %v - %v", t.cfg.Width, t.cfg.Height, t.cfg.Bmin, t.cfg.Bmax)
	t.ctx.StartTimer(recast.RC_TIMER_TOTAL)

	hf, err := recast.RcCreateHeightfield(t.cfg.Width, t.cfg.Height, t.cfg.Bmin[:], t.cfg.Bmax[:], t.cfg.Cs, t.cfg.Ch)
	if err != nil {
		t.ctx.Errorf("build: could not create heightfield: %v", err)
		return err
	}

	base := t.meshes.Group(0)
	t.ctx.Progressf("mask 0: %d vertices, %d triangles", base.VertCount(), base.TriCount())
	t.ctx.StartTimer(recast.RC_TIMER_RASTERIZE_TRIANGLES)
	err = t.rasterize(base, hf)
	t.ctx.StopTimer(recast.RC_TIMER_RASTERIZE_TRIANGLES)
	if err != nil {
		t.ctx.Errorf("build: could not rasterize triangles: %v", err)
		return err
	}

	if err := t.filter(hf); err != nil {
		return err
	}

	t.ctx.StartTimer(recast.RC_TIMER_FILL_NULL_SPANS)
	err = recast.RcFillNullSpans(t.cfg.WalkableClimb, hf)
	if err == nil && t.fillFirstSpans {
		err = recast.RcFillFirstSpans(hf)
	}
	t.ctx.StopTimer(recast.RC_TIMER_FILL_NULL_SPANS)
	if err != nil {
		return err
	}

	var closed closedspace.Result
	if t.hasSeed {
		t.ctx.StartTimer(recast.RC_TIMER_CLOSED_SPACE)
		closed, err = closedspace.Run(hf, t.seed, t.cfg.WalkableHeight, t.cfg.WalkableClimb)
		t.ctx.StopTimer(recast.RC_TIMER_CLOSED_SPACE)
		if err != nil {
			t.ctx.Errorf("build: closed space: %v", err)
			return err
		}
		t.ctx.Progressf("closed space: %d anti-spans, %d reached, %d spans demoted", closed.AntiSpans, closed.Reached, closed.Demoted)
	}

	eroded, err := t.erode(hf)
	if err != nil {
		t.ctx.Errorf("build: could not erode: %v", err)
		return err
	}

	for _, mask := range t.meshes.Masks() {
		if mask == 0 {
			continue
		}
		g := t.meshes.Group(mask)
		t.ctx.Progressf("mask %d: %d vertices, %d triangles", mask, g.VertCount(), g.TriCount())
		t.ctx.StartTimer(recast.RC_TIMER_RASTERIZE_TRIANGLES)
		err = t.rasterize(g, hf)
		t.ctx.StopTimer(recast.RC_TIMER_RASTERIZE_TRIANGLES)
		if err != nil {
			t.ctx.Errorf("build: could not rasterize mask %d: %v", mask, err)
			return err
		}
	}

	t.ctx.StartTimer(recast.RC_TIMER_FILL_WATER)
	err = recast.RcFillWaterSpans(t.cfg.WalkableHeight, t.cfg.WalkableClimb, hf)
	if err == nil {
		err = recast.RcExtendWaterSpans(hf)
	}
	t.ctx.StopTimer(recast.RC_TIMER_FILL_WATER)
	if err != nil {
		return err
	}

	t.ctx.StopTimer(recast.RC_TIMER_TOTAL)
	t.solid = hf
	t.stats = BuildStats{
		ID:            uuid.New(),
		Width:         hf.Width,
		Height:        hf.Height,
		Spans:         recast.RcGetHeightFieldSpanCount(hf, false),
		WalkableSpans: recast.RcGetHeightFieldSpanCount(hf, true),
		ClosedSpace:   closed,
		Eroded:        eroded,
		Duration:      t.ctx.AccumulatedTime(recast.RC_TIMER_TOTAL),
	}
	fields := []zap.Field{
		zap.Stringer("build_id", t.stats.ID),
		zap.Int("width", t.stats.Width),
		zap.Int("height", t.stats.Height),
		zap.Int("spans", t.stats.Spans),
		zap.Int("walkable", t.stats.WalkableSpans),
		zap.Int("closed_space_demoted", closed.Demoted),
		zap.Int("eroded", eroded),
	}
	t.log.Info("voxel build done", append(fields, t.ctx.TimerFields()...)...)
	return nil
}

func (t *Tool) filter(hf *recast.RcHeightfield) error {
	if t.filterLowHangingObstacles {
		t.ctx.StartTimer(recast.RC_TIMER_FILTER_LOW_OBSTACLES)
		err := recast.RcFilterLowHangingWalkableObstacles(t.cfg.WalkableClimb, hf)
		t.ctx.StopTimer(recast.RC_TIMER_FILTER_LOW_OBSTACLES)
		if err != nil {
			return err
		}
	}
	if t.filterLedgeSpans {
		t.ctx.StartTimer(recast.RC_TIMER_FILTER_BORDER)
		err := recast.RcFilterLedgeSpans(t.cfg.WalkableHeight, t.cfg.WalkableClimb, hf)
		t.ctx.StopTimer(recast.RC_TIMER_FILTER_BORDER)
		if err != nil {
			return err
		}
	}
	if t.filterWalkableLowHeightSpans {
		t.ctx.StartTimer(recast.RC_TIMER_FILTER_WALKABLE)
		err := recast.RcFilterWalkableLowHeightSpans(t.cfg.WalkableHeight, hf)
		t.ctx.StopTimer(recast.RC_TIMER_FILTER_WALKABLE)
		if err != nil {
			return err
		}
	}
	return nil
}

// erode shrinks the walkable area by the agent radius and writes the result
// back onto hf.
func (t *Tool) erode(hf *recast.RcHeightfield) (int, error) {
	t.ctx.StartTimer(recast.RC_TIMER_BUILD_COMPACTHEIGHTFIELD)
	chf, err := recast.RcBuildCompactHeightfield(t.cfg.WalkableHeight, t.cfg.WalkableClimb, hf)
	t.ctx.StopTimer(recast.RC_TIMER_BUILD_COMPACTHEIGHTFIELD)
	if err != nil {
		return 0, err
	}
	t.ctx.StartTimer(recast.RC_TIMER_ERODE_AREA)
	defer t.ctx.StopTimer(recast.RC_TIMER_ERODE_AREA)
	recast.RcErodeWalkableArea(t.cfg.WalkableRadius, chf)
	return recast.RcApplyCompactAreas(chf, hf), nil
}

// GetSpans writes (min, max, area) triples for the spans of column (x, z)
// into buf, bottom first, and returns how many triples were written. A
// column holding more spans than buf fits is truncated and logged.
func (t *Tool) GetSpans(x, z int, buf []uint16) (int, error) {
	if t.solid == nil {
		return 0, ErrNotBuilt
	}
	if !t.solid.InBounds(x, z) {
		return 0, fmt.Errorf("%w: (%d,%d) in %dx%d grid", recast.ErrColumnOutOfRange, x, z, t.solid.Width, t.solid.Height)
	}
	capacity := len(buf) / SpanElementNum
	n := 0
	total := 0
	for i := t.solid.Head(x, z); i != recast.RC_NULL_SPAN; i = t.solid.Spans[i].Next {
		total++
		if n == capacity {
			continue
		}
		s := &t.solid.Spans[i]
		buf[n*SpanElementNum] = s.Smin
		buf[n*SpanElementNum+1] = s.Smax
		buf[n*SpanElementNum+2] = uint16(s.Area)
		n++
	}
	if total > n {
		t.log.Error("span buffer overflow, column truncated",
			zap.Int("x", x), zap.Int("z", z), zap.Int("spans", total), zap.Int("capacity", capacity))
	}
	return n, nil
}
