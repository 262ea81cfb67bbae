package recast

import (
	"errors"
	"fmt"
	"math"

	"github.com/gorustyt/voxelmask/common"
)

const (
	/// The number of spans allocated each time the span arena grows.
	RC_SPANS_PER_POOL = 2048
	/// Defines the maximum value for RcSpan::Smin and RcSpan::Smax.
	RC_SPAN_MAX_HEIGHT = 0xffff
	/// Represents the null area.
	/// When a data element is given this value it is considered to no longer be
	/// assigned to a usable area.  (E.g. It is un-walkable.)
	RC_NULL_AREA = 0
	/// The default area id used to indicate a walkable surface.
	RC_WALKABLE_AREA = 63
	/// Arena index meaning "no span".
	RC_NULL_SPAN int32 = -1
)

// Auxiliary span mask bits.
const (
	MaskWater       uint16 = 1 << 0
	MaskWaterBottom uint16 = 1 << 1
)

var (
	ErrNilHeightfield   = errors.New("recast: nil heightfield")
	ErrEmptyGrid        = errors.New("recast: grid has zero size")
	ErrColumnOutOfRange = errors.New("recast: column out of range")
)

// / Specifies the configuration of a voxel build.
// / Values in voxel units are derived from world units by the caller.
type RcConfig struct {
	/// The width of the field along the x-axis. [Limit: >= 0] [Units: vx]
	Width int

	/// The height of the field along the z-axis. [Limit: >= 0] [Units: vx]
	Height int

	/// The xz-plane cell size to use for fields. [Limit: > 0] [Units: wu]
	Cs float32

	/// The y-axis cell size to use for fields. [Limit: > 0] [Units: wu]
	Ch float32

	/// The minimum bounds of the field's AABB. [(x, y, z)] [Units: wu]
	Bmin [3]float32

	/// The maximum bounds of the field's AABB. [(x, y, z)] [Units: wu]
	Bmax [3]float32

	/// The maximum slope that is considered walkable. [Limits: 0 <= value < 90] [Units: Degrees]
	WalkableSlopeAngle float32

	/// Minimum floor to 'ceiling' height that will still allow the floor area to
	/// be considered walkable. [Limit: >= 3] [Units: vx]
	WalkableHeight int

	/// Maximum ledge height that is considered to still be traversable. [Limit: >=0] [Units: vx]
	WalkableClimb int

	/// The distance to erode/shrink the walkable area of the heightfield away from
	/// obstructions.  [Limit: >=0] [Units: vx]
	WalkableRadius int
}

// / Represents a span in a heightfield.
// / @see RcHeightfield
type RcSpan struct {
	Smin uint16 ///< The lower limit of the span. [Limit: < #Smax]
	Smax uint16 ///< The upper limit of the span. [Limit: <= #RC_SPAN_MAX_HEIGHT]
	Area uint8  ///< The area id assigned to the span.
	Mask uint16 ///< Auxiliary bits (water, water bottom).
	Next int32  ///< Arena index of the next span higher up in column.
}

// / A dynamic heightfield representing obstructed space.
// / Spans live in one arena owned by the heightfield and are addressed by index.
type RcHeightfield struct {
	Width    int        ///< The width of the heightfield. (Along the x-axis in cell units.)
	Height   int        ///< The height of the heightfield. (Along the z-axis in cell units.)
	Bmin     [3]float32 ///< The minimum bounds in world space. [(x, y, z)]
	Bmax     [3]float32 ///< The maximum bounds in world space. [(x, y, z)]
	Cs       float32    ///< The size of each cell. (On the xz-plane.)
	Ch       float32    ///< The height of each cell. (The minimum increment along the y-axis.)
	Columns  []int32    ///< Index of the lowest span per column (width*height).
	Spans    []RcSpan   ///< Span arena.
	Freelist int32      ///< The next free span.
}

func RcCalcGridSize(minBounds, maxBounds []float32, cellSize float32) (sizeX, sizeZ int) {
	sizeX = int((maxBounds[0]-minBounds[0])/cellSize + 0.5)
	sizeZ = int((maxBounds[2]-minBounds[2])/cellSize + 0.5)
	return sizeX, sizeZ
}

func RcCreateHeightfield(sizeX, sizeZ int,
	minBounds, maxBounds []float32,
	cellSize, cellHeight float32) (*RcHeightfield, error) {
	if sizeX <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("%w: %d x %d", ErrEmptyGrid, sizeX, sizeZ)
	}
	heightfield := &RcHeightfield{
		Width:    sizeX,
		Height:   sizeZ,
		Cs:       cellSize,
		Ch:       cellHeight,
		Columns:  make([]int32, sizeX*sizeZ),
		Freelist: RC_NULL_SPAN,
	}
	copy(heightfield.Bmin[:], minBounds)
	copy(heightfield.Bmax[:], maxBounds)
	for i := range heightfield.Columns {
		heightfield.Columns[i] = RC_NULL_SPAN
	}
	return heightfield, nil
}

// Span returns the span stored at arena index i.
func (hf *RcHeightfield) Span(i int32) *RcSpan {
	return &hf.Spans[i]
}

// Head returns the arena index of the lowest span of column (x, z).
func (hf *RcHeightfield) Head(x, z int) int32 {
	return hf.Columns[x+z*hf.Width]
}

// InBounds reports whether (x, z) addresses a column.
func (hf *RcHeightfield) InBounds(x, z int) bool {
	return x >= 0 && z >= 0 && x < hf.Width && z < hf.Height
}

// SpanTop returns the floor of the gap above span i: its own Smax, and the
// ceiling: the next span's Smin or RC_SPAN_MAX_HEIGHT.
func (hf *RcHeightfield) SpanTop(i int32) (bot, top int) {
	s := &hf.Spans[i]
	bot = int(s.Smax)
	top = RC_SPAN_MAX_HEIGHT
	if s.Next != RC_NULL_SPAN {
		top = int(hf.Spans[s.Next].Smin)
	}
	return bot, top
}

// ColumnSpans appends the spans of column (x, z) to dst, bottom first.
func (hf *RcHeightfield) ColumnSpans(dst []RcSpan, x, z int) []RcSpan {
	for i := hf.Head(x, z); i != RC_NULL_SPAN; i = hf.Spans[i].Next {
		dst = append(dst, hf.Spans[i])
	}
	return dst
}

// / Returns the number of spans in the heightfield, optionally only the walkable ones.
func RcGetHeightFieldSpanCount(heightfield *RcHeightfield, walkableOnly bool) int {
	spanCount := 0
	for _, head := range heightfield.Columns {
		for i := head; i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
			if !walkableOnly || heightfield.Spans[i].Area != RC_NULL_AREA {
				spanCount++
			}
		}
	}
	return spanCount
}

func calcTriNormal(v0, v1, v2 []float32, faceNormal []float32) {
	e0 := make([]float32, 3)
	e1 := make([]float32, 3)
	common.Vsub(e0, v1, v0)
	common.Vsub(e1, v2, v0)
	common.Vcross(faceNormal, e0, e1)
	common.Vnormalize(faceNormal)
}

// / Sets the area id of all triangles with a slope below the specified value
// / to #RC_WALKABLE_AREA.
// /
// / @param[in]		walkableSlopeAngle	The maximum slope that is considered walkable.
// /									[Limits: 0 <= value < 90] [Units: Degrees]
// / @param[in]		verts				The vertices. [(x, y, z) * nv]
// / @param[in]		tris				The triangle vertex indices. [(vertA, vertB, vertC) * nt]
// / @param[out]	triAreaIDs			The triangle area ids. [Length: >= nt]
func RcMarkWalkableTriangles(walkableSlopeAngle float32, verts []float32, tris []int32, triAreaIDs []uint8) {
	walkableThr := float32(math.Cos(float64(walkableSlopeAngle) / 180.0 * math.Pi))

	norm := make([]float32, 3)
	for i := 0; i < len(tris)/3; i++ {
		tri := common.GetVert3(tris, i)
		calcTriNormal(common.GetVert3(verts, tri[0]), common.GetVert3(verts, tri[1]), common.GetVert3(verts, tri[2]), norm)
		// Check if the face is walkable.
		if norm[1] > walkableThr {
			triAreaIDs[i] = RC_WALKABLE_AREA
		}
	}
}
