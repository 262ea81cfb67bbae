package common

import "github.com/go-gl/mathgl/mgl32"

type Vec3 = mgl32.Vec3

type IT interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}
type IIndex interface {
	~int | ~int8 | ~int16 | ~int32 | ~uint | ~uint8 | ~uint16 | ~uint32
}

func GetVert3[T IT, T1 IIndex](verts []T, index T1) []T {
	return verts[index*3 : index*3+3]
}

// Bounds is an axis aligned box in world units.
type Bounds struct {
	Min Vec3
	Max Vec3
}

func (b Bounds) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

func (b Bounds) Empty() bool {
	return b.Max[0] <= b.Min[0] || b.Max[1] <= b.Min[1] || b.Max[2] <= b.Min[2]
}

// CalcBounds returns the bounds of a flat xyz vertex array.
func CalcBounds(verts []float32) (b Bounds) {
	if len(verts) < 3 {
		return b
	}
	b.Min = Vec3{verts[0], verts[1], verts[2]}
	b.Max = b.Min
	for i := 3; i+2 < len(verts); i += 3 {
		Vmin(b.Min[:], verts[i:i+3])
		Vmax(b.Max[:], verts[i:i+3])
	}
	return b
}

// Union grows b to contain o.
func (b Bounds) Union(o Bounds) Bounds {
	Vmin(b.Min[:], o.Min[:])
	Vmax(b.Max[:], o.Max[:])
	return b
}
