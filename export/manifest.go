package export

import (
	"fmt"
	"math"

	"github.com/gorustyt/voxelmask/common/message"
	"github.com/gorustyt/voxelmask/common/rw"
	"github.com/gorustyt/voxelmask/recast"
)

// manifestSize is the byte length of voxel.bin.
const manifestSize = 4*6 + 2*3

// Manifest describes the voxel size and the region layout of a client export.
type Manifest struct {
	VoxelSize     float32 `json:"voxelSize"`
	VoxelHeight   float32 `json:"voxelHeight"`
	MapX          int32   `json:"mapX"`
	MapY          int32   `json:"mapY"`
	MapZ          int32   `json:"mapZ"`
	RegionAxisNum int32   `json:"regionAxisNum"`
	RegionNum     uint16  `json:"regionNum"`
	RegionWidth   uint16  `json:"regionWidth"`
	RegionHeight  uint16  `json:"regionHeight"`
}

func NewManifest(hf *recast.RcHeightfield, l Layout) Manifest {
	return Manifest{
		VoxelSize:     hf.Cs,
		VoxelHeight:   hf.Ch,
		MapX:          int32(float32(hf.Width) * hf.Cs),
		MapY:          int32(hf.Bmax[1]),
		MapZ:          int32(float32(hf.Height) * hf.Cs),
		RegionAxisNum: int32(l.Size),
		RegionNum:     uint16(len(l.Regions)),
		RegionWidth:   uint16(l.RegionsX),
		RegionHeight:  uint16(l.RegionsZ),
	}
}

func (m Manifest) MarshalBinary() ([]byte, error) {
	w := rw.NewBinWriter()
	w.WriteFloat32(m.VoxelSize)
	w.WriteFloat32(m.VoxelHeight)
	w.WriteInt32(m.MapX)
	w.WriteInt32(m.MapY)
	w.WriteInt32(m.MapZ)
	w.WriteInt32(m.RegionAxisNum)
	w.WriteInt16(m.RegionNum)
	w.WriteInt16(m.RegionWidth)
	w.WriteInt16(m.RegionHeight)
	return w.GetWriteBytes(), nil
}

func ReadManifest(data []byte) (Manifest, error) {
	if len(data) != manifestSize {
		return Manifest{}, fmt.Errorf("export: manifest is %d bytes, want %d", len(data), manifestSize)
	}
	rd := rw.NewBinReader(data)
	m := Manifest{
		VoxelSize:     rd.ReadFloat32(),
		VoxelHeight:   rd.ReadFloat32(),
		MapX:          rd.ReadInt32(),
		MapY:          rd.ReadInt32(),
		MapZ:          rd.ReadInt32(),
		RegionAxisNum: rd.ReadInt32(),
		RegionNum:     rd.ReadUInt16(),
		RegionWidth:   rd.ReadUInt16(),
		RegionHeight:  rd.ReadUInt16(),
	}
	return m, rd.Err()
}

// EncodeProto renders the manifest as a protobuf Struct.
func (m Manifest) EncodeProto() ([]byte, error) {
	return message.EncodeFields(map[string]any{
		"voxelSize":     float64(m.VoxelSize),
		"voxelHeight":   float64(m.VoxelHeight),
		"mapX":          float64(m.MapX),
		"mapY":          float64(m.MapY),
		"mapZ":          float64(m.MapZ),
		"regionAxisNum": float64(m.RegionAxisNum),
		"regionNum":     float64(m.RegionNum),
		"regionWidth":   float64(m.RegionWidth),
		"regionHeight":  float64(m.RegionHeight),
	})
}

func DecodeProtoManifest(data []byte) (Manifest, error) {
	fields, err := message.DecodeFields(data)
	if err != nil {
		return Manifest{}, err
	}
	num := func(name string) (float64, error) {
		v, ok := fields[name].(float64)
		if !ok {
			return 0, fmt.Errorf("export: manifest field %q missing", name)
		}
		return v, nil
	}
	var m Manifest
	for _, f := range []struct {
		name string
		set  func(float64)
	}{
		{"voxelSize", func(v float64) { m.VoxelSize = float32(v) }},
		{"voxelHeight", func(v float64) { m.VoxelHeight = float32(v) }},
		{"mapX", func(v float64) { m.MapX = int32(v) }},
		{"mapY", func(v float64) { m.MapY = int32(v) }},
		{"mapZ", func(v float64) { m.MapZ = int32(v) }},
		{"regionAxisNum", func(v float64) { m.RegionAxisNum = int32(v) }},
		{"regionNum", func(v float64) { m.RegionNum = uint16(v) }},
		{"regionWidth", func(v float64) { m.RegionWidth = uint16(v) }},
		{"regionHeight", func(v float64) { m.RegionHeight = uint16(v) }},
	} {
		v, err := num(f.name)
		if err != nil {
			return Manifest{}, err
		}
		if math.IsNaN(v) {
			return Manifest{}, fmt.Errorf("export: manifest field %q is NaN", f.name)
		}
		f.set(v)
	}
	return m, nil
}
