package export

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorustyt/voxelmask/common/rw"
	"github.com/gorustyt/voxelmask/recast"
)

const maxCellSpans = 0xff

var ErrCorruptRegion = errors.New("export: corrupt region file")

// ClientRegion is the deduplicated occupied-span data of one region.
type ClientRegion struct {
	Index            int
	CellWidthNum     int
	CellHeightNum    int
	TotalSpanNum     int
	MergeSpanNum     int
	CellSpanCountArr []uint8
	CellSpanIndexArr []uint32
	Spans            []Span
	CellConnectFlags []uint8
}

type clientRegionJSON struct {
	Index            int      `json:"index"`
	CellWidthNum     int      `json:"cellWidthNum"`
	CellHeightNum    int      `json:"cellHeightNum"`
	TotalSpanNum     int      `json:"totalSpanNum"`
	MergeSpanNum     int      `json:"mergeSpanNum"`
	CellSpanCountArr []int    `json:"cellSpanCountArr"`
	CellSpanIndexArr []uint32 `json:"cellSpanIndexArr"`
	Spans            []Span   `json:"spans"`
	CellConnectFlags []int    `json:"cellConnectFlags,omitempty"`
}

func bytesToInts(b []uint8) []int {
	if b == nil {
		return nil
	}
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

func intsToBytes(v []int) []uint8 {
	if v == nil {
		return nil
	}
	out := make([]uint8, len(v))
	for i, n := range v {
		out[i] = uint8(n)
	}
	return out
}

// MarshalJSON writes byte arrays as number lists rather than base64.
func (r *ClientRegion) MarshalJSON() ([]byte, error) {
	return json.Marshal(clientRegionJSON{
		Index:            r.Index,
		CellWidthNum:     r.CellWidthNum,
		CellHeightNum:    r.CellHeightNum,
		TotalSpanNum:     r.TotalSpanNum,
		MergeSpanNum:     r.MergeSpanNum,
		CellSpanCountArr: bytesToInts(r.CellSpanCountArr),
		CellSpanIndexArr: r.CellSpanIndexArr,
		Spans:            r.Spans,
		CellConnectFlags: bytesToInts(r.CellConnectFlags),
	})
}

func (r *ClientRegion) UnmarshalJSON(data []byte) error {
	var j clientRegionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*r = ClientRegion{
		Index:            j.Index,
		CellWidthNum:     j.CellWidthNum,
		CellHeightNum:    j.CellHeightNum,
		TotalSpanNum:     j.TotalSpanNum,
		MergeSpanNum:     j.MergeSpanNum,
		CellSpanCountArr: intsToBytes(j.CellSpanCountArr),
		CellSpanIndexArr: j.CellSpanIndexArr,
		Spans:            j.Spans,
		CellConnectFlags: intsToBytes(j.CellConnectFlags),
	}
	return nil
}

func (r *ClientRegion) CellCount() int {
	return r.CellWidthNum * r.CellHeightNum
}

// CellSpans returns the pooled spans of the i-th cell of the region.
func (r *ClientRegion) CellSpans(i int) []Span {
	start := int(r.CellSpanIndexArr[i])
	return r.Spans[start : start+int(r.CellSpanCountArr[i])]
}

// columnSpans converts the spans of column (x, z). Columns holding more than
// a byte's worth of spans are truncated; the second result is the number of
// dropped spans.
func columnSpans(hf *recast.RcHeightfield, x, z int) ([]Span, int) {
	var spans []Span
	dropped := 0
	for i := hf.Head(x, z); i != recast.RC_NULL_SPAN; i = hf.Spans[i].Next {
		if len(spans) == maxCellSpans {
			dropped++
			continue
		}
		s := &hf.Spans[i]
		spans = append(spans, Span{Min: s.Smin, Max: s.Smax, Area: s.Area, Offset: uint8(s.Mask)})
	}
	return spans, dropped
}

// BuildClientRegion pools the spans of every cell of region r. flags, when
// not nil, is the grid wide connect flag array.
func BuildClientRegion(hf *recast.RcHeightfield, r Region, flags []byte) (*ClientRegion, int) {
	pool := newSpanPool(r.CellCount())
	dropped := 0
	var regionFlags []uint8
	if flags != nil {
		regionFlags = make([]uint8, r.CellCount())
	}
	cell := 0
	for z := 0; z < r.Height; z++ {
		for x := 0; x < r.Width; x++ {
			spans, d := columnSpans(hf, r.X+x, r.Z+z)
			dropped += d
			pool.add(cell, spans)
			if flags != nil {
				regionFlags[cell] = flags[(r.X+x)+(r.Z+z)*hf.Width]
			}
			cell++
		}
	}
	return &ClientRegion{
		Index:            r.Index,
		CellWidthNum:     r.Width,
		CellHeightNum:    r.Height,
		TotalSpanNum:     pool.total,
		MergeSpanNum:     len(pool.spans),
		CellSpanCountArr: pool.counts,
		CellSpanIndexArr: pool.starts,
		Spans:            pool.spans,
		CellConnectFlags: regionFlags,
	}, dropped
}

// EncodeClientRegion writes the little-endian region file. The offset byte
// follows each span only when withOffset is set.
func EncodeClientRegion(r *ClientRegion, withOffset bool) []byte {
	w := rw.NewBinWriter()
	w.WriteInt16(uint16(r.CellWidthNum))
	w.WriteInt16(uint16(r.CellHeightNum))
	w.WriteInt32(int32(r.MergeSpanNum))
	w.WriteInt8s(r.CellSpanCountArr)
	w.WriteInt32s(r.CellSpanIndexArr)
	for _, s := range r.Spans[:r.MergeSpanNum] {
		w.WriteInt16(s.Min)
		w.WriteInt16(s.Max)
		if withOffset {
			w.WriteInt8(s.Offset)
		}
	}
	return w.GetWriteBytes()
}

// ReadClientRegion decodes a region file written by EncodeClientRegion.
// Area ids are not part of the file and come back as zero.
func ReadClientRegion(data []byte, withOffset bool) (*ClientRegion, error) {
	rd := rw.NewBinReader(data)
	r := &ClientRegion{}
	r.CellWidthNum = int(rd.ReadUInt16())
	r.CellHeightNum = int(rd.ReadUInt16())
	merged := rd.ReadInt32()
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptRegion, err)
	}
	if merged < 0 {
		return nil, fmt.Errorf("%w: negative span count %d", ErrCorruptRegion, merged)
	}
	r.MergeSpanNum = int(merged)

	cells := r.CellCount()
	spanSize := 4
	if withOffset {
		spanSize = 5
	}
	if want := cells*5 + r.MergeSpanNum*spanSize; rd.Size() != want {
		return nil, fmt.Errorf("%w: %d payload bytes, want %d", ErrCorruptRegion, rd.Size(), want)
	}
	r.CellSpanCountArr = make([]uint8, cells)
	rd.ReadUInt8s(r.CellSpanCountArr)
	r.CellSpanIndexArr = make([]uint32, cells)
	rd.ReadUInt32s(r.CellSpanIndexArr)
	r.Spans = make([]Span, r.MergeSpanNum)
	for i := range r.Spans {
		r.Spans[i].Min = rd.ReadUInt16()
		r.Spans[i].Max = rd.ReadUInt16()
		if withOffset {
			r.Spans[i].Offset = rd.ReadUInt8()
		}
	}
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRegion, err)
	}
	for i := 0; i < cells; i++ {
		r.TotalSpanNum += int(r.CellSpanCountArr[i])
		if int(r.CellSpanIndexArr[i])+int(r.CellSpanCountArr[i]) > r.MergeSpanNum {
			return nil, fmt.Errorf("%w: cell %d references spans past %d", ErrCorruptRegion, i, r.MergeSpanNum)
		}
	}
	return r, nil
}
