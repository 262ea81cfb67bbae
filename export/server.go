package export

import (
	"bufio"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math"

	"github.com/gorustyt/voxelmask/common"
	"github.com/gorustyt/voxelmask/common/rw"
	"github.com/gorustyt/voxelmask/recast"
)

// ServerSpanFlag tags every free-space entry of the server mask.
const ServerSpanFlag = 1

const serverHeaderSize = 16

var ErrCorruptServerMask = errors.New("export: corrupt server mask")

// PackEntry packs one free-space interval as min<<48 | max<<32 | flag<<24.
func PackEntry(min, max uint16, flag uint8) uint64 {
	return uint64(min)<<48 | uint64(max)<<32 | uint64(flag)<<24
}

func UnpackEntry(e uint64) (min, max uint16, flag uint8) {
	return uint16(e >> 48), uint16(e >> 32), uint8(e >> 24)
}

type ServerCell struct {
	Count uint8  `json:"count"`
	Index uint32 `json:"index"`
}

// ServerMask is the whole-map free-space export: one entry per span for the
// gap above it, inflated by a margin and deduplicated across the map.
type ServerMask struct {
	CellX     int32
	MaxHeight int32
	CellZ     int32
	Width     int
	Margin    int
	Cells     []ServerCell
	Entries   []uint64
}

// VoxelMaxHeight is the highest quantised height of hf.
func VoxelMaxHeight(hf *recast.RcHeightfield) int {
	return int(math.Ceil(float64((hf.Bmax[1]-hf.Bmin[1])/hf.Ch))) - 1
}

// BuildServerMask derives the server mask of hf. Columns without spans get
// no entries. The second result counts spans dropped from columns holding
// more than a byte's worth.
func BuildServerMask(hf *recast.RcHeightfield, margin int) (*ServerMask, int) {
	maxH := VoxelMaxHeight(hf)
	m := &ServerMask{
		CellX:     int32(hf.Width - 1),
		MaxHeight: int32(maxH),
		CellZ:     int32(hf.Height - 1),
		Width:     hf.Width,
		Margin:    margin,
		Cells:     make([]ServerCell, hf.Width*hf.Height),
	}
	table := make(map[uint64][]uint32)
	dropped := 0
	var entries []uint64
	for c, head := range hf.Columns {
		entries = entries[:0]
		for i := head; i != recast.RC_NULL_SPAN; i = hf.Spans[i].Next {
			if len(entries) == maxCellSpans {
				dropped++
				continue
			}
			bot, top := hf.SpanTop(i)
			if hf.Spans[i].Next == recast.RC_NULL_SPAN {
				top = maxH
			}
			lo := common.Clamp(bot-margin, 0, maxH)
			hi := common.Clamp(top+margin, 0, maxH)
			entries = append(entries, PackEntry(uint16(lo), uint16(hi), ServerSpanFlag))
		}
		if len(entries) == 0 {
			continue
		}
		m.Cells[c] = ServerCell{Count: uint8(len(entries)), Index: m.intern(table, entries)}
	}
	return m, dropped
}

func entriesKey(entries []uint64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, e := range entries {
		for k := 0; k < 8; k++ {
			buf[k] = byte(e >> (8 * k))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

func (m *ServerMask) intern(table map[uint64][]uint32, entries []uint64) uint32 {
	key := entriesKey(entries)
	for _, start := range table[key] {
		end := int(start) + len(entries)
		if end > len(m.Entries) {
			continue
		}
		if equalEntries(m.Entries[start:end], entries) {
			return start
		}
	}
	start := uint32(len(m.Entries))
	table[key] = append(table[key], start)
	m.Entries = append(m.Entries, entries...)
	return start
}

func equalEntries(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CellEntries returns the entries of column c.
func (m *ServerMask) CellEntries(c int) []uint64 {
	cell := m.Cells[c]
	return m.Entries[cell.Index : cell.Index+uint32(cell.Count)]
}

func (m *ServerMask) MarshalBinary() ([]byte, error) {
	w := rw.NewBinWriter()
	w.WriteInt32(m.CellX)
	w.WriteInt32(m.MaxHeight)
	w.WriteInt32(m.CellZ)
	w.WriteInt32(uint32(len(m.Entries)))
	for _, c := range m.Cells {
		w.WriteInt8(c.Count)
		w.WriteInt32(c.Index)
	}
	for _, e := range m.Entries {
		w.WriteUInt64(e)
	}
	return w.GetWriteBytes(), nil
}

// ReadServerMask decodes a mask written by MarshalBinary. Margin is not
// stored in the file and reads back as zero.
func ReadServerMask(data []byte) (*ServerMask, error) {
	rd := rw.NewBinReader(data)
	m := &ServerMask{
		CellX:     rd.ReadInt32(),
		MaxHeight: rd.ReadInt32(),
		CellZ:     rd.ReadInt32(),
	}
	count := rd.ReadUInt32()
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptServerMask, err)
	}
	if m.CellX < 0 || m.CellZ < 0 {
		return nil, fmt.Errorf("%w: grid %d x %d", ErrCorruptServerMask, m.CellX, m.CellZ)
	}
	m.Width = int(m.CellX) + 1
	cells := m.Width * (int(m.CellZ) + 1)
	if want := cells*5 + int(count)*8; rd.Size() != want {
		return nil, fmt.Errorf("%w: %d payload bytes, want %d", ErrCorruptServerMask, rd.Size(), want)
	}
	m.Cells = make([]ServerCell, cells)
	for i := range m.Cells {
		m.Cells[i].Count = rd.ReadUInt8()
		m.Cells[i].Index = rd.ReadUInt32()
		if uint64(m.Cells[i].Index)+uint64(m.Cells[i].Count) > uint64(count) {
			return nil, fmt.Errorf("%w: cell %d references entries past %d", ErrCorruptServerMask, i, count)
		}
	}
	m.Entries = make([]uint64, count)
	for i := range m.Entries {
		m.Entries[i] = rd.ReadUInt64()
	}
	return m, rd.Err()
}

// WriteText renders the mask in the plain text debug layout.
func (m *ServerMask) WriteText(out io.Writer) error {
	w := bufio.NewWriter(out)
	fmt.Fprintf(w, "x:%d\n", m.CellX)
	fmt.Fprintf(w, "y:%d\n", m.MaxHeight)
	fmt.Fprintf(w, "z:%d\n", m.CellZ)
	fmt.Fprintf(w, "totalSpansNum:%d\n", len(m.Entries))
	for i, c := range m.Cells {
		fmt.Fprintf(w, "x:%d,z:%d,spanNum:%d,index:%d\n", i%m.Width, i/m.Width, c.Count, c.Index)
	}
	for i, e := range m.Entries {
		lo, hi, _ := UnpackEntry(e)
		fmt.Fprintf(w, "index:%d,result:%d,min:%d,max:%d\n", i, e, lo, hi)
	}
	return w.Flush()
}

// DumpServerMask decodes a server mask file and writes its text rendering.
func DumpServerMask(data []byte, out io.Writer) error {
	m, err := ReadServerMask(data)
	if err != nil {
		return err
	}
	return m.WriteText(out)
}

type serverEntryJSON struct {
	Index  int    `json:"index"`
	Result uint64 `json:"result"`
	Min    uint16 `json:"min"`
	Max    uint16 `json:"max"`
}

type serverMaskJSON struct {
	CellX          int32             `json:"cellX"`
	VoxelMaxHeight int32             `json:"voxelMaxHeight"`
	CellZ          int32             `json:"cellZ"`
	SpanCount      int               `json:"spanCount"`
	Margin         int               `json:"margin"`
	Cells          []ServerCell      `json:"cells"`
	Spans          []serverEntryJSON `json:"spans"`
}

// jsonMirror lists the entries with their packed and unpacked values.
func (m *ServerMask) jsonMirror() serverMaskJSON {
	j := serverMaskJSON{
		CellX:          m.CellX,
		VoxelMaxHeight: m.MaxHeight,
		CellZ:          m.CellZ,
		SpanCount:      len(m.Entries),
		Margin:         m.Margin,
		Cells:          m.Cells,
		Spans:          make([]serverEntryJSON, len(m.Entries)),
	}
	for i, e := range m.Entries {
		lo, hi, _ := UnpackEntry(e)
		j.Spans[i] = serverEntryJSON{
			Index:  i,
			Result: e,
			Min:    lo,
			Max:    hi,
		}
	}
	return j
}
