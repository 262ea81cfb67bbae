package export

import (
	"encoding/binary"
	"hash/fnv"
)

// Span is one exported occupied span. Offset carries the low byte of the
// span mask.
type Span struct {
	Min    uint16 `json:"Min"`
	Max    uint16 `json:"Max"`
	Area   uint8  `json:"Area"`
	Offset uint8  `json:"Offset"`
}

func sameSpans(a, b []Span) bool {
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

// spansKey hashes every emitted field of the ordered spans of a column.
func spansKey(spans []Span) uint64 {
	h := fnv.New64a()
	var buf [6]byte
	for _, s := range spans {
		binary.LittleEndian.PutUint16(buf[0:], s.Min)
		binary.LittleEndian.PutUint16(buf[2:], s.Max)
		buf[4] = s.Area
		buf[5] = s.Offset
		h.Write(buf[:])
	}
	return h.Sum64()
}

// spanPool stores each distinct column profile once. Columns whose spans
// match in bounds, area and offset share a start index into spans.
type spanPool struct {
	counts []uint8
	starts []uint32
	spans  []Span
	table  map[uint64][]uint32
	total  int
}

func newSpanPool(cells int) *spanPool {
	return &spanPool{
		counts: make([]uint8, cells),
		starts: make([]uint32, cells),
		table:  make(map[uint64][]uint32, cells),
	}
}

// add records the spans of cell. Empty columns keep count 0 and start 0.
func (p *spanPool) add(cell int, spans []Span) {
	if len(spans) == 0 {
		return
	}
	p.counts[cell] = uint8(len(spans))
	p.total += len(spans)

	key := spansKey(spans)
	for _, start := range p.table[key] {
		if int(start)+len(spans) > len(p.spans) {
			continue
		}
		if sameSpans(p.spans[start:int(start)+len(spans)], spans) {
			p.starts[cell] = start
			return
		}
	}
	start := uint32(len(p.spans))
	p.table[key] = append(p.table[key], start)
	p.starts[cell] = start
	p.spans = append(p.spans, spans...)
}
