package export

import (
	"github.com/gorustyt/voxelmask/recast"
)

// CellSpanInfo lists every span of one column, area ids included.
type CellSpanInfo struct {
	X     int    `json:"x"`
	Z     int    `json:"z"`
	Spans []Span `json:"spans"`
}

// FullRegion is the undeduplicated JSON dump of one region.
type FullRegion struct {
	CellWidth  int            `json:"cellWidth"`
	CellHeight int            `json:"cellHeight"`
	Spans      []CellSpanInfo `json:"spans"`
}

func BuildFullRegion(hf *recast.RcHeightfield, r Region) (*FullRegion, int) {
	out := &FullRegion{
		CellWidth:  r.Width,
		CellHeight: r.Height,
		Spans:      make([]CellSpanInfo, 0, r.CellCount()),
	}
	dropped := 0
	for z := 0; z < r.Height; z++ {
		for x := 0; x < r.Width; x++ {
			spans, d := columnSpans(hf, r.X+x, r.Z+z)
			dropped += d
			out.Spans = append(out.Spans, CellSpanInfo{X: r.X + x, Z: r.Z + z, Spans: spans})
		}
	}
	return out, dropped
}
