package export

import (
	"gonum.org/v1/gonum/stat"

	"github.com/gorustyt/voxelmask/recast"
)

// Stats summarises the span distribution of an export.
type Stats struct {
	Columns     int
	Spans       int
	MergedSpans int
	MeanSpans   float64
	StdDevSpans float64
	MaxSpans    int
	// DedupRatio is MergedSpans / Spans, 1 when nothing was shared.
	DedupRatio float64
}

// ColumnStats measures the spans per column of hf.
func ColumnStats(hf *recast.RcHeightfield) Stats {
	counts := make([]float64, len(hf.Columns))
	s := Stats{Columns: len(hf.Columns)}
	for c, head := range hf.Columns {
		n := 0
		for i := head; i != recast.RC_NULL_SPAN; i = hf.Spans[i].Next {
			n++
		}
		counts[c] = float64(n)
		s.Spans += n
		s.MaxSpans = max(s.MaxSpans, n)
	}
	if len(counts) > 1 {
		s.MeanSpans, s.StdDevSpans = stat.MeanStdDev(counts, nil)
	} else if len(counts) == 1 {
		s.MeanSpans = counts[0]
	}
	return s
}

func (s *Stats) setMerged(merged int) {
	s.MergedSpans = merged
	if s.Spans > 0 {
		s.DedupRatio = float64(merged) / float64(s.Spans)
	}
}
