package recast

type addSpanInfo struct {
	x, z       int
	smin, smax uint16
	area       uint8
	mask       uint16
}

func flushSpans(heightfield *RcHeightfield, infos []addSpanInfo, flagMergeThreshold int) {
	for _, info := range infos {
		addSpan(heightfield, info.x, info.z, info.smin, info.smax, info.area, info.mask, flagMergeThreshold)
	}
}

// RcFillNullSpans closes the gap above every null span that has a span over it,
// so a null span and its successor become one solid null block. The merge uses
// the climb threshold, so a walkable top within climb of the gap keeps its area.
//
// Only the topmost span of a column can stay null after this pass, which makes
// running it twice a no-op.
func RcFillNullSpans(walkableClimb int, heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	var infos []addSpanInfo
	for z := 0; z < heightfield.Height; z++ {
		for x := 0; x < heightfield.Width; x++ {
			for i := heightfield.Head(x, z); i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
				s := &heightfield.Spans[i]
				if s.Area != RC_NULL_AREA || s.Next == RC_NULL_SPAN {
					continue
				}
				next := &heightfield.Spans[s.Next]
				// A zero length gap still glues the two spans together.
				infos = append(infos, addSpanInfo{x: x, z: z, smin: s.Smax, smax: next.Smin, area: RC_NULL_AREA, mask: next.Mask})
			}
		}
	}
	flushSpans(heightfield, infos, walkableClimb)
	return nil
}

// RcFillFirstSpans extends the lowest span of every column down to zero.
func RcFillFirstSpans(heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	for _, head := range heightfield.Columns {
		if head != RC_NULL_SPAN {
			heightfield.Spans[head].Smin = 0
		}
	}
	return nil
}

func isWater(mask uint16) bool {
	return mask&MaskWater != 0
}

// RcFillWaterSpans fills gaps too low for the agent under a non-water span.
// When the filled surface was water, the water body below it is filled too.
func RcFillWaterSpans(walkableHeight, walkableClimb int, heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	var infos []addSpanInfo
	for z := 0; z < heightfield.Height; z++ {
		for x := 0; x < heightfield.Width; x++ {
			prev := RC_NULL_SPAN
			for i := heightfield.Head(x, z); i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
				s := &heightfield.Spans[i]
				if s.Next != RC_NULL_SPAN {
					next := &heightfield.Spans[s.Next]
					if !isWater(next.Mask) && int(next.Smin)-int(s.Smax) < walkableHeight {
						mask := s.Mask
						s.Mask = next.Mask
						infos = append(infos, addSpanInfo{x: x, z: z, smin: s.Smax, smax: next.Smax, area: RC_NULL_AREA, mask: next.Mask})
						if isWater(mask) && prev != RC_NULL_SPAN {
							p := &heightfield.Spans[prev]
							p.Mask = next.Mask
							infos = append(infos, addSpanInfo{x: x, z: z, smin: p.Smax, smax: s.Smax, area: RC_NULL_AREA, mask: next.Mask})
						}
					}
				}
				prev = i
			}
		}
	}
	flushSpans(heightfield, infos, walkableClimb)
	return nil
}

// RcExtendWaterSpans stretches each water span down onto the non-water span
// below it and flags that span as the water bottom.
func RcExtendWaterSpans(heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	for _, head := range heightfield.Columns {
		prev := RC_NULL_SPAN
		for i := head; i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
			s := &heightfield.Spans[i]
			if isWater(s.Mask) && prev != RC_NULL_SPAN && !isWater(heightfield.Spans[prev].Mask) {
				p := &heightfield.Spans[prev]
				s.Smin = p.Smax
				p.Mask |= MaskWaterBottom
			}
			prev = i
		}
	}
	return nil
}
