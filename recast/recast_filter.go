package recast

import "github.com/gorustyt/voxelmask/common"

// / Marks non-walkable spans as walkable if their maximum is within @p walkableClimb of the span below them.
// /
// / This removes small obstacles and rasterization artifacts that the agent would be able to walk over
// / such as curbs.  It also allows agents to move up terraced structures like stairs.
// /
// / Obstacle spans are marked walkable if: <tt>obstacleSpan.smax - walkableSpan.smax < walkableClimb</tt>
// /
// / @warning Will override the effect of #RcFilterLedgeSpans.  If both filters are used, call #RcFilterLedgeSpans only after applying this filter.
func RcFilterLowHangingWalkableObstacles(walkableClimb int, heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	xSize := heightfield.Width
	zSize := heightfield.Height

	for z := 0; z < zSize; z++ {
		for x := 0; x < xSize; x++ {
			previousSpan := RC_NULL_SPAN
			previousWasWalkable := false
			previousArea := uint8(RC_NULL_AREA)

			for i := heightfield.Head(x, z); i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
				span := &heightfield.Spans[i]
				walkable := span.Area != RC_NULL_AREA
				// If current span is not walkable, but there is walkable
				// span just below it, mark the span above it walkable too.
				if !walkable && previousWasWalkable {
					if common.Abs(int(span.Smax)-int(heightfield.Spans[previousSpan].Smax)) <= walkableClimb {
						span.Area = previousArea
					}
				}
				// Copy walkable flag so that it cannot propagate
				// past multiple non-walkable objects.
				previousWasWalkable = walkable
				previousArea = span.Area
				previousSpan = i
			}
		}
	}
	return nil
}

// / Marks spans that are ledges as not-walkable.
// /
// / A ledge is a span with one or more neighbors whose maximum is further away than @p walkableClimb
// / from the current span's maximum.
// / This method removes the impact of the overestimation of conservative voxelization
// / so the resulting mesh will not have regions hanging in the air over ledges.
// /
// / Neighbours outside the grid, and empty neighbour columns, count as a drop
// / of walkableClimb+1, so spans on the map border are always ledges.
// /
// / A span is a ledge if: <tt>rcAbs(currentSpan.smax - neighborSpan.smax) > walkableClimb</tt>
func RcFilterLedgeSpans(walkableHeight int, walkableClimb int, heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	xSize := heightfield.Width
	zSize := heightfield.Height
	missingDrop := -(walkableClimb + 1)

	// Mark border spans.
	for z := 0; z < zSize; z++ {
		for x := 0; x < xSize; x++ {
			for i := heightfield.Head(x, z); i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
				span := &heightfield.Spans[i]
				// Skip non walkable spans.
				if span.Area == RC_NULL_AREA {
					continue
				}

				bot, top := heightfield.SpanTop(i)

				// Find neighbours minimum height.
				minNeighborHeight := RC_SPAN_MAX_HEIGHT

				// Min and max height of accessible neighbours.
				accessibleNeighborMinHeight := bot
				accessibleNeighborMaxHeight := bot

				for direction := 0; direction < 4; direction++ {
					dx := x + common.GetDirOffsetX(direction)
					dz := z + common.GetDirOffsetZ(direction)
					// Neighbours which are out of bounds, or hold no spans, are an automatic ledge.
					if !heightfield.InBounds(dx, dz) || heightfield.Head(dx, dz) == RC_NULL_SPAN {
						minNeighborHeight = min(minNeighborHeight, missingDrop)
						continue
					}

					// From minus infinity to the first span.
					neighborSpan := heightfield.Head(dx, dz)
					neighborBot := -walkableClimb
					neighborTop := int(heightfield.Spans[neighborSpan].Smin)
					// Skip neighbour if the gap between the spans is too small.
					if min(top, neighborTop)-max(bot, neighborBot) >= walkableHeight {
						minNeighborHeight = min(minNeighborHeight, neighborBot-bot)
					}

					// Rest of the spans.
					for ; neighborSpan != RC_NULL_SPAN; neighborSpan = heightfield.Spans[neighborSpan].Next {
						neighborBot, neighborTop = heightfield.SpanTop(neighborSpan)
						// Skip neighbour if the gap between the spans is too small.
						if min(top, neighborTop)-max(bot, neighborBot) >= walkableHeight {
							minNeighborHeight = min(minNeighborHeight, neighborBot-bot)

							// Find min/max accessible neighbour height.
							if common.Abs(neighborBot-bot) <= walkableClimb {
								accessibleNeighborMinHeight = min(accessibleNeighborMinHeight, neighborBot)
								accessibleNeighborMaxHeight = max(accessibleNeighborMaxHeight, neighborBot)
							}
						}
					}
				}

				// The current span is close to a ledge if the drop to any
				// neighbour span is less than the walkableClimb.
				if minNeighborHeight < -walkableClimb {
					span.Area = RC_NULL_AREA
				} else if accessibleNeighborMaxHeight-accessibleNeighborMinHeight > walkableClimb {
					// If the difference between all neighbours is too large,
					// we are at steep slope, mark the span as ledge.
					span.Area = RC_NULL_AREA
				}
			}
		}
	}
	return nil
}

// / Marks walkable spans as not walkable if the clearance above the span is less than the specified walkableHeight.
// /
// / For this filter, the clearance above the span is the distance from the span's
// / maximum to the minimum of the next higher span in the same column.
// / If there is no higher span in the column, the clearance is computed as the
// / distance from the top of the span to the maximum heightfield height.
func RcFilterWalkableLowHeightSpans(walkableHeight int, heightfield *RcHeightfield) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	// Remove walkable flag from spans which do not have enough
	// space above them for the agent to stand there.
	for _, head := range heightfield.Columns {
		for i := head; i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
			bot, top := heightfield.SpanTop(i)
			if top-bot <= walkableHeight {
				heightfield.Spans[i].Area = RC_NULL_AREA
			}
		}
	}
	return nil
}
