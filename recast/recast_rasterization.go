package recast

import (
	"fmt"
	"math"

	"github.com/gorustyt/voxelmask/common"
)

// / Check whether two bounding boxes overlap
// /
// / @param[in]	aMin	Min axis extents of bounding box A
// / @param[in]	aMax	Max axis extents of bounding box A
// / @param[in]	bMin	Min axis extents of bounding box B
// / @param[in]	bMax	Max axis extents of bounding box B
// / @returns true if the two bounding boxes overlap.  False otherwise.
func overlapBounds(aMin, aMax, bMin, bMax []float32) bool {
	return aMin[0] <= bMax[0] && aMax[0] >= bMin[0] &&
		aMin[1] <= bMax[1] && aMax[1] >= bMin[1] &&
		aMin[2] <= bMax[2] && aMax[2] >= bMin[2]
}

// /	Rasterize a single triangle to the heightfield.
// /
// / @param[in] 	v0					Triangle vertex 0
// / @param[in] 	v1					Triangle vertex 1
// / @param[in] 	v2					Triangle vertex 2
// / @param[in] 	areaID				The area ID to assign to the rasterized spans
// / @param[in] 	mask				The auxiliary mask to assign to the rasterized spans
// / @param[in] 	heightfield			Heightfield to rasterize into
// / @param[in] 	flagMergeThreshold	The threshold in which area flags will be merged
func rasterizeTri(v0, v1, v2 []float32,
	areaID uint8, mask uint16, heightfield *RcHeightfield,
	inverseCellSize, inverseCellHeight float32,
	flagMergeThreshold int) {
	heightfieldBBMin := heightfield.Bmin[:]
	heightfieldBBMax := heightfield.Bmax[:]
	cellSize := heightfield.Cs

	// Calculate the bounding box of the triangle.
	triBBMin := make([]float32, 3)
	copy(triBBMin, v0)
	common.Vmin(triBBMin, v1)
	common.Vmin(triBBMin, v2)

	triBBMax := make([]float32, 3)
	copy(triBBMax, v0)
	common.Vmax(triBBMax, v1)
	common.Vmax(triBBMax, v2)

	// If the triangle does not touch the bounding box of the heightfield, skip the triangle.
	if !overlapBounds(triBBMin, triBBMax, heightfieldBBMin, heightfieldBBMax) {
		return
	}

	w := heightfield.Width
	h := heightfield.Height
	by := heightfieldBBMax[1] - heightfieldBBMin[1]

	// Calculate the footprint of the triangle on the grid's z-axis
	z0 := int((triBBMin[2] - heightfieldBBMin[2]) * inverseCellSize)
	z1 := int((triBBMax[2] - heightfieldBBMin[2]) * inverseCellSize)

	// use -1 rather than 0 to cut the polygon properly at the start of the tile
	z0 = common.Clamp(z0, -1, h-1)
	z1 = common.Clamp(z1, 0, h-1)

	// Clip the triangle into all grid cells it touches.
	buf := make([]float32, 7*3*4)
	in := buf
	inRow := buf[7*3:]
	p1 := inRow[7*3:]
	p2 := p1[7*3:]

	copy(in[0:], v0)
	copy(in[1*3:], v1)
	copy(in[2*3:], v2)
	var nvRow int
	nvIn := 3

	for z := z0; z <= z1; z++ {
		// Clip polygon to row. Store the remaining polygon as well
		cellZ := heightfieldBBMin[2] + float32(z)*cellSize
		dividePoly(in, nvIn, inRow, &nvRow, p1, &nvIn, cellZ+cellSize, RC_AXIS_Z)
		in, p1 = p1, in

		if nvRow < 3 {
			continue
		}
		if z < 0 {
			continue
		}

		// find X-axis bounds of the row
		minX := inRow[0]
		maxX := inRow[0]
		for vert := 1; vert < nvRow; vert++ {
			minX = min(minX, inRow[vert*3])
			maxX = max(maxX, inRow[vert*3])
		}
		x0 := int((minX - heightfieldBBMin[0]) * inverseCellSize)
		x1 := int((maxX - heightfieldBBMin[0]) * inverseCellSize)
		if x1 < 0 || x0 >= w {
			continue
		}
		x0 = common.Clamp(x0, -1, w-1)
		x1 = common.Clamp(x1, 0, w-1)

		var nv int
		nv2 := nvRow

		for x := x0; x <= x1; x++ {
			// Clip polygon to column. store the remaining polygon as well
			cx := heightfieldBBMin[0] + float32(x)*cellSize
			dividePoly(inRow, nv2, p1, &nv, p2, &nv2, cx+cellSize, RC_AXIS_X)
			inRow, p2 = p2, inRow

			if nv < 3 {
				continue
			}
			if x < 0 {
				continue
			}

			// Calculate min and max of the span.
			spanMin := p1[1]
			spanMax := p1[1]
			for vert := 1; vert < nv; vert++ {
				spanMin = min(spanMin, p1[vert*3+1])
				spanMax = max(spanMax, p1[vert*3+1])
			}
			spanMin -= heightfieldBBMin[1]
			spanMax -= heightfieldBBMin[1]

			// Skip the span if it's completely outside the heightfield bounding box
			if spanMax < 0.0 {
				continue
			}
			if spanMin > by {
				continue
			}

			// Clamp the span to the heightfield bounding box.
			spanMin = max(spanMin, 0)
			spanMax = min(spanMax, by)

			// Snap the span to the heightfield height grid.
			spanMinCellIndex := common.Clamp(int(math.Floor(float64(spanMin*inverseCellHeight))), 0, RC_SPAN_MAX_HEIGHT)
			spanMaxCellIndex := common.Clamp(int(math.Ceil(float64(spanMax*inverseCellHeight))), spanMinCellIndex+1, RC_SPAN_MAX_HEIGHT)
			if spanMinCellIndex >= spanMaxCellIndex {
				continue
			}

			addSpan(heightfield, x, z, uint16(spanMinCellIndex), uint16(spanMaxCellIndex), areaID, mask, flagMergeThreshold)
		}
	}
}

// / Rasterizes an indexed triangle mesh into the specified heightfield.
// /
// / @param[in]		verts				The vertices. [(x, y, z) * nv]
// / @param[in]		tris				The triangle indices. [(vertA, vertB, vertC) * nt]
// / @param[in]		triAreaIDs			The area id's of the triangles. [Limit: <= #RC_WALKABLE_AREA] [Size: numTris]
// / @param[in]		triMasks			The auxiliary masks of the triangles, or nil. [Size: numTris]
// / @param[in,out]	heightfield			An initialized heightfield.
// / @param[in]		flagMergeThreshold	The distance where the walkable flag is favored over the non-walkable flag.
func RcRasterizeTriangles(verts []float32, tris []int32, triAreaIDs []uint8, triMasks []uint16,
	heightfield *RcHeightfield, flagMergeThreshold int) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	numVerts := int32(len(verts) / 3)
	numTris := len(tris) / 3
	if len(triAreaIDs) < numTris {
		return fmt.Errorf("rcRasterizeTriangles: %d area ids for %d triangles", len(triAreaIDs), numTris)
	}

	inverseCellSize := 1.0 / heightfield.Cs
	inverseCellHeight := 1.0 / heightfield.Ch
	for triIndex := 0; triIndex < numTris; triIndex++ {
		tri := common.GetVert3(tris, triIndex)
		if tri[0] < 0 || tri[1] < 0 || tri[2] < 0 || tri[0] >= numVerts || tri[1] >= numVerts || tri[2] >= numVerts {
			return fmt.Errorf("rcRasterizeTriangles: triangle %d references vertex outside [0,%d)", triIndex, numVerts)
		}
		var mask uint16
		if triMasks != nil {
			mask = triMasks[triIndex]
		}
		rasterizeTri(common.GetVert3(verts, tri[0]), common.GetVert3(verts, tri[1]), common.GetVert3(verts, tri[2]),
			triAreaIDs[triIndex], mask, heightfield, inverseCellSize, inverseCellHeight, flagMergeThreshold)
	}
	return nil
}

type rcAxis int

const (
	RC_AXIS_X rcAxis = 0
	RC_AXIS_Y rcAxis = 1
	RC_AXIS_Z rcAxis = 2
)

// / Divides a convex polygon of max 12 vertices into two convex polygons
// / across a separating axis.
// /
// / @param[in]	inVerts			The input polygon vertices
// / @param[in]	inVertsCount	The number of input polygon vertices
// / @param[out]	outVerts1		Resulting polygon 1's vertices
// / @param[out]	outVerts1Count	The number of resulting polygon 1 vertices
// / @param[out]	outVerts2		Resulting polygon 2's vertices
// / @param[out]	outVerts2Count	The number of resulting polygon 2 vertices
// / @param[in]	axisOffset		THe offset along the specified axis
// / @param[in]	axis			The separating axis
func dividePoly(inVerts []float32, inVertsCount int,
	outVerts1 []float32, outVerts1Count *int,
	outVerts2 []float32, outVerts2Count *int,
	axisOffset float32, axis rcAxis) {
	// How far positive or negative away from the separating axis is each vertex.
	var inVertAxisDelta [12]float32
	for inVert := 0; inVert < inVertsCount; inVert++ {
		inVertAxisDelta[inVert] = axisOffset - inVerts[inVert*3+int(axis)]
	}

	poly1Vert := 0
	poly2Vert := 0
	inVertA := 0
	inVertB := inVertsCount - 1
	for inVertA < inVertsCount {
		// If the two vertices are on the same side of the separating axis
		sameSide := (inVertAxisDelta[inVertA] >= 0) == (inVertAxisDelta[inVertB] >= 0)

		if !sameSide {
			s := inVertAxisDelta[inVertB] / (inVertAxisDelta[inVertB] - inVertAxisDelta[inVertA])
			outVerts1[poly1Vert*3+0] = inVerts[inVertB*3+0] + (inVerts[inVertA*3+0]-inVerts[inVertB*3+0])*s
			outVerts1[poly1Vert*3+1] = inVerts[inVertB*3+1] + (inVerts[inVertA*3+1]-inVerts[inVertB*3+1])*s
			outVerts1[poly1Vert*3+2] = inVerts[inVertB*3+2] + (inVerts[inVertA*3+2]-inVerts[inVertB*3+2])*s

			copy(common.GetVert3(outVerts2, poly2Vert), common.GetVert3(outVerts1, poly1Vert))
			poly1Vert++
			poly2Vert++

			// add the inVertA point to the right polygon. Do NOT add points that are on the dividing line
			// since these were already added above
			if inVertAxisDelta[inVertA] > 0 {
				copy(common.GetVert3(outVerts1, poly1Vert), common.GetVert3(inVerts, inVertA))
				poly1Vert++
			} else if inVertAxisDelta[inVertA] < 0 {
				copy(common.GetVert3(outVerts2, poly2Vert), common.GetVert3(inVerts, inVertA))
				poly2Vert++
			}
		} else {
			// add the inVertA point to the right polygon. Addition is done even for points on the dividing line
			if inVertAxisDelta[inVertA] >= 0 {
				copy(common.GetVert3(outVerts1, poly1Vert), common.GetVert3(inVerts, inVertA))
				poly1Vert++
				if inVertAxisDelta[inVertA] != 0 {
					inVertB = inVertA
					inVertA++
					continue
				}
			}

			copy(common.GetVert3(outVerts2, poly2Vert), common.GetVert3(inVerts, inVertA))
			poly2Vert++
		}
		inVertB = inVertA
		inVertA++
	}

	*outVerts1Count = poly1Vert
	*outVerts2Count = poly2Vert
}

// / Adds a span to the heightfield.  If the new span overlaps existing spans,
// / it will merge the new span with the existing ones.
// /
// / @param[in]	heightfield			Heightfield to add spans to
// / @param[in]	x					The new span's column cell x index
// / @param[in]	z					The new span's column cell z index
// / @param[in]	minValue			The new span's minimum cell index
// / @param[in]	maxValue			The new span's maximum cell index
// / @param[in]	areaID				The new span's area type ID
// / @param[in]	mask				The new span's auxiliary mask
// / @param[in]	flagMergeThreshold	How close two spans maximum extents need to be to merge area type IDs
func addSpan(heightfield *RcHeightfield,
	x, z int,
	minValue, maxValue uint16, areaID uint8, mask uint16, flagMergeThreshold int) {
	// Create the new span.
	newSpanIndex := allocSpan(heightfield)
	newSpan := RcSpan{Smin: minValue, Smax: maxValue, Area: areaID, Mask: mask, Next: RC_NULL_SPAN}

	columnIndex := x + z*heightfield.Width
	previousSpan := RC_NULL_SPAN
	currentSpan := heightfield.Columns[columnIndex]

	// Insert the new span, possibly merging it with existing spans.
	for currentSpan != RC_NULL_SPAN {
		current := &heightfield.Spans[currentSpan]
		if current.Smin > newSpan.Smax {
			// Current span is completely after the new span, break.
			break
		}

		if current.Smax < newSpan.Smin {
			// Current span is completely before the new span.  Keep going.
			previousSpan = currentSpan
			currentSpan = current.Next
			continue
		}

		// The new span overlaps with an existing span.  Merge them.
		newSpan.Smin = min(newSpan.Smin, current.Smin)
		newSpan.Smax = max(newSpan.Smax, current.Smax)

		// Merge flags.
		if common.Abs(int(newSpan.Smax)-int(current.Smax)) <= flagMergeThreshold {
			// Higher area ID numbers indicate higher resolution priority.
			newSpan.Area = max(newSpan.Area, current.Area)
			newSpan.Mask |= current.Mask
		}

		// Remove the current span since it's now merged with newSpan.
		// Keep going because there might be other overlapping spans that also need to be merged.
		next := current.Next
		freeSpan(heightfield, currentSpan)
		if previousSpan != RC_NULL_SPAN {
			heightfield.Spans[previousSpan].Next = next
		} else {
			heightfield.Columns[columnIndex] = next
		}
		currentSpan = next
	}

	// Insert new span after prev
	if previousSpan != RC_NULL_SPAN {
		newSpan.Next = heightfield.Spans[previousSpan].Next
		heightfield.Spans[previousSpan].Next = newSpanIndex
	} else {
		// This span should go before the others in the list
		newSpan.Next = heightfield.Columns[columnIndex]
		heightfield.Columns[columnIndex] = newSpanIndex
	}
	heightfield.Spans[newSpanIndex] = newSpan
}

// / Releases the span back to the heightfield arena, so it can be re-used for new spans.
func freeSpan(heightfield *RcHeightfield, span int32) {
	if span == RC_NULL_SPAN {
		return
	}
	// Add the span to the front of the free list.
	heightfield.Spans[span] = RcSpan{Next: heightfield.Freelist}
	heightfield.Freelist = span
}

// / Allocates a new span in the heightfield arena.
// / The arena grows by #RC_SPANS_PER_POOL spans at a time and recycles freed spans.
func allocSpan(heightfield *RcHeightfield) int32 {
	// If necessary, grow the arena and update the freelist.
	if heightfield.Freelist == RC_NULL_SPAN {
		base := int32(len(heightfield.Spans))
		heightfield.Spans = append(heightfield.Spans, make([]RcSpan, RC_SPANS_PER_POOL)...)
		freeList := heightfield.Freelist
		for it := base + RC_SPANS_PER_POOL - 1; it >= base; it-- {
			heightfield.Spans[it].Next = freeList
			freeList = it
		}
		heightfield.Freelist = freeList
	}

	// Pop item from the front of the free list.
	newSpan := heightfield.Freelist
	heightfield.Freelist = heightfield.Spans[newSpan].Next
	return newSpan
}

// / Adds a span to the specified heightfield.
// /
// / The span addition can be set to favor flags. If the span is merged to
// / another span and the new @p spanMax is within @p flagMergeThreshold units
// / from the existing span, the span flags are merged.
func RcAddSpan(heightfield *RcHeightfield,
	x, z int, spanMin, spanMax uint16, areaID uint8, mask uint16, flagMergeThreshold int) error {
	if heightfield == nil {
		return ErrNilHeightfield
	}
	if !heightfield.InBounds(x, z) {
		return fmt.Errorf("rcAddSpan: column (%d,%d) outside %dx%d grid", x, z, heightfield.Width, heightfield.Height)
	}
	if spanMin >= spanMax {
		return fmt.Errorf("rcAddSpan: invalid span [%d,%d)", spanMin, spanMax)
	}
	addSpan(heightfield, x, z, spanMin, spanMax, areaID, mask, flagMergeThreshold)
	return nil
}
