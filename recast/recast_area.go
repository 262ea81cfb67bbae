package recast

import (
	"github.com/gorustyt/voxelmask/common"
)

const (
	RC_NOT_CONNECTED = 0x3f
)

type rcCompactCell struct {
	index int ///< Index to the first span in the column.
	count int ///< Number of spans in the column.
}

// / Represents a span of unobstructed space within a compact heightfield.
type rcCompactSpan struct {
	y   int ///< The lower extent of the span. (Measured from the heightfield's base.)
	con int ///< Packed neighbor connection data.
	h   int ///< The height of the span.  (Measured from #y.)
}

func rcSetCon(span *rcCompactSpan, direction int, neighborIndex int) {
	shift := direction * 6
	con := span.con
	span.con = (con & ^(0x3f << shift)) | ((neighborIndex & 0x3f) << shift)
}

func rcGetCon(span *rcCompactSpan, direction int) int {
	shift := direction * 6
	return (span.con >> shift) & 0x3f
}

// / A compact, static heightfield representing unobstructed space.
// / Only walkable spans are stored, in column order.
type RcCompactHeightfield struct {
	width          int             ///< The width of the heightfield. (Along the x-axis in cell units.)
	height         int             ///< The height of the heightfield. (Along the z-axis in cell units.)
	spanCount      int             ///< The number of spans in the heightfield.
	walkableHeight int             ///< The walkable height used during the build of the field.
	walkableClimb  int             ///< The walkable climb used during the build of the field.
	cells          []rcCompactCell ///< Array of cells. [Size: #width*#height]
	spans          []rcCompactSpan ///< Array of spans. [Size: #spanCount]
	areas          []uint8         ///< Array containing area id data. [Size: #spanCount]
}

func (chf *RcCompactHeightfield) SpanCount() int {
	return chf.spanCount
}

// / Builds a compact heightfield representing open space, from a heightfield representing solid space.
// /
// / This is just the beginning of the process of fully building a compact heightfield.
// / Various filters may be applied, then the distance field and regions built.
// / E.g: #RcErodeWalkableArea
func RcBuildCompactHeightfield(walkableHeight, walkableClimb int, heightfield *RcHeightfield) (*RcCompactHeightfield, error) {
	if heightfield == nil {
		return nil, ErrNilHeightfield
	}
	xSize := heightfield.Width
	zSize := heightfield.Height
	spanCount := RcGetHeightFieldSpanCount(heightfield, true)

	// Fill in header.
	compactHeightfield := &RcCompactHeightfield{
		width:          xSize,
		height:         zSize,
		spanCount:      spanCount,
		walkableHeight: walkableHeight,
		walkableClimb:  walkableClimb,
		cells:          make([]rcCompactCell, xSize*zSize),
		spans:          make([]rcCompactSpan, spanCount),
		areas:          make([]uint8, spanCount),
	}

	// Fill in cells and spans.
	currentCellIndex := 0
	for columnIndex, head := range heightfield.Columns {
		// If there are no spans at this cell, just leave the data to index=0, count=0.
		if head == RC_NULL_SPAN {
			continue
		}

		cell := &compactHeightfield.cells[columnIndex]
		cell.index = currentCellIndex
		cell.count = 0

		for i := head; i != RC_NULL_SPAN; i = heightfield.Spans[i].Next {
			if heightfield.Spans[i].Area == RC_NULL_AREA {
				continue
			}
			bot, top := heightfield.SpanTop(i)
			compactHeightfield.spans[currentCellIndex].y = common.Clamp(bot, 0, 0xffff)
			compactHeightfield.spans[currentCellIndex].h = common.Clamp(top-bot, 0, 0xff)
			compactHeightfield.areas[currentCellIndex] = heightfield.Spans[i].Area
			currentCellIndex++
			cell.count++
		}
	}

	// Find neighbour connections.
	maxLayers := RC_NOT_CONNECTED - 1
	zStride := xSize // for readability
	for z := 0; z < zSize; z++ {
		for x := 0; x < xSize; x++ {
			cell := compactHeightfield.cells[x+z*zStride]
			for i := cell.index; i < cell.index+cell.count; i++ {
				span := &compactHeightfield.spans[i]

				for dir := 0; dir < 4; dir++ {
					rcSetCon(span, dir, RC_NOT_CONNECTED)
					neighborX := x + common.GetDirOffsetX(dir)
					neighborZ := z + common.GetDirOffsetZ(dir)
					// First check that the neighbour cell is in bounds.
					if neighborX < 0 || neighborZ < 0 || neighborX >= xSize || neighborZ >= zSize {
						continue
					}

					// Iterate over all neighbour spans and check if any of the is
					// accessible from current cell.
					neighborCell := compactHeightfield.cells[neighborX+neighborZ*zStride]
					for k := neighborCell.index; k < neighborCell.index+neighborCell.count; k++ {
						neighborSpan := compactHeightfield.spans[k]
						bot := max(span.y, neighborSpan.y)
						top := min(span.y+span.h, neighborSpan.y+neighborSpan.h)

						// Check that the gap between the spans is walkable,
						// and that the climb height between the gaps is not too high.
						if (top-bot) >= walkableHeight && common.Abs(neighborSpan.y-span.y) <= walkableClimb {
							// Mark direction as walkable.
							layerIndex := k - neighborCell.index
							if layerIndex > maxLayers {
								continue
							}
							rcSetCon(span, dir, layerIndex)
							break
						}
					}
				}
			}
		}
	}
	return compactHeightfield, nil
}

// / Erodes the walkable area within the heightfield by the specified radius.
// /
// / Basically, any spans that are closer to a boundary or obstruction than the specified radius
// / are marked as un-walkable.
// /
// / This method is usually called immediately after the heightfield has been built.
// /
// / @param[in]		erosionRadius		The radius of erosion. [Limits: 0 < value < 255] [Units: vx]
// / @param[in,out]	compactHeightfield	The populated compact heightfield to erode.
func RcErodeWalkableArea(erosionRadius int, compactHeightfield *RcCompactHeightfield) {
	xSize := compactHeightfield.width
	zSize := compactHeightfield.height
	zStride := xSize // For readability

	distanceToBoundary := make([]int, compactHeightfield.spanCount)
	for i := range distanceToBoundary {
		distanceToBoundary[i] = 0xff
	}
	// Mark boundary cells.
	for z := 0; z < zSize; z++ {
		for x := 0; x < xSize; x++ {
			cell := compactHeightfield.cells[x+z*zStride]
			for spanIndex := cell.index; spanIndex < cell.index+cell.count; spanIndex++ {
				if compactHeightfield.areas[spanIndex] == RC_NULL_AREA {
					distanceToBoundary[spanIndex] = 0
					continue
				}
				span := &compactHeightfield.spans[spanIndex]

				// Check that there is a non-null adjacent span in each of the 4 cardinal directions.
				neighborCount := 0
				for direction := 0; direction < 4; direction++ {
					neighborConnection := rcGetCon(span, direction)
					if neighborConnection == RC_NOT_CONNECTED {
						break
					}

					neighborX := x + common.GetDirOffsetX(direction)
					neighborZ := z + common.GetDirOffsetZ(direction)
					neighborSpanIndex := compactHeightfield.cells[neighborX+neighborZ*zStride].index + neighborConnection

					if compactHeightfield.areas[neighborSpanIndex] == RC_NULL_AREA {
						break
					}
					neighborCount++
				}

				// At least one missing neighbour, so this is a boundary cell.
				if neighborCount != 4 {
					distanceToBoundary[spanIndex] = 0
				}
			}
		}
	}

	relax := func(spanIndex, x, z, dir, diagDir int) {
		span := &compactHeightfield.spans[spanIndex]
		if rcGetCon(span, dir) == RC_NOT_CONNECTED {
			return
		}
		aX := x + common.GetDirOffsetX(dir)
		aZ := z + common.GetDirOffsetZ(dir)
		aIndex := compactHeightfield.cells[aX+aZ*zStride].index + rcGetCon(span, dir)
		aSpan := &compactHeightfield.spans[aIndex]
		distanceToBoundary[spanIndex] = min(distanceToBoundary[spanIndex], min(distanceToBoundary[aIndex]+2, 255))

		if rcGetCon(aSpan, diagDir) == RC_NOT_CONNECTED {
			return
		}
		bX := aX + common.GetDirOffsetX(diagDir)
		bZ := aZ + common.GetDirOffsetZ(diagDir)
		bIndex := compactHeightfield.cells[bX+bZ*zStride].index + rcGetCon(aSpan, diagDir)
		distanceToBoundary[spanIndex] = min(distanceToBoundary[spanIndex], min(distanceToBoundary[bIndex]+3, 255))
	}

	// Pass 1
	for z := 0; z < zSize; z++ {
		for x := 0; x < xSize; x++ {
			cell := compactHeightfield.cells[x+z*zStride]
			for spanIndex := cell.index; spanIndex < cell.index+cell.count; spanIndex++ {
				relax(spanIndex, x, z, 0, 3) // (-1,0) then (-1,-1)
				relax(spanIndex, x, z, 3, 2) // (0,-1) then (1,-1)
			}
		}
	}

	// Pass 2
	for z := zSize - 1; z >= 0; z-- {
		for x := xSize - 1; x >= 0; x-- {
			cell := compactHeightfield.cells[x+z*zStride]
			for spanIndex := cell.index; spanIndex < cell.index+cell.count; spanIndex++ {
				relax(spanIndex, x, z, 2, 1) // (1,0) then (1,1)
				relax(spanIndex, x, z, 1, 0) // (0,1) then (-1,1)
			}
		}
	}

	minBoundaryDistance := erosionRadius * 2
	for spanIndex := 0; spanIndex < compactHeightfield.spanCount; spanIndex++ {
		if distanceToBoundary[spanIndex] < minBoundaryDistance {
			compactHeightfield.areas[spanIndex] = RC_NULL_AREA
		}
	}
}

// RcApplyCompactAreas copies the compact areas back onto the walkable spans
// they were built from. The heightfield must not have changed since
// RcBuildCompactHeightfield. Returns the number of spans demoted.
func RcApplyCompactAreas(compactHeightfield *RcCompactHeightfield, heightfield *RcHeightfield) int {
	demoted := 0
	for columnIndex, head := range heightfield.Columns {
		cell := compactHeightfield.cells[columnIndex]
		k := cell.index
		for i := head; i != RC_NULL_SPAN && k < cell.index+cell.count; i = heightfield.Spans[i].Next {
			s := &heightfield.Spans[i]
			if s.Area == RC_NULL_AREA {
				continue
			}
			if compactHeightfield.areas[k] == RC_NULL_AREA {
				demoted++
			}
			s.Area = compactHeightfield.areas[k]
			k++
		}
	}
	return demoted
}
