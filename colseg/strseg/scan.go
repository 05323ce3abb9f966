// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package strseg

import (
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/internal/base"
)

// initScan pins the segment's primary block for the duration of the scan.
func initScan(seg *colseg.ColumnSegment) *colseg.ScanState {
	return colseg.NewScanState(seg)
}

// fetchStringFromDict materializes one row into result[resultIdx] given its
// signed dictionary offset and decoded length. Positive offsets alias the
// dictionary region directly (bounded by the scan or fetch pin); negative
// offsets name a marker that forwards to the overflow path.
func fetchStringFromDict(
	seg *colseg.ColumnSegment,
	result *colseg.StringVector,
	resultIdx int,
	data []byte,
	dictEnd uint32,
	dictOffset int32,
	length uint32,
) error {
	if absOffset(dictOffset) > dictEnd {
		panic(base.AssertionFailedf("strseg: dictionary offset %d beyond end %d", dictOffset, dictEnd))
	}
	if dictOffset >= 0 {
		pos := dictEnd - uint32(dictOffset)
		result.Set(resultIdx, data[pos:pos+length])
		return nil
	}
	pos := dictEnd - uint32(-dictOffset)
	blockID, blockOffset := readStringMarker(data[pos : pos+bigStringMarkerSize])
	return readOverflowString(seg, result, resultIdx, blockID, blockOffset)
}

// scanPartial decodes scanCount rows starting at startRow into result rows
// [resultOffset, resultOffset+scanCount). Inline values alias the scan
// state's pin: they are valid until the scan state is closed.
func scanPartial(
	seg *colseg.ColumnSegment,
	state *colseg.ScanState,
	startRow, scanCount int,
	result *colseg.StringVector,
	resultOffset int,
) error {
	pin := state.Pin()
	data := pin.Data()
	dictEnd := GetDictionaryEnd(seg, pin)

	var previous int32
	if startRow > 0 {
		previous = offsetAt(data, startRow-1)
	}
	for i := 0; i < scanCount; i++ {
		current := offsetAt(data, startRow+i)
		length := absOffset(current) - absOffset(previous)
		if err := fetchStringFromDict(seg, result, resultOffset+i, data, dictEnd, current, length); err != nil {
			return err
		}
		previous = current
	}
	return nil
}

// scan decodes scanCount rows starting at startRow into the front of
// result.
func scan(
	seg *colseg.ColumnSegment, state *colseg.ScanState, startRow, scanCount int, result *colseg.StringVector,
) error {
	return scanPartial(seg, state, startRow, scanCount, result, 0)
}

// selectRows decodes an arbitrary selection of row indices (relative to
// startRow) into result rows [0, len(sel)).
func selectRows(
	seg *colseg.ColumnSegment, state *colseg.ScanState, startRow int, sel []int, result *colseg.StringVector,
) error {
	pin := state.Pin()
	data := pin.Data()
	dictEnd := GetDictionaryEnd(seg, pin)

	for i, s := range sel {
		index := startRow + s
		current := offsetAt(data, index)
		var previous int32
		if index > 0 {
			previous = offsetAt(data, index-1)
		}
		length := absOffset(current) - absOffset(previous)
		if err := fetchStringFromDict(seg, result, i, data, dictEnd, current, length); err != nil {
			return err
		}
	}
	return nil
}
