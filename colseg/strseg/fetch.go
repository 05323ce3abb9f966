// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package strseg

import (
	"github.com/quartzdb/quartz/colseg"
)

// fetchRow decodes the single row rowID into result[resultIdx]. The primary
// block's pin is cached in the fetch state, so repeated fetches into the
// same segment within one batch pin it once.
func fetchRow(
	seg *colseg.ColumnSegment,
	state *colseg.FetchState,
	rowID int,
	result *colseg.StringVector,
	resultIdx int,
) error {
	pin := state.GetOrInsertPin(seg.Manager(), seg.Block())
	data := pin.Data()
	dictEnd := GetDictionaryEnd(seg, pin)

	dictOffset := offsetAt(data, rowID)
	var length uint32
	if rowID == 0 {
		// The first string in the dictionary: its length is the offset
		// magnitude itself.
		length = absOffset(dictOffset)
	} else {
		length = absOffset(dictOffset) - absOffset(offsetAt(data, rowID-1))
	}
	return fetchStringFromDict(seg, result, resultIdx, data, dictEnd, dictOffset, length)
}
