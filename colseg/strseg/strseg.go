// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package strseg implements the uncompressed string encoding for column
// segments.
//
// # Layout
//
// The primary block holds, in order: an 8-byte dictionary header
// {size uint32, end uint32}, a forward-growing array of one signed 32-bit
// offset per row, an unused gap, and a dictionary payload region growing
// backward from end. An offset's magnitude is the cumulative byte distance
// from end to the end of that row's dictionary slot; its sign encodes the
// slot kind. Positive offsets point at inline string bytes. Negative offsets
// point at a fixed-size overflow marker {block id int64, offset int32}
// naming the block and byte offset where the value's
// [length uint32][bytes...] record lives, either in a transient in-memory
// overflow chain or in checkpoint-written disk blocks chained through a
// trailing next-block pointer at blockSize-8.
//
// A row's decoded length is the difference between its own offset magnitude
// and the previous row's offset magnitude.
package strseg

import (
	"encoding/binary"

	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/internal/base"
)

const (
	// dictionaryHeaderSize is the size of the {size, end} header at the
	// start of the primary block.
	dictionaryHeaderSize = 8
	// bigStringMarkerSize is the size of an overflow marker in the
	// dictionary region: an int64 block id plus an int32 offset.
	bigStringMarkerSize = 12
	// blockTrailerSize is the size of the next-block pointer at the tail of
	// a disk overflow block.
	blockTrailerSize = 8
	// maxStringBlockLimit caps the overflow threshold for large block
	// sizes.
	maxStringBlockLimit = 4096
)

// StringBlockLimit returns the inline-size threshold for the given block
// size: any string of this length or longer is stored via the overflow
// path, never inlined, regardless of available dictionary space.
func StringBlockLimit(blockSize int) int {
	return min(blockSize/4, maxStringBlockLimit)
}

// compactionFlushLimit returns the used-bytes threshold at or above which
// FinalizeAppend leaves the segment at full block size rather than
// compacting it.
func compactionFlushLimit(blockSize int) int {
	return blockSize / 5 * 4
}

// DictionaryContainer is the decoded form of the 8-byte header at the start
// of the primary block. End is the byte offset of the upper boundary of the
// dictionary payload region; while the segment is being appended to it
// always equals the segment's logical size. Size is the number of payload
// bytes in [End-Size, End).
type DictionaryContainer struct {
	Size uint32
	End  uint32
}

// SetDictionary writes the dictionary header. The caller must hold a pin on
// the segment's primary block.
func SetDictionary(seg *colseg.ColumnSegment, pin *bufmgr.Pin, dict DictionaryContainer) {
	data := pin.Data()
	binary.LittleEndian.PutUint32(data[0:], dict.Size)
	binary.LittleEndian.PutUint32(data[4:], dict.End)
}

// GetDictionary reads the dictionary header. The caller must hold a pin on
// the segment's primary block. The header is not bounds-checked beyond its
// fixed size: a corrupt header can only result from a logic bug, and decode
// paths treat inconsistencies as fatal assertions.
func GetDictionary(seg *colseg.ColumnSegment, pin *bufmgr.Pin) DictionaryContainer {
	data := pin.Data()
	return DictionaryContainer{
		Size: binary.LittleEndian.Uint32(data[0:]),
		End:  binary.LittleEndian.Uint32(data[4:]),
	}
}

// GetDictionaryEnd reads only the header's end field.
func GetDictionaryEnd(seg *colseg.ColumnSegment, pin *bufmgr.Pin) uint32 {
	return binary.LittleEndian.Uint32(pin.Data()[4:])
}

// RemainingSpace returns the number of dictionary bytes still available:
// the segment size minus the header, the offset array and the dictionary
// payload.
func RemainingSpace(seg *colseg.ColumnSegment, pin *bufmgr.Pin) int {
	dict := GetDictionary(seg, pin)
	if int(dict.End) != seg.SegmentSize() {
		panic(base.AssertionFailedf("strseg: dictionary end %d != segment size %d", dict.End, seg.SegmentSize()))
	}
	used := int(dict.Size) + seg.Count()*4 + dictionaryHeaderSize
	if used > seg.SegmentSize() {
		panic(base.AssertionFailedf("strseg: used space %d exceeds segment size %d", used, seg.SegmentSize()))
	}
	return seg.SegmentSize() - used
}

// offsetAt reads the i'th entry of the signed offset array.
func offsetAt(data []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint32(data[dictionaryHeaderSize+4*i:]))
}

// setOffsetAt writes the i'th entry of the signed offset array.
func setOffsetAt(data []byte, i int, v int32) {
	binary.LittleEndian.PutUint32(data[dictionaryHeaderSize+4*i:], uint32(v))
}

// absOffset returns an offset's magnitude as a dictionary distance.
func absOffset(v int32) uint32 {
	if v < 0 {
		return uint32(-v)
	}
	return uint32(v)
}

// writeStringMarker encodes an overflow marker at target.
func writeStringMarker(target []byte, blockID base.BlockID, offset int32) {
	binary.LittleEndian.PutUint64(target[0:], uint64(blockID))
	binary.LittleEndian.PutUint32(target[8:], uint32(offset))
}

// readStringMarker decodes an overflow marker at target.
func readStringMarker(target []byte) (base.BlockID, int32) {
	blockID := base.BlockID(binary.LittleEndian.Uint64(target[0:]))
	offset := int32(binary.LittleEndian.Uint32(target[8:]))
	return blockID, offset
}

// GetFunction returns the compression entry points for the uncompressed
// string encoding.
func GetFunction() *colseg.CompressionFuncs {
	return &colseg.CompressionFuncs{
		Type:             colseg.CompressionUncompressed,
		PhysicalType:     colseg.PhysicalString,
		InitAnalyze:      initAnalyze,
		Analyze:          analyze,
		FinalAnalyze:     finalAnalyze,
		InitSegment:      initSegment,
		Append:           appendStrings,
		FinalizeAppend:   finalizeAppend,
		InitScan:         initScan,
		Scan:             scan,
		ScanPartial:      scanPartial,
		Select:           selectRows,
		FetchRow:         fetchRow,
		SerializeState:   serializeState,
		DeserializeState: deserializeState,
		CleanupState:     cleanupState,
		InitPrefetch:     initPrefetch,
	}
}

func init() {
	colseg.Register(GetFunction())
}
