// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package strseg

import (
	"encoding/binary"

	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/internal/base"
)

// appendStrings encodes rows [offset, offset+count) of input into the
// segment, returning the number of rows appended before the dictionary ran
// out of space. Null rows occupy an offset entry but no dictionary bytes:
// they repeat the previous offset magnitude (with a positive sign, so they
// decode as zero-length inline slots).
func appendStrings(seg *colseg.ColumnSegment, input *colseg.StringVector, offset, count int) (int, error) {
	mgr := seg.Manager()
	pin := mgr.Pin(seg.Block())
	defer pin.Close()

	data := pin.Data()
	dict := GetDictionary(seg, &pin)
	if int(dict.End) != seg.SegmentSize() {
		panic(base.AssertionFailedf("strseg: dictionary end %d != segment size %d", dict.End, seg.SegmentSize()))
	}
	limit := StringBlockLimit(mgr.BlockSize())

	appended := 0
	for i := 0; i < count; i++ {
		row := seg.Count()
		if input.IsNull(offset + i) {
			if seg.SegmentSize()-(int(dict.Size)+row*4+dictionaryHeaderSize) < 4 {
				break
			}
			var prev int32
			if row > 0 {
				prev = offsetAt(data, row-1)
			}
			setOffsetAt(data, row, int32(absOffset(prev)))
			seg.SetCount(row + 1)
			appended++
			continue
		}

		v := input.Value(offset + i)
		payload := len(v)
		if payload >= limit {
			payload = bigStringMarkerSize
		}
		remaining := seg.SegmentSize() - (int(dict.Size) + row*4 + dictionaryHeaderSize)
		if remaining < payload+4 {
			break
		}

		if len(v) >= limit {
			blockID, blockOffset, err := writeString(seg, v)
			if err != nil {
				SetDictionary(seg, &pin, dict)
				return appended, err
			}
			dict.Size += bigStringMarkerSize
			writeStringMarker(data[dict.End-dict.Size:], blockID, blockOffset)
			setOffsetAt(data, row, -int32(dict.Size))
		} else {
			dict.Size += uint32(len(v))
			copy(data[dict.End-dict.Size:], v)
			setOffsetAt(data, row, int32(dict.Size))
		}
		seg.SetCount(row + 1)
		appended++
	}
	SetDictionary(seg, &pin, dict)
	return appended, nil
}

// writeString stores an overflow string and returns the block id and byte
// offset of its record. During a checkpoint flush the configured overflow
// writer persists the value; otherwise it goes to the in-memory chain.
func writeString(seg *colseg.ColumnSegment, v []byte) (base.BlockID, int32, error) {
	state := StateOf(seg)
	if state.overflowWriter != nil {
		return state.overflowWriter.WriteString(state, v)
	}
	blockID, offset := writeStringMemory(seg, v)
	return blockID, offset, nil
}

// writeStringMemory bump-allocates the value's [length][bytes] record into
// the head of the in-memory overflow chain, growing the chain when the head
// lacks room.
func writeStringMemory(seg *colseg.ColumnSegment, v []byte) (base.BlockID, int32) {
	totalLength := len(v) + 4
	mgr := seg.Manager()
	state := StateOf(seg)

	var pin bufmgr.Pin
	if state.head == nil || state.head.offset+totalLength >= state.head.size {
		// The string does not fit in the current head: allocate a new chain
		// node sized for at least one block and prepend it.
		allocSize := max(totalLength, mgr.BlockSize())
		pin = mgr.Allocate(bufmgr.TagOverflowStrings, allocSize)
		h := pin.Handle()
		h.Ref()
		node := &stringBlock{handle: h, offset: 0, size: allocSize, next: state.head}
		state.overflowBlocks.Put(h.BlockID(), node)
		state.head = node
	} else {
		pin = mgr.Pin(state.head.handle)
	}

	resultBlock := state.head.handle.BlockID()
	resultOffset := int32(state.head.offset)

	data := pin.Data()
	binary.LittleEndian.PutUint32(data[state.head.offset:], uint32(len(v)))
	copy(data[state.head.offset+4:], v)
	state.head.offset += totalLength
	pin.Close()
	return resultBlock, resultOffset
}

// finalizeAppend compacts the segment once it stops accepting rows. If the
// bytes in use reach the compaction flush limit the segment is left at full
// block size; otherwise the dictionary payload is moved down so it
// immediately follows the offset array, and the smaller logical size is
// recorded and returned.
func finalizeAppend(seg *colseg.ColumnSegment) int {
	mgr := seg.Manager()
	pin := mgr.Pin(seg.Block())
	defer pin.Close()

	dict := GetDictionary(seg, &pin)
	if int(dict.End) != seg.SegmentSize() {
		panic(base.AssertionFailedf("strseg: dictionary end %d != segment size %d", dict.End, seg.SegmentSize()))
	}
	offsetSize := dictionaryHeaderSize + seg.Count()*4
	totalSize := offsetSize + int(dict.Size)

	if totalSize >= compactionFlushLimit(mgr.BlockSize()) {
		// The block is full enough; not worth moving the dictionary around.
		return seg.SegmentSize()
	}

	moveAmount := seg.SegmentSize() - totalSize
	data := pin.Data()
	// Source and destination may overlap.
	copy(data[offsetSize:offsetSize+int(dict.Size)], data[int(dict.End)-int(dict.Size):dict.End])
	dict.End -= uint32(moveAmount)
	if int(dict.End) != totalSize {
		panic(base.AssertionFailedf("strseg: compacted dictionary end %d != total size %d", dict.End, totalSize))
	}
	SetDictionary(seg, &pin, dict)
	seg.SetSegmentSize(totalSize)
	return totalSize
}
