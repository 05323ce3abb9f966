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

// readOverflowString materializes the overflow string whose [length][bytes]
// record starts at offset within the named block, storing it into
// result[resultIdx]. The block id's address space selects the protocol:
// disk blocks may chain across pages through the trailing next-block
// pointer; transient blocks hold the whole record in one chain node.
func readOverflowString(
	seg *colseg.ColumnSegment,
	result *colseg.StringVector,
	resultIdx int,
	blockID base.BlockID,
	offset int32,
) error {
	mgr := seg.Manager()
	state := StateOf(seg)
	blockSize := mgr.BlockSize()

	if !blockID.IsValid() {
		panic(base.AssertionFailedf("strseg: overflow marker names invalid block"))
	}
	if int(offset) >= blockSize {
		panic(base.AssertionFailedf("strseg: overflow offset %d beyond block size %d", offset, blockSize))
	}

	if blockID.AddressSpace() == base.Transient {
		// The record lives in the in-memory overflow chain. A missing node
		// for a marker we wrote is a logic defect, not bad input.
		node, ok := state.overflowBlocks.Get(blockID)
		if !ok {
			panic(base.AssertionFailedf("strseg: no overflow chain node for block %s", blockID))
		}
		pin := mgr.Pin(node.handle)
		data := pin.Data()
		length := binary.LittleEndian.Uint32(data[offset:])
		start := uint32(offset) + 4
		result.Set(resultIdx, data[start:start+length])
		// The value aliases the pinned buffer; the vector keeps the pin.
		result.AddPin(pin)
		return nil
	}

	// Disk address space: pin the first block and read the length header.
	// The marker was read back from persisted bytes, so a block it names
	// that cannot be loaded means the segment is damaged.
	h, err := state.GetHandle(mgr, blockID)
	if err != nil {
		return base.MarkCorruptionError(err)
	}
	pin := mgr.Pin(h)
	data := pin.Data()
	length := int(binary.LittleEndian.Uint32(data[offset:]))
	remaining := length
	off := int(offset) + 4

	// A value of at least one block cannot alias any single page: assemble
	// it in a scratch buffer owned by the result vector. Smaller values are
	// assembled directly into vector-owned bytes.
	var scratch bufmgr.Pin
	var target []byte
	useScratch := length >= blockSize
	if useScratch {
		scratch = mgr.Allocate(bufmgr.TagScratch, length)
		// Scratch buffers are not shared: drop the manager's table entry so
		// the buffer dies with the vector's pin.
		mgr.ReleaseTransient(scratch.Handle())
		target = scratch.Data()[:length]
	} else {
		target = result.AllocBytes(resultIdx, length)
	}

	out := target
	for remaining > 0 {
		toRead := min(remaining, blockSize-blockTrailerSize-off)
		copy(out, data[off:off+toRead])
		remaining -= toRead
		off += toRead
		out = out[toRead:]
		if remaining > 0 {
			// Follow the continuation pointer stored at the page's tail.
			next := base.BlockID(binary.LittleEndian.Uint64(data[off:]))
			h, err = state.GetHandle(mgr, next)
			if err != nil {
				pin.Close()
				if useScratch {
					scratch.Close()
				}
				return base.MarkCorruptionError(err)
			}
			pin.Close()
			pin = mgr.Pin(h)
			data = pin.Data()
			off = 0
		}
	}
	pin.Close()
	if useScratch {
		result.Set(resultIdx, target)
		result.AddPin(scratch)
	}
	return nil
}
