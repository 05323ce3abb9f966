// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package colseg defines the column-segment framework: the segment
// descriptor, the compression-function registry, and the scan/fetch state
// and result-vector types shared by all encodings.
package colseg

import (
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/internal/base"
)

// SegmentState is per-segment runtime state owned by a compression
// function. It is created by InitSegment and torn down either on drop
// (Close) or after checkpoint cleanup released the segment's disk blocks
// (Cleanup followed by Close).
type SegmentState interface {
	// Cleanup releases on-disk resources owned by the state.
	Cleanup(mgr *bufmgr.Manager)
	// Close releases in-memory resources owned by the state.
	Close(mgr *bufmgr.Manager)
}

// ColumnSegment is one fixed-size segment of a column: a primary block
// holding the encoded rows, a row count, and encoding-specific runtime
// state.
type ColumnSegment struct {
	mgr   *bufmgr.Manager
	funcs *CompressionFuncs

	// block is the segment's primary block. The segment holds one reference
	// for its lifetime.
	block *bufmgr.BlockHandle
	// count is the number of rows appended so far.
	count int
	// segmentSize is the segment's logical size in bytes. It starts at the
	// block size and may shrink once, when FinalizeAppend compacts the
	// segment.
	segmentSize int

	state SegmentState
}

// NewTransientSegment creates a fresh, empty segment backed by a transient
// block.
func NewTransientSegment(mgr *bufmgr.Manager, funcs *CompressionFuncs) *ColumnSegment {
	pin := mgr.Allocate(bufmgr.TagColumnData, mgr.BlockSize())
	h := pin.Handle()
	h.Ref()
	pin.Close()

	seg := &ColumnSegment{
		mgr:         mgr,
		funcs:       funcs,
		block:       h,
		segmentSize: mgr.BlockSize(),
	}
	seg.state = funcs.InitSegment(seg, base.InvalidBlockID, nil)
	return seg
}

// OpenPersistentSegment opens a segment whose primary block and overflow
// blocks were persisted. serialized is the raw persisted segment state, or
// nil when none was written.
func OpenPersistentSegment(
	mgr *bufmgr.Manager,
	funcs *CompressionFuncs,
	blockID base.BlockID,
	count int,
	segmentSize int,
	serialized []byte,
) (*ColumnSegment, error) {
	var state SerializedState
	if serialized != nil {
		var err error
		state, err = funcs.DeserializeState(serialized)
		if err != nil {
			return nil, err
		}
	}
	h, err := mgr.GetBlock(blockID)
	if err != nil {
		return nil, err
	}
	h.Ref()
	seg := &ColumnSegment{
		mgr:         mgr,
		funcs:       funcs,
		block:       h,
		count:       count,
		segmentSize: segmentSize,
	}
	seg.state = funcs.InitSegment(seg, blockID, state)
	return seg, nil
}

// Manager returns the segment's block manager.
func (s *ColumnSegment) Manager() *bufmgr.Manager {
	return s.mgr
}

// Funcs returns the segment's compression functions.
func (s *ColumnSegment) Funcs() *CompressionFuncs {
	return s.funcs
}

// Block returns the segment's primary block handle.
func (s *ColumnSegment) Block() *bufmgr.BlockHandle {
	return s.block
}

// Count returns the number of rows in the segment.
func (s *ColumnSegment) Count() int {
	return s.count
}

// SetCount is used by append drivers after accepting rows.
func (s *ColumnSegment) SetCount(n int) {
	s.count = n
}

// SegmentSize returns the segment's logical size in bytes.
func (s *ColumnSegment) SegmentSize() int {
	return s.segmentSize
}

// SetSegmentSize records the post-compaction logical size.
func (s *ColumnSegment) SetSegmentSize(n int) {
	if n > s.segmentSize {
		panic(base.AssertionFailedf("colseg: segment grew from %d to %d bytes", s.segmentSize, n))
	}
	s.segmentSize = n
}

// State returns the segment's runtime state.
func (s *ColumnSegment) State() SegmentState {
	return s.state
}

// Close drops the segment, releasing its primary block and runtime state.
// It does not release persisted overflow blocks; that is Cleanup's job and
// happens only when the segment is being destroyed rather than unloaded.
func (s *ColumnSegment) Close() {
	if s.state != nil {
		s.state.Close(s.mgr)
		s.state = nil
	}
	if s.block != nil {
		if s.block.BlockID().AddressSpace() == base.Transient {
			// Drop the manager table's reference too; transient primary
			// blocks die with their segment.
			s.mgr.ReleaseTransient(s.block)
		}
		s.block.Unref()
		s.block = nil
	}
}

// Cleanup releases the segment's persisted resources. Callers drop the
// segment with Close afterwards.
func (s *ColumnSegment) Cleanup() {
	if s.state != nil {
		s.state.Cleanup(s.mgr)
	}
}
