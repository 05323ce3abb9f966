// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package strseg

import (
	"github.com/cockroachdb/swiss"
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/internal/base"
	"github.com/quartzdb/quartz/internal/propenc"
)

// tagOverflowBlocks is the propenc tag of the persisted overflow block id
// list. The key name is stable across versions.
const (
	tagOverflowBlocks = 1
	keyOverflowBlocks = "overflow_blocks"
)

// OverflowWriter writes overflow strings at checkpoint time, instead of the
// default in-memory allocator. Implementations record the disk blocks they
// fill into the state's on-disk block list.
type OverflowWriter interface {
	// WriteString writes the value and returns the block id and byte offset
	// of its [length][bytes] record.
	WriteString(state *SegmentState, value []byte) (base.BlockID, int32, error)
}

// stringBlock is one node of the in-memory overflow chain: a transient
// buffer bump-filled with [length][bytes] records. Nodes are prepended, so
// the chain is ordered most-recently-allocated first.
type stringBlock struct {
	handle *bufmgr.BlockHandle
	// offset is the write cursor; size is the buffer capacity.
	offset int
	size   int
	next   *stringBlock
}

// SegmentState is the runtime state of an uncompressed string segment: the
// in-memory overflow chain, the id→node lookup map for overflow reads, the
// on-disk overflow blocks written at checkpoint time, and the optional
// checkpoint overflow writer.
//
// The chain and its map are mutated only by the single append producer;
// concurrent readers may look up nodes already inserted.
type SegmentState struct {
	head *stringBlock
	// overflowBlocks indexes chain nodes by transient block id.
	overflowBlocks swiss.Map[base.BlockID, *stringBlock]

	// onDiskBlocks lists the persisted overflow blocks, in write order.
	// Populated by the checkpoint writer or restored from persisted state.
	onDiskBlocks []base.BlockID
	// handles caches disk overflow block handles, with one reference each.
	handles swiss.Map[base.BlockID, *bufmgr.BlockHandle]

	overflowWriter OverflowWriter
}

var _ colseg.SegmentState = (*SegmentState)(nil)

func newSegmentState() *SegmentState {
	s := &SegmentState{}
	s.overflowBlocks.Init(4)
	s.handles.Init(4)
	return s
}

// StateOf returns the segment's runtime state, asserting it belongs to this
// encoding.
func StateOf(seg *colseg.ColumnSegment) *SegmentState {
	s, ok := seg.State().(*SegmentState)
	if !ok {
		panic(base.AssertionFailedf("strseg: segment state is %T", seg.State()))
	}
	return s
}

// SetOverflowWriter installs (or clears) the checkpoint-time overflow
// writer. While set, appended overflow strings go to disk instead of the
// in-memory chain.
func (s *SegmentState) SetOverflowWriter(w OverflowWriter) {
	s.overflowWriter = w
}

// OnDiskBlocks returns the persisted overflow block ids in write order.
func (s *SegmentState) OnDiskBlocks() []base.BlockID {
	return s.onDiskBlocks
}

// AddOnDiskBlock records a persisted overflow block. Called by the
// checkpoint writer for every disk block it fills.
func (s *SegmentState) AddOnDiskBlock(id base.BlockID) {
	s.onDiskBlocks = append(s.onDiskBlocks, id)
}

// GetHandle returns the handle of a persisted overflow block, caching it
// (with a reference) on first access.
func (s *SegmentState) GetHandle(mgr *bufmgr.Manager, id base.BlockID) (*bufmgr.BlockHandle, error) {
	if h, ok := s.handles.Get(id); ok {
		return h, nil
	}
	h, err := mgr.GetBlock(id)
	if err != nil {
		return nil, err
	}
	h.Ref()
	s.handles.Put(id, h)
	return h, nil
}

// Cleanup implements colseg.SegmentState, releasing every persisted
// overflow block back to the block manager.
func (s *SegmentState) Cleanup(mgr *bufmgr.Manager) {
	s.releaseHandles(mgr)
	for _, id := range s.onDiskBlocks {
		mgr.FreeDiskBlock(id)
	}
	s.onDiskBlocks = nil
}

// Close implements colseg.SegmentState. The overflow chain is torn down
// iteratively; a long chain must not recurse.
func (s *SegmentState) Close(mgr *bufmgr.Manager) {
	for b := s.head; b != nil; {
		next := b.next
		b.next = nil
		mgr.ReleaseTransient(b.handle)
		b.handle.Unref()
		b.handle = nil
		b = next
	}
	s.head = nil
	s.overflowBlocks.Init(4)
	s.releaseHandles(mgr)
}

func (s *SegmentState) releaseHandles(mgr *bufmgr.Manager) {
	s.handles.All(func(_ base.BlockID, h *bufmgr.BlockHandle) bool {
		h.Unref()
		return true
	})
	s.handles.Init(4)
}

// serializedState is the decoded persisted segment state: just the on-disk
// overflow block list.
type serializedState struct {
	blocks []base.BlockID
}

// initSegment creates the segment's runtime state. A fresh segment
// (blockID == InvalidBlockID) additionally writes an empty dictionary
// header; a reloaded segment restores the persisted overflow block list.
func initSegment(
	seg *colseg.ColumnSegment, blockID base.BlockID, serialized colseg.SerializedState,
) colseg.SegmentState {
	if !blockID.IsValid() {
		pin := seg.Manager().Pin(seg.Block())
		SetDictionary(seg, &pin, DictionaryContainer{
			Size: 0,
			End:  uint32(seg.SegmentSize()),
		})
		pin.Close()
	}
	state := newSegmentState()
	if serialized != nil {
		ss, ok := serialized.(*serializedState)
		if !ok {
			panic(base.AssertionFailedf("strseg: serialized state is %T", serialized))
		}
		state.onDiskBlocks = ss.blocks
	}
	return state
}

// serializeState emits the persisted overflow block list, or nil when the
// segment has no on-disk overflow blocks and therefore no cleanup
// obligations after reload.
func serializeState(seg *colseg.ColumnSegment) []byte {
	state := StateOf(seg)
	if len(state.onDiskBlocks) == 0 {
		return nil
	}
	var w propenc.Writer
	w.BlockIDList(tagOverflowBlocks, keyOverflowBlocks, state.onDiskBlocks)
	return w.Finish()
}

// deserializeState decodes what serializeState produced.
func deserializeState(data []byte) (colseg.SerializedState, error) {
	r, err := propenc.NewReader(data)
	if err != nil {
		return nil, err
	}
	blocks, err := r.BlockIDList(tagOverflowBlocks, keyOverflowBlocks)
	if err != nil {
		return nil, err
	}
	return &serializedState{blocks: blocks}, nil
}

// cleanupState implements the registry's CleanupState entry point.
func cleanupState(seg *colseg.ColumnSegment) {
	StateOf(seg).Cleanup(seg.Manager())
}

// initPrefetch registers the primary block and every persisted overflow
// block.
func initPrefetch(seg *colseg.ColumnSegment, prefetch *colseg.PrefetchState) {
	prefetch.AddBlock(seg.Block().BlockID())
	state := StateOf(seg)
	for _, id := range state.onDiskBlocks {
		prefetch.AddBlock(id)
	}
}
