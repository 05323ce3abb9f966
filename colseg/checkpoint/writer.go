// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package checkpoint converts in-memory overflow strings into persisted
// disk blocks. While a segment is being flushed, its state carries a Writer
// and appended overflow strings go straight to disk-chained pages instead
// of the transient overflow chain.
package checkpoint

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/crlib/crbytes"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg/strseg"
	"github.com/quartzdb/quartz/internal/base"
)

// Options configures a Writer.
type Options struct {
	// WriteLatency, if set, observes the latency of each overflow block
	// write, in seconds.
	WriteLatency prometheus.Histogram
}

// Writer writes overflow strings to disk blocks. Each record is
// [length uint32][bytes...]; a record that does not fit in the current
// block continues in a fresh block, located through a next-block pointer
// stored in the trailing 8 bytes of the page. Filled blocks are written
// through the manager's store as they are completed; Flush writes the final
// partial block.
type Writer struct {
	mgr  *bufmgr.Manager
	opts Options

	// buf is the block being filled; blockID is its reserved disk id, or
	// InvalidBlockID before the first allocation.
	buf     []byte
	blockID base.BlockID
	offset  int
}

var _ strseg.OverflowWriter = (*Writer)(nil)

// NewWriter creates a Writer allocating blocks from mgr.
func NewWriter(mgr *bufmgr.Manager, opts Options) *Writer {
	return &Writer{
		mgr:     mgr,
		opts:    opts,
		buf:     crbytes.AllocAligned(mgr.BlockSize()),
		blockID: base.InvalidBlockID,
	}
}

// stringSpace is the writable prefix of a block: everything except the
// trailing next-block pointer.
func (w *Writer) stringSpace() int {
	return w.mgr.BlockSize() - 8
}

// WriteString implements strseg.OverflowWriter.
func (w *Writer) WriteString(
	state *strseg.SegmentState, value []byte,
) (base.BlockID, int32, error) {
	// Begin a fresh block unless the current one has room for the length
	// field and at least some payload.
	if w.blockID == base.InvalidBlockID || w.offset+8 >= w.stringSpace() {
		if err := w.allocateNewBlock(state); err != nil {
			return base.InvalidBlockID, 0, err
		}
	}
	resultBlock := w.blockID
	resultOffset := int32(w.offset)

	binary.LittleEndian.PutUint32(w.buf[w.offset:], uint32(len(value)))
	w.offset += 4

	remaining := value
	for len(remaining) > 0 {
		toWrite := min(len(remaining), w.stringSpace()-w.offset)
		if toWrite > 0 {
			copy(w.buf[w.offset:], remaining[:toWrite])
			w.offset += toWrite
			remaining = remaining[toWrite:]
		}
		if len(remaining) > 0 {
			// Reserve the continuation block, point the trailer at it, and
			// write the filled block out.
			next := w.mgr.AllocDiskBlock()
			binary.LittleEndian.PutUint64(w.buf[w.stringSpace():], uint64(next))
			if err := w.writeBlock(); err != nil {
				return base.InvalidBlockID, 0, err
			}
			w.startBlock(state, next)
		}
	}
	return resultBlock, resultOffset, nil
}

// allocateNewBlock writes out the current block, if any, and starts a fresh
// one.
func (w *Writer) allocateNewBlock(state *strseg.SegmentState) error {
	if w.blockID != base.InvalidBlockID {
		if err := w.writeBlock(); err != nil {
			return err
		}
	}
	w.startBlock(state, w.mgr.AllocDiskBlock())
	return nil
}

func (w *Writer) startBlock(state *strseg.SegmentState, id base.BlockID) {
	w.blockID = id
	w.offset = 0
	clear(w.buf)
	state.AddOnDiskBlock(id)
}

func (w *Writer) writeBlock() error {
	start := time.Now()
	if err := w.mgr.WriteBlock(w.blockID, w.buf); err != nil {
		return errors.Wrapf(err, "checkpoint: flushing overflow block %s", w.blockID)
	}
	if w.opts.WriteLatency != nil {
		w.opts.WriteLatency.Observe(time.Since(start).Seconds())
	}
	return nil
}

// Flush writes the in-progress partial block, if any. Must be called after
// the last WriteString and before the segment's state is serialized.
func (w *Writer) Flush() error {
	if w.blockID == base.InvalidBlockID {
		return nil
	}
	return w.writeBlock()
}
