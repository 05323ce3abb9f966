// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package checkpoint

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/colseg/strseg"
	"github.com/quartzdb/quartz/internal/base"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T, blockSize int) (*bufmgr.Manager, *colseg.ColumnSegment, *strseg.SegmentState) {
	t.Helper()
	mgr := bufmgr.New(bufmgr.Options{BlockSize: blockSize, Store: bufmgr.NewMemStore()})
	funcs, err := colseg.GetFuncs(colseg.CompressionUncompressed, colseg.PhysicalString)
	require.NoError(t, err)
	seg := colseg.NewTransientSegment(mgr, funcs)
	return mgr, seg, strseg.StateOf(seg)
}

func TestWriterSingleBlock(t *testing.T) {
	mgr, seg, state := newTestState(t, 4096)
	defer seg.Close()

	w := NewWriter(mgr, Options{})
	id, off, err := w.WriteString(state, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, base.BlockID(0), id)
	require.Equal(t, int32(0), off)

	id2, off2, err := w.WriteString(state, []byte("world!"))
	require.NoError(t, err)
	require.Equal(t, id, id2)
	require.Equal(t, int32(9), off2)

	require.NoError(t, w.Flush())
	require.Equal(t, []base.BlockID{0}, state.OnDiskBlocks())

	h, err := mgr.GetBlock(0)
	require.NoError(t, err)
	pin := mgr.Pin(h)
	defer pin.Close()
	data := pin.Data()
	require.Equal(t, uint32(5), binary.LittleEndian.Uint32(data[0:]))
	require.Equal(t, []byte("hello"), data[4:9])
	require.Equal(t, uint32(6), binary.LittleEndian.Uint32(data[9:]))
	require.Equal(t, []byte("world!"), data[13:19])
}

func TestWriterSpillsAcrossBlocks(t *testing.T) {
	blockSize := 4096
	mgr, seg, state := newTestState(t, blockSize)
	defer seg.Close()

	// 10000 bytes never fit in one 4096-byte page: 4084 bytes follow the
	// length field in the first page (8 trailer bytes are reserved), then
	// 4088 in the second and the remaining 1828 in the third.
	value := []byte(strings.Repeat("s", 10000))
	w := NewWriter(mgr, Options{})
	id, off, err := w.WriteString(state, value)
	require.NoError(t, err)
	require.Equal(t, base.BlockID(0), id)
	require.Equal(t, int32(0), off)
	require.NoError(t, w.Flush())
	require.Equal(t, []base.BlockID{0, 1, 2}, state.OnDiskBlocks())

	// The first page's trailer names the second page, and so on.
	readBlock := func(id base.BlockID) []byte {
		p := make([]byte, blockSize)
		h, err := mgr.GetBlock(id)
		require.NoError(t, err)
		pin := mgr.Pin(h)
		defer pin.Close()
		copy(p, pin.Data())
		return p
	}
	b0 := readBlock(0)
	require.Equal(t, uint32(10000), binary.LittleEndian.Uint32(b0[0:]))
	require.Equal(t, uint64(1), binary.LittleEndian.Uint64(b0[blockSize-8:]))
	b1 := readBlock(1)
	require.Equal(t, uint64(2), binary.LittleEndian.Uint64(b1[blockSize-8:]))
	b2 := readBlock(2)

	var got []byte
	got = append(got, b0[4:blockSize-8]...)
	got = append(got, b1[:blockSize-8]...)
	got = append(got, b2[:10000-4084-4088]...)
	require.Equal(t, value, got)
}

func TestWriterStartsNewBlockNearCapacity(t *testing.T) {
	blockSize := 4096
	mgr, seg, state := newTestState(t, blockSize)
	defer seg.Close()

	w := NewWriter(mgr, Options{})
	// Fill the first block to within 8 bytes of its string space; the next
	// record must start a fresh block rather than split its length field.
	_, _, err := w.WriteString(state, make([]byte, blockSize-8-4-2))
	require.NoError(t, err)
	id, off, err := w.WriteString(state, []byte("next"))
	require.NoError(t, err)
	require.Equal(t, base.BlockID(1), id)
	require.Equal(t, int32(0), off)
	require.NoError(t, w.Flush())
	require.Equal(t, []base.BlockID{0, 1}, state.OnDiskBlocks())
	require.Equal(t, int64(2), mgr.Metrics().DiskWrites)
}

func TestWriterFlushEmpty(t *testing.T) {
	mgr, seg, _ := newTestState(t, 4096)
	defer seg.Close()

	w := NewWriter(mgr, Options{})
	require.NoError(t, w.Flush())
	require.Equal(t, int64(0), mgr.Metrics().DiskWrites)
}
