// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package bufmgr

import (
	"fmt"
	"testing"

	"github.com/quartzdb/quartz/internal/base"
	"github.com/stretchr/testify/require"
)

func TestAllocateTransient(t *testing.T) {
	m := New(Options{BlockSize: 4096})

	pin := m.Allocate(TagOverflowStrings, 100)
	require.True(t, pin.Valid())
	require.Equal(t, base.Transient, pin.BlockID().AddressSpace())
	// Allocations are at least one block.
	require.Len(t, pin.Data(), 4096)

	// An oversized allocation keeps its requested size.
	big := m.Allocate(TagOverflowStrings, 10000)
	require.Len(t, big.Data(), 10000)
	require.NotEqual(t, pin.BlockID(), big.BlockID())

	m.ReleaseTransient(pin.Handle())
	m.ReleaseTransient(big.Handle())
	pin.Close()
	big.Close()
}

func TestPinKeepsBlockAddressable(t *testing.T) {
	m := New(Options{BlockSize: 512})

	pin := m.Allocate(TagColumnData, 512)
	h := pin.Handle()
	copy(pin.Data(), "hello")

	second := m.Pin(h)
	// Dropping the first pin and the table reference must not invalidate
	// the second pin.
	m.ReleaseTransient(h)
	pin.Close()
	require.Equal(t, []byte("hello"), second.Data()[:5])
	second.Close()
}

func TestDiskBlockRoundTrip(t *testing.T) {
	store := NewMemStore()
	m := New(Options{BlockSize: 512, Store: store})

	id := m.AllocDiskBlock()
	require.Equal(t, base.OnDisk, id.AddressSpace())
	buf := make([]byte, 512)
	copy(buf, "persisted bytes")
	require.NoError(t, m.WriteBlock(id, buf))

	h, err := m.GetBlock(id)
	require.NoError(t, err)
	pin := m.Pin(h)
	require.Equal(t, []byte("persisted bytes"), pin.Data()[:15])
	pin.Close()

	// A second lookup returns the resident handle.
	h2, err := m.GetBlock(id)
	require.NoError(t, err)
	require.Same(t, h, h2)
}

func TestGetBlockUnknown(t *testing.T) {
	m := New(Options{BlockSize: 512, Store: NewMemStore()})
	_, err := m.GetBlock(base.BlockID(42))
	require.Error(t, err)
}

func TestFreeDiskBlockReusesID(t *testing.T) {
	store := NewMemStore()
	m := New(Options{BlockSize: 512, Store: store})

	a := m.AllocDiskBlock()
	b := m.AllocDiskBlock()
	require.NotEqual(t, a, b)

	m.FreeDiskBlock(a)
	c := m.AllocDiskBlock()
	require.Equal(t, a, c)

	d := m.AllocDiskBlock()
	require.Equal(t, base.BlockID(2), d)
}

// panicLogger turns Fatalf into a panic so tests can observe the abort
// without exiting the process.
type panicLogger struct{}

func (panicLogger) Infof(format string, args ...interface{}) {}

func (panicLogger) Fatalf(format string, args ...interface{}) {
	panic(fmt.Errorf("fatal: "+format, args...))
}

func TestLoggerFatalOnMisuse(t *testing.T) {
	m := New(Options{BlockSize: 512, Store: NewMemStore(), Logger: panicLogger{}})

	pin := m.Allocate(TagColumnData, 512)
	require.Panics(t, func() { _, _ = m.GetBlock(pin.BlockID()) })
	require.Panics(t, func() { m.AddBlock(pin.BlockID(), make([]byte, 512)) })

	id := m.AllocDiskBlock()
	require.NoError(t, m.WriteBlock(id, make([]byte, 512)))
	h, err := m.GetBlock(id)
	require.NoError(t, err)
	require.Panics(t, func() { m.AddBlock(id, make([]byte, 512)) })
	require.Panics(t, func() { m.ReleaseTransient(h) })

	// The aborted calls must not have corrupted the manager: the handles
	// are still addressable and release cleanly.
	m.ReleaseTransient(pin.Handle())
	pin.Close()
	require.Equal(t, int64(0), m.Metrics().TransientBytes)
}

func TestMetrics(t *testing.T) {
	m := New(Options{BlockSize: 512, Store: NewMemStore()})

	pin := m.Allocate(TagOverflowStrings, 512)
	mm := m.Metrics()
	require.Equal(t, int64(1), mm.TransientAllocs[TagOverflowStrings])
	require.Equal(t, int64(1), mm.Pins)
	require.Equal(t, int64(512), mm.TransientBytes)

	m.ReleaseTransient(pin.Handle())
	pin.Close()
	mm = m.Metrics()
	require.Equal(t, int64(0), mm.TransientBytes)

	id := m.AllocDiskBlock()
	require.NoError(t, m.WriteBlock(id, make([]byte, 512)))
	_, err := m.GetBlock(id)
	require.NoError(t, err)
	mm = m.Metrics()
	require.Equal(t, int64(1), mm.DiskWrites)
	require.Equal(t, int64(1), mm.DiskReads)

	// The metrics snapshot formats without panicking.
	require.NotEmpty(t, mm.String())
}
