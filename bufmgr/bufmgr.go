// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package bufmgr implements the block/buffer manager underlying column
// segments: fixed-size blocks identified by a BlockID, ref-counted handles,
// explicit pins, transient (memory-only) allocation and a pluggable store
// for disk-backed blocks.
package bufmgr

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/crlib/crbytes"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/quartzdb/quartz/internal/base"
)

// DefaultBlockSize is the block size used when Options.BlockSize is zero.
const DefaultBlockSize = 256 << 10

// MemoryTag describes the purpose of a transient allocation, for metrics and
// leak diagnostics.
type MemoryTag uint8

const (
	// TagColumnData tags primary column segment blocks.
	TagColumnData MemoryTag = iota
	// TagOverflowStrings tags buffers holding overflow string data.
	TagOverflowStrings
	// TagScratch tags short-lived assembly buffers.
	TagScratch

	numMemoryTags
)

// String implements fmt.Stringer.
func (t MemoryTag) String() string {
	switch t {
	case TagColumnData:
		return "column-data"
	case TagOverflowStrings:
		return "overflow-strings"
	case TagScratch:
		return "scratch"
	default:
		return "unknown"
	}
}

// Store persists disk-backed blocks. Implementations must tolerate
// concurrent ReadBlock calls; WriteBlock calls for a given id are never
// concurrent with reads of that id.
type Store interface {
	// ReadBlock reads the block into p. len(p) is the manager's block size.
	ReadBlock(id base.BlockID, p []byte) error
	// WriteBlock persists the block. len(p) is the manager's block size.
	WriteBlock(id base.BlockID, p []byte) error
}

// Options configures a Manager.
type Options struct {
	// BlockSize is the size of every managed block, in bytes. Defaults to
	// DefaultBlockSize.
	BlockSize int
	// Logger defaults to base.DefaultLogger. Its Fatalf is the abort
	// channel for manager misuse (wrong address space, double
	// registration); it must not return.
	Logger base.Logger
	// Store, if set, provides disk-backed block persistence. A Manager
	// without a Store only serves the transient address space.
	Store Store
}

// EnsureDefaults fills in default values for unset fields.
func (o *Options) EnsureDefaults() *Options {
	if o.BlockSize == 0 {
		o.BlockSize = DefaultBlockSize
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// Manager owns a set of blocks: transient blocks allocated for this process
// run, and disk-backed blocks loaded through the Store. All blocks are
// BlockSize bytes except transient blocks explicitly allocated larger (an
// overflow value bigger than one block lives in a single oversized transient
// buffer).
type Manager struct {
	opts Options

	mu struct {
		sync.Mutex
		// blocks maps ids to live handles: loaded disk blocks and all
		// transient blocks. Each entry holds one table reference.
		blocks swiss.Map[base.BlockID, *BlockHandle]
		// nextTransient is the next unused transient id. Transient ids are
		// recycled per process run and never persisted.
		nextTransient base.BlockID
		// nextDisk is the next unused disk block id.
		nextDisk base.BlockID
		// freeDisk holds disk ids released by FreeDiskBlock, reused by
		// AllocDiskBlock before nextDisk is advanced.
		freeDisk []base.BlockID
	}

	metrics struct {
		pins           atomic.Int64
		allocsByTag    [numMemoryTags]atomic.Int64
		transientBytes atomic.Int64
		diskReads      atomic.Int64
		diskWrites     atomic.Int64
		freedBlocks    atomic.Int64
	}
}

// New creates a Manager.
func New(opts Options) *Manager {
	opts.EnsureDefaults()
	m := &Manager{opts: opts}
	m.mu.blocks.Init(16)
	m.mu.nextTransient = base.MaximumBlockID
	return m
}

// BlockSize returns the configured block size.
func (m *Manager) BlockSize() int {
	return m.opts.BlockSize
}

// Logger returns the manager's logger.
func (m *Manager) Logger() base.Logger {
	return m.opts.Logger
}

// Allocate creates a transient block of max(size, BlockSize) bytes and
// returns a pin on it. The block's id is in the transient address space.
// Allocation failure is a fatal resource-exhaustion condition: it panics via
// the Go allocator rather than returning an error.
func (m *Manager) Allocate(tag MemoryTag, size int) Pin {
	allocSize := max(size, m.opts.BlockSize)
	buf := crbytes.AllocAligned(allocSize)

	m.mu.Lock()
	id := m.mu.nextTransient
	m.mu.nextTransient++
	h := &BlockHandle{id: id, buf: buf, mgr: m}
	// One reference for the table, one for the returned pin.
	h.refs.init(2)
	m.mu.blocks.Put(id, h)
	m.mu.Unlock()

	m.metrics.allocsByTag[tag].Add(1)
	m.metrics.transientBytes.Add(int64(allocSize))
	m.metrics.pins.Add(1)
	return Pin{handle: h}
}

// Pin pins the block, guaranteeing residency and addressability until the
// returned Pin is closed.
func (m *Manager) Pin(h *BlockHandle) Pin {
	h.refs.acquire()
	m.metrics.pins.Add(1)
	return Pin{handle: h}
}

// GetBlock returns the handle for a disk-backed block, reading it through
// the Store on first access. The returned handle is owned by the manager's
// table; callers that retain it beyond the current operation must Ref it.
func (m *Manager) GetBlock(id base.BlockID) (*BlockHandle, error) {
	if id.AddressSpace() != base.OnDisk {
		m.opts.Logger.Fatalf("bufmgr: GetBlock on transient block %s", id)
		return nil, nil
	}
	m.mu.Lock()
	if h, ok := m.mu.blocks.Get(id); ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	if m.opts.Store == nil {
		return nil, errors.Errorf("bufmgr: no store configured for disk block %s", id)
	}
	buf := crbytes.AllocAligned(m.opts.BlockSize)
	if err := m.opts.Store.ReadBlock(id, buf); err != nil {
		return nil, errors.Wrapf(err, "bufmgr: reading block %s", id)
	}
	m.metrics.diskReads.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	// Raced with another loader: keep the already-inserted handle.
	if h, ok := m.mu.blocks.Get(id); ok {
		return h, nil
	}
	h := &BlockHandle{id: id, buf: buf, mgr: m}
	h.refs.init(1)
	m.mu.blocks.Put(id, h)
	return h, nil
}

// AddBlock registers an already-populated buffer as a disk-backed block
// without going through the Store. Used when converting a freshly written
// checkpoint block into a resident one.
func (m *Manager) AddBlock(id base.BlockID, buf []byte) *BlockHandle {
	if id.AddressSpace() != base.OnDisk {
		m.opts.Logger.Fatalf("bufmgr: AddBlock with transient id %s", id)
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.mu.blocks.Get(id); ok {
		m.opts.Logger.Fatalf("bufmgr: AddBlock on resident block %s", id)
		return nil
	}
	h := &BlockHandle{id: id, buf: buf, mgr: m}
	h.refs.init(1)
	m.mu.blocks.Put(id, h)
	return h
}

// AllocDiskBlock reserves a disk block id, preferring ids released by
// FreeDiskBlock.
func (m *Manager) AllocDiskBlock() base.BlockID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.mu.freeDisk); n > 0 {
		id := m.mu.freeDisk[n-1]
		m.mu.freeDisk = m.mu.freeDisk[:n-1]
		return id
	}
	id := m.mu.nextDisk
	m.mu.nextDisk++
	return id
}

// WriteBlock persists a disk block through the Store.
func (m *Manager) WriteBlock(id base.BlockID, p []byte) error {
	if m.opts.Store == nil {
		return errors.Errorf("bufmgr: no store configured for disk block %s", id)
	}
	if err := m.opts.Store.WriteBlock(id, p); err != nil {
		return errors.Wrapf(err, "bufmgr: writing block %s", id)
	}
	m.metrics.diskWrites.Add(1)
	return nil
}

// FreeDiskBlock releases a disk block id back to the manager, evicting the
// block if resident. Segment cleanup calls this for every persisted overflow
// block.
func (m *Manager) FreeDiskBlock(id base.BlockID) {
	m.mu.Lock()
	h, ok := m.mu.blocks.Get(id)
	if ok {
		m.mu.blocks.Delete(id)
	}
	m.mu.freeDisk = append(m.mu.freeDisk, id)
	m.mu.Unlock()

	m.metrics.freedBlocks.Add(1)
	if ok {
		// Drop the table's reference; the buffer is freed once outstanding
		// pins close.
		h.Unref()
	}
}

// freeBuffer is invoked when a handle's last reference is released. Transient
// blocks are dropped from the table; disk blocks were already removed by
// FreeDiskBlock or are being evicted.
func (m *Manager) freeBuffer(h *BlockHandle) {
	if h.id.AddressSpace() == base.Transient {
		m.mu.Lock()
		if cur, ok := m.mu.blocks.Get(h.id); ok && cur == h {
			m.mu.blocks.Delete(h.id)
		}
		m.mu.Unlock()
		m.metrics.transientBytes.Add(int64(-len(h.buf)))
	}
	h.buf = nil
}

// ReleaseTransient drops the manager's table reference for a transient
// block. The block stays addressable while pins or caller references remain.
func (m *Manager) ReleaseTransient(h *BlockHandle) {
	if h.id.AddressSpace() != base.Transient {
		m.opts.Logger.Fatalf("bufmgr: ReleaseTransient on disk block %s", h.id)
		return
	}
	m.mu.Lock()
	if cur, ok := m.mu.blocks.Get(h.id); ok && cur == h {
		m.mu.blocks.Delete(h.id)
	}
	m.mu.Unlock()
	h.Unref()
}
