// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package bufmgr

import (
	"sync/atomic"

	"github.com/quartzdb/quartz/internal/base"
	"github.com/quartzdb/quartz/internal/invariants"
)

// refcnt provides an atomic reference count.
type refcnt int32

// init initializes the reference count to the specified value.
func (v *refcnt) init(val int32) {
	*v = refcnt(val)
}

func (v *refcnt) refs() int32 {
	return atomic.LoadInt32((*int32)(v))
}

func (v *refcnt) acquire() {
	atomic.AddInt32((*int32)(v), 1)
}

func (v *refcnt) release() bool {
	n := atomic.AddInt32((*int32)(v), -1)
	if n < 0 {
		panic(base.AssertionFailedf("bufmgr: released handle with %d refs", n))
	}
	return n == 0
}

// BlockHandle is a ref-counted descriptor of a single block. The manager
// holds one reference for as long as the block is present in its table;
// every Pin holds another. The underlying buffer stays addressable until the
// last reference is released.
//
// A BlockHandle models shared ownership of the block, not mutual exclusion:
// callers must not mutate a block's bytes while another goroutine may hold a
// read-only view into them.
type BlockHandle struct {
	id   base.BlockID
	buf  []byte
	refs refcnt
	mgr  *Manager
}

// BlockID returns the block's id.
func (h *BlockHandle) BlockID() base.BlockID {
	return h.id
}

// Ref acquires an additional reference. Callers that cache a BlockHandle
// beyond the scope of a Pin (segment states caching overflow block handles)
// must hold a reference of their own and Unref it when done.
func (h *BlockHandle) Ref() {
	h.refs.acquire()
}

// Unref releases a reference acquired with Ref.
func (h *BlockHandle) Unref() {
	if h.refs.release() {
		h.mgr.freeBuffer(h)
	}
}

// Pin is an addressable view of a pinned block. The view is valid until
// Close is called; the pin guarantees the block stays resident, nothing
// more.
type Pin struct {
	handle *BlockHandle
	closer invariants.CloseChecker
}

// Valid returns true if the pin references a block.
func (p *Pin) Valid() bool {
	return p.handle != nil
}

// BlockID returns the pinned block's id.
func (p *Pin) BlockID() base.BlockID {
	return p.handle.id
}

// Handle returns the pinned block's handle. The handle is only guaranteed to
// remain valid while the pin is open; callers that retain it must Ref it.
func (p *Pin) Handle() *BlockHandle {
	return p.handle
}

// Data returns the block's bytes. The returned slice aliases the block
// buffer and is invalidated by Close.
func (p *Pin) Data() []byte {
	return p.handle.buf
}

// Close releases the pin. The Pin must not be used afterwards.
func (p *Pin) Close() {
	p.closer.Close()
	h := p.handle
	p.handle = nil
	h.Unref()
}
