// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package base

import (
	"github.com/cockroachdb/redact"
)

// BlockID identifies a fixed-size block owned by a block manager. The id
// space is split in two: ids below MaximumBlockID name disk-backed blocks,
// ids at or above it name transient (memory-only) blocks whose ids are
// recycled every process run.
type BlockID int64

// InvalidBlockID is the zero-value-adjacent "no block" sentinel.
const InvalidBlockID BlockID = -1

// MaximumBlockID is the first id in the transient address space. Disk-backed
// block ids are always below it.
const MaximumBlockID BlockID = 1 << 62

// AddressSpace classifies a BlockID as disk-backed or transient. Call sites
// dispatch on this rather than comparing against MaximumBlockID directly.
type AddressSpace uint8

const (
	// OnDisk indicates a block persisted by the block manager's store.
	OnDisk AddressSpace = iota
	// Transient indicates a memory-only block that lives at most one
	// process run.
	Transient
)

// AddressSpace returns the address space the id belongs to.
func (id BlockID) AddressSpace() AddressSpace {
	if id >= MaximumBlockID {
		return Transient
	}
	return OnDisk
}

// IsValid returns true if the id names a block.
func (id BlockID) IsValid() bool {
	return id != InvalidBlockID
}

// String implements fmt.Stringer.
func (id BlockID) String() string {
	return redact.StringWithoutMarkers(id)
}

// SafeFormat implements redact.SafeFormatter.
func (id BlockID) SafeFormat(w redact.SafePrinter, _ rune) {
	if id == InvalidBlockID {
		w.SafeString("B-invalid")
		return
	}
	if id.AddressSpace() == Transient {
		w.Printf("T%d", redact.SafeInt(id-MaximumBlockID))
		return
	}
	w.Printf("B%d", redact.SafeInt(id))
}
