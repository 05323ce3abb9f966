// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package colseg

import (
	"github.com/cockroachdb/swiss"
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/internal/base"
)

// ScanState holds the resources of an in-progress scan: a pin on the
// segment's primary block, acquired once at InitScan and reused for every
// Scan/ScanPartial/Select call against the segment.
type ScanState struct {
	pin bufmgr.Pin
}

// NewScanState pins the segment's primary block.
func NewScanState(seg *ColumnSegment) *ScanState {
	return &ScanState{pin: seg.Manager().Pin(seg.Block())}
}

// Pin returns the primary block pin.
func (s *ScanState) Pin() *bufmgr.Pin {
	return &s.pin
}

// Close releases the scan's pin.
func (s *ScanState) Close() {
	s.pin.Close()
}

// FetchState caches pins across point fetches in one batch, keyed by block
// id, so repeated fetches into the same block avoid redundant pin overhead.
type FetchState struct {
	pins swiss.Map[base.BlockID, *bufmgr.Pin]
}

// NewFetchState creates an empty FetchState.
func NewFetchState() *FetchState {
	s := &FetchState{}
	s.pins.Init(4)
	return s
}

// GetOrInsertPin returns the cached pin for the block, pinning it on first
// access.
func (s *FetchState) GetOrInsertPin(mgr *bufmgr.Manager, h *bufmgr.BlockHandle) *bufmgr.Pin {
	if p, ok := s.pins.Get(h.BlockID()); ok {
		return p
	}
	p := new(bufmgr.Pin)
	*p = mgr.Pin(h)
	s.pins.Put(h.BlockID(), p)
	return p
}

// Close releases all cached pins.
func (s *FetchState) Close() {
	s.pins.All(func(_ base.BlockID, p *bufmgr.Pin) bool {
		p.Close()
		return true
	})
	s.pins.Init(4)
}

// PrefetchState accumulates the blocks a scan will touch so an I/O scheduler
// above this layer can issue reads ahead of the scan.
type PrefetchState struct {
	blocks []base.BlockID
}

// AddBlock registers a block.
func (s *PrefetchState) AddBlock(id base.BlockID) {
	s.blocks = append(s.blocks, id)
}

// Blocks returns the registered blocks in registration order.
func (s *PrefetchState) Blocks() []base.BlockID {
	return s.blocks
}
