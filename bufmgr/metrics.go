// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package bufmgr

import (
	"github.com/cockroachdb/crlib/crhumanize"
	"github.com/cockroachdb/redact"
)

// Metrics is a point-in-time snapshot of manager counters. Pins and
// allocation counts are cumulative for the process run.
type Metrics struct {
	// Pins is the total number of pins acquired.
	Pins int64
	// TransientAllocs is the number of transient block allocations, per
	// memory tag.
	TransientAllocs [numMemoryTags]int64
	// TransientBytes is the number of bytes currently held by transient
	// blocks.
	TransientBytes int64
	// DiskReads and DiskWrites count blocks moved through the Store.
	DiskReads  int64
	DiskWrites int64
	// FreedBlocks counts disk block ids released back to the free list.
	FreedBlocks int64
}

// Metrics returns a snapshot of the manager's counters.
func (m *Manager) Metrics() Metrics {
	var mm Metrics
	mm.Pins = m.metrics.pins.Load()
	for i := range mm.TransientAllocs {
		mm.TransientAllocs[i] = m.metrics.allocsByTag[i].Load()
	}
	mm.TransientBytes = m.metrics.transientBytes.Load()
	mm.DiskReads = m.metrics.diskReads.Load()
	mm.DiskWrites = m.metrics.diskWrites.Load()
	mm.FreedBlocks = m.metrics.freedBlocks.Load()
	return mm
}

// String implements fmt.Stringer.
func (mm Metrics) String() string {
	return redact.StringWithoutMarkers(mm)
}

// SafeFormat implements redact.SafeFormatter.
func (mm Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	var allocs int64
	for _, n := range mm.TransientAllocs {
		allocs += n
	}
	w.Printf("pins: %s  transient: %s (%s)  disk: %s read, %s written  freed: %s",
		crhumanize.Count(mm.Pins, crhumanize.Compact),
		crhumanize.Count(allocs, crhumanize.Compact),
		crhumanize.Bytes(mm.TransientBytes, crhumanize.Compact, crhumanize.OmitI),
		crhumanize.Count(mm.DiskReads, crhumanize.Compact),
		crhumanize.Count(mm.DiskWrites, crhumanize.Compact),
		crhumanize.Count(mm.FreedBlocks, crhumanize.Compact))
}
