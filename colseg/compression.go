// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package colseg

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/quartzdb/quartz/internal/base"
)

// PhysicalType enumerates the physical types a compression function can
// encode.
type PhysicalType uint8

const (
	// PhysicalString is variable-length binary/text data.
	PhysicalString PhysicalType = iota
)

// String implements fmt.Stringer.
func (t PhysicalType) String() string {
	switch t {
	case PhysicalString:
		return "string"
	default:
		return "unknown"
	}
}

// CompressionType enumerates compression schemes.
type CompressionType uint8

const (
	// CompressionUncompressed stores values verbatim.
	CompressionUncompressed CompressionType = iota
)

// String implements fmt.Stringer.
func (t CompressionType) String() string {
	switch t {
	case CompressionUncompressed:
		return "uncompressed"
	default:
		return "unknown"
	}
}

// AnalyzeState accumulates statistics over candidate input for one
// compression scheme. The concrete type is owned by the scheme.
type AnalyzeState interface{}

// SerializedState is the decoded persisted form of a SegmentState. The
// concrete type is owned by the scheme.
type SerializedState interface{}

// CompressionFuncs wires one compression scheme's entry points for one
// physical type. The driver above this layer (the compression selector and
// the table append/scan machinery) only ever talks to a segment through
// this struct.
type CompressionFuncs struct {
	Type         CompressionType
	PhysicalType PhysicalType

	// InitAnalyze/Analyze/FinalAnalyze feed the compression selector.
	// FinalAnalyze returns the estimated encoded size in bytes; the
	// estimate need not be exact, only monotonic with encoded size.
	InitAnalyze  func(blockSize int) AnalyzeState
	Analyze      func(state AnalyzeState, input *StringVector, count int) bool
	FinalAnalyze func(state AnalyzeState) int

	// InitSegment creates the segment's runtime state. blockID is
	// InvalidBlockID for a fresh in-memory segment; serialized is non-nil
	// when reloading a segment that persisted state.
	InitSegment func(seg *ColumnSegment, blockID base.BlockID, serialized SerializedState) SegmentState

	// Append encodes rows [offset, offset+count) of input into the segment,
	// returning the number of rows actually appended (limited by remaining
	// segment space).
	Append func(seg *ColumnSegment, input *StringVector, offset, count int) (int, error)
	// FinalizeAppend runs once the segment stops accepting rows and returns
	// the segment's final logical size.
	FinalizeAppend func(seg *ColumnSegment) int

	// InitScan/Scan/ScanPartial/Select decode row ranges and selections.
	InitScan    func(seg *ColumnSegment) *ScanState
	Scan        func(seg *ColumnSegment, state *ScanState, startRow, scanCount int, result *StringVector) error
	ScanPartial func(seg *ColumnSegment, state *ScanState, startRow, scanCount int, result *StringVector, resultOffset int) error
	Select      func(seg *ColumnSegment, state *ScanState, startRow int, sel []int, result *StringVector) error

	// FetchRow decodes a single row by id into result[resultIdx].
	FetchRow func(seg *ColumnSegment, state *FetchState, rowID int, result *StringVector, resultIdx int) error

	// SerializeState returns the persisted form of the segment's runtime
	// state, or nil when there is nothing to persist (and therefore no
	// cleanup obligations on reload).
	SerializeState func(seg *ColumnSegment) []byte
	// DeserializeState decodes what SerializeState produced.
	DeserializeState func(data []byte) (SerializedState, error)
	// CleanupState releases persisted resources owned by the segment.
	CleanupState func(seg *ColumnSegment)

	// InitPrefetch registers the blocks a scan of the segment will touch.
	InitPrefetch func(seg *ColumnSegment, prefetch *PrefetchState)
}

type registryKey struct {
	compression CompressionType
	physical    PhysicalType
}

var registry struct {
	mu sync.RWMutex
	m  map[registryKey]*CompressionFuncs
}

// Register wires a compression scheme's entry points into the registry.
// Double registration is a logic defect.
func Register(funcs *CompressionFuncs) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	if registry.m == nil {
		registry.m = make(map[registryKey]*CompressionFuncs)
	}
	k := registryKey{funcs.Type, funcs.PhysicalType}
	if _, ok := registry.m[k]; ok {
		panic(base.AssertionFailedf("colseg: duplicate registration for %s/%s", funcs.Type, funcs.PhysicalType))
	}
	registry.m[k] = funcs
}

// GetFuncs looks up the entry points for a scheme and physical type.
func GetFuncs(compression CompressionType, physical PhysicalType) (*CompressionFuncs, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	f, ok := registry.m[registryKey{compression, physical}]
	if !ok {
		return nil, errors.Errorf("colseg: no compression functions for %s/%s", compression, physical)
	}
	return f, nil
}
