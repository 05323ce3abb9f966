// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package colseg

import (
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/internal/base"
)

// StringVector is a batch of string values surfaced to or consumed from the
// query engine. Decoded values may alias pinned block buffers; the vector
// retains those pins and releases them on Close, bounding every aliasing
// value's validity by the lifetime of its owning pin.
type StringVector struct {
	values [][]byte
	nulls  []bool
	// pins are buffer pins whose lifetimes bound values aliasing into
	// pinned blocks.
	pins []bufmgr.Pin
	// owned holds buffers allocated for values that could not alias a pin
	// (assembled multi-block overflow strings below the scratch-buffer
	// threshold).
	owned [][]byte
}

// NewStringVector creates a vector with capacity for n rows.
func NewStringVector(n int) *StringVector {
	return &StringVector{
		values: make([][]byte, n),
		nulls:  make([]bool, n),
	}
}

// Len returns the vector's row capacity.
func (v *StringVector) Len() int {
	return len(v.values)
}

// Set stores a value. The vector does not copy; the caller guarantees b
// outlives the vector or is covered by a retained pin.
func (v *StringVector) Set(i int, b []byte) {
	v.values[i] = b
	v.nulls[i] = false
}

// SetNull marks a row null.
func (v *StringVector) SetNull(i int) {
	v.values[i] = nil
	v.nulls[i] = true
}

// Value returns the i'th value. The returned slice must not be used after
// the vector is closed.
func (v *StringVector) Value(i int) []byte {
	return v.values[i]
}

// IsNull returns true if the i'th row is null.
func (v *StringVector) IsNull(i int) bool {
	return v.nulls[i]
}

// AllocBytes allocates an n-byte buffer owned by the vector, stores it as
// the i'th value and returns it for the caller to fill.
func (v *StringVector) AllocBytes(i, n int) []byte {
	b := make([]byte, n)
	v.owned = append(v.owned, b)
	v.values[i] = b
	v.nulls[i] = false
	return b
}

// AddPin transfers ownership of a pin to the vector. The pin is released
// when the vector is closed.
func (v *StringVector) AddPin(p bufmgr.Pin) {
	if !p.Valid() {
		panic(base.AssertionFailedf("colseg: adding invalid pin to vector"))
	}
	v.pins = append(v.pins, p)
}

// Close releases the vector's pins. Values that aliased pinned buffers are
// invalid afterwards.
func (v *StringVector) Close() {
	for i := range v.pins {
		v.pins[i].Close()
	}
	v.pins = v.pins[:0]
	v.owned = nil
}
