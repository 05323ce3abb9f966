// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package propenc implements a property-keyed binary encoding for persisted
// metadata records. Each record is a (tag, key, payload) triple; the tag is
// the stable numeric identifier and the key is the stable human-readable
// property name, written to the stream so that a record can be validated
// against the name a reader expects. A record set is terminated by an
// xxhash64 trailer over everything that precedes it.
package propenc

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/quartzdb/quartz/internal/base"
)

// trailerLen is the length of the xxhash64 trailer.
const trailerLen = 8

// Writer accumulates property records into a buffer.
type Writer struct {
	buf []byte
}

func (w *Writer) record(tag uint64, key string) {
	w.buf = binary.AppendUvarint(w.buf, tag)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(key)))
	w.buf = append(w.buf, key...)
}

// BlockIDList writes a property holding an ordered list of block ids.
func (w *Writer) BlockIDList(tag uint64, key string, ids []base.BlockID) {
	w.record(tag, key)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(ids)))
	for _, id := range ids {
		w.buf = binary.AppendUvarint(w.buf, uint64(id))
	}
}

// Finish appends the integrity trailer and returns the encoded record set.
// The Writer must not be reused afterwards.
func (w *Writer) Finish() []byte {
	sum := xxhash.Sum64(w.buf)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, sum)
	return w.buf
}

// Reader decodes a record set produced by Writer.
type Reader struct {
	data []byte
	off  int
}

// NewReader validates the integrity trailer and returns a reader positioned
// at the first record.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < trailerLen {
		return nil, base.CorruptionErrorf("propenc: record set too short (%d bytes)", len(data))
	}
	payload := data[:len(data)-trailerLen]
	want := binary.LittleEndian.Uint64(data[len(data)-trailerLen:])
	if got := xxhash.Sum64(payload); got != want {
		return nil, base.CorruptionErrorf("propenc: checksum mismatch (got %x, want %x)", got, want)
	}
	return &Reader{data: payload}, nil
}

func (r *Reader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, base.CorruptionErrorf("propenc: truncated varint at offset %d", r.off)
	}
	r.off += n
	return v, nil
}

func (r *Reader) record(wantTag uint64, wantKey string) error {
	tag, err := r.uvarint()
	if err != nil {
		return err
	}
	if tag != wantTag {
		return base.CorruptionErrorf("propenc: unexpected tag %d (want %d)", tag, wantTag)
	}
	keyLen, err := r.uvarint()
	if err != nil {
		return err
	}
	if keyLen > uint64(len(r.data)-r.off) {
		return base.CorruptionErrorf("propenc: key length %d overruns record set", keyLen)
	}
	key := string(r.data[r.off : r.off+int(keyLen)])
	r.off += int(keyLen)
	if key != wantKey {
		return base.CorruptionErrorf("propenc: property key %q (want %q)", key, wantKey)
	}
	return nil
}

// BlockIDList reads a property holding an ordered list of block ids. The tag
// and key must match what the writer emitted.
func (r *Reader) BlockIDList(tag uint64, key string) ([]base.BlockID, error) {
	if err := r.record(tag, key); err != nil {
		return nil, err
	}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(r.data)-r.off) {
		// Each id takes at least one byte; a count beyond the remaining
		// bytes cannot be valid.
		return nil, base.CorruptionErrorf("propenc: block id count %d overruns record set", n)
	}
	ids := make([]base.BlockID, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		ids = append(ids, base.BlockID(v))
	}
	return ids, nil
}

// Empty reports whether any records remain.
func (r *Reader) Empty() bool {
	return r.off >= len(r.data)
}
