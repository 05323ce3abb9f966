// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package propenc

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/quartzdb/quartz/internal/base"
	"github.com/stretchr/testify/require"
)

func TestBlockIDListRoundTrip(t *testing.T) {
	ids := []base.BlockID{0, 1, 7, 123456}
	var w Writer
	w.BlockIDList(1, "overflow_blocks", ids)
	data := w.Finish()

	r, err := NewReader(data)
	require.NoError(t, err)
	got, err := r.BlockIDList(1, "overflow_blocks")
	require.NoError(t, err)
	require.Equal(t, ids, got)
	require.True(t, r.Empty())
}

func TestEmptyList(t *testing.T) {
	var w Writer
	w.BlockIDList(1, "overflow_blocks", nil)
	data := w.Finish()

	r, err := NewReader(data)
	require.NoError(t, err)
	got, err := r.BlockIDList(1, "overflow_blocks")
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestChecksumMismatch(t *testing.T) {
	var w Writer
	w.BlockIDList(1, "overflow_blocks", []base.BlockID{1, 2, 3})
	data := w.Finish()

	data[0] ^= 0xff
	_, err := NewReader(data)
	require.Error(t, err)
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestKeyMismatch(t *testing.T) {
	var w Writer
	w.BlockIDList(1, "overflow_blocks", []base.BlockID{1})
	data := w.Finish()

	r, err := NewReader(data)
	require.NoError(t, err)
	_, err = r.BlockIDList(1, "other_key")
	require.Error(t, err)
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestTagMismatch(t *testing.T) {
	var w Writer
	w.BlockIDList(2, "overflow_blocks", []base.BlockID{1})
	data := w.Finish()

	r, err := NewReader(data)
	require.NoError(t, err)
	_, err = r.BlockIDList(1, "overflow_blocks")
	require.Error(t, err)
	require.True(t, errors.Is(err, base.ErrCorruption))
}

func TestTruncatedRecordSet(t *testing.T) {
	_, err := NewReader([]byte{1, 2, 3})
	require.Error(t, err)
	require.True(t, errors.Is(err, base.ErrCorruption))
}
