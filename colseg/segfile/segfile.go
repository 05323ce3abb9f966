// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

// Package segfile persists one string column segment as a single file.
//
// # Layout
//
//	[header: magic, version, block size]
//	[block region: disk blocks 0..n at headerSize + id*blockSize]
//	[segment metadata record (may be empty)]
//	[fixed-size footer: magic, version, geometry, xxhash64 checksum]
//
// The block region holds the checkpoint-written overflow blocks followed by
// the segment's primary block; the footer records which block is primary.
// Saving re-encodes the source segment through the checkpoint overflow
// writer, so in-memory overflow chains become disk-chained pages.
package segfile

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/quartzdb/quartz/bufmgr"
	"github.com/quartzdb/quartz/colseg"
	"github.com/quartzdb/quartz/colseg/checkpoint"
	"github.com/quartzdb/quartz/colseg/strseg"
	"github.com/quartzdb/quartz/internal/base"
)

const (
	magic   = 0x71747A5F73656731 // "qtz_seg1"
	version = 1

	headerSize = 16
	footerSize = 64
)

// File is the subset of *os.File segfile needs.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// NewManager creates a block manager whose disk blocks live in f's block
// region.
func NewManager(f File, blockSize int) *bufmgr.Manager {
	return bufmgr.New(bufmgr.Options{
		BlockSize: blockSize,
		Store:     bufmgr.NewFileStore(f, blockSize, headerSize),
	})
}

// SaveOptions configures Save.
type SaveOptions struct {
	// WriteLatency is forwarded to the checkpoint overflow writer.
	WriteLatency prometheus.Histogram
}

// Save persists the segment into f. The segment's manager must have been
// created by NewManager on the same file. The source segment is left
// untouched; its rows are re-encoded into a fresh segment whose overflow
// strings go to disk through the checkpoint writer.
func Save(f File, src *colseg.ColumnSegment, opts SaveOptions) (err error) {
	mgr := src.Manager()
	funcs := src.Funcs()

	// Decode every source row. Values may alias source pins, so the scan
	// state and vector stay open until the re-append below is done.
	rows := colseg.NewStringVector(src.Count())
	defer rows.Close()
	scanState := funcs.InitScan(src)
	defer scanState.Close()
	if err := funcs.Scan(src, scanState, 0, src.Count(), rows); err != nil {
		return err
	}

	dst := colseg.NewTransientSegment(mgr, funcs)
	defer dst.Close()
	w := checkpoint.NewWriter(mgr, checkpoint.Options{WriteLatency: opts.WriteLatency})
	strseg.StateOf(dst).SetOverflowWriter(w)

	n, err := funcs.Append(dst, rows, 0, src.Count())
	if err != nil {
		return err
	}
	if n != src.Count() {
		return base.AssertionFailedf("segfile: re-appended %d of %d rows", n, src.Count())
	}
	segmentSize := funcs.FinalizeAppend(dst)
	if err := w.Flush(); err != nil {
		return err
	}

	// The primary block goes after the overflow blocks.
	primaryID := mgr.AllocDiskBlock()
	pin := mgr.Pin(dst.Block())
	err = mgr.WriteBlock(primaryID, pin.Data()[:mgr.BlockSize()])
	pin.Close()
	if err != nil {
		return err
	}

	meta := funcs.SerializeState(dst)
	metaOffset := int64(headerSize) + (int64(primaryID)+1)*int64(mgr.BlockSize())
	if len(meta) > 0 {
		if _, err := f.WriteAt(meta, metaOffset); err != nil {
			return errors.Wrap(err, "segfile: writing metadata record")
		}
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:], magic)
	binary.LittleEndian.PutUint32(header[8:], version)
	binary.LittleEndian.PutUint32(header[12:], uint32(mgr.BlockSize()))
	if _, err := f.WriteAt(header[:], 0); err != nil {
		return errors.Wrap(err, "segfile: writing header")
	}

	footer := encodeFooter(fileFooter{
		blockSize:   mgr.BlockSize(),
		count:       dst.Count(),
		segmentSize: segmentSize,
		primaryID:   primaryID,
		metaOffset:  metaOffset,
		metaLen:     len(meta),
	})
	if _, err := f.WriteAt(footer[:], metaOffset+int64(len(meta))); err != nil {
		return errors.Wrap(err, "segfile: writing footer")
	}
	return nil
}

// Open loads the segment persisted in f; size is the file's total length.
// The returned segment reads its blocks lazily through a manager backed by
// f.
func Open(f File, size int64) (*bufmgr.Manager, *colseg.ColumnSegment, error) {
	ft, err := readFooter(f, size)
	if err != nil {
		return nil, nil, err
	}
	var meta []byte
	if ft.metaLen > 0 {
		meta = make([]byte, ft.metaLen)
		if _, err := f.ReadAt(meta, ft.metaOffset); err != nil {
			return nil, nil, errors.Wrap(err, "segfile: reading metadata record")
		}
	}
	funcs, err := colseg.GetFuncs(colseg.CompressionUncompressed, colseg.PhysicalString)
	if err != nil {
		return nil, nil, err
	}
	mgr := NewManager(f, ft.blockSize)
	seg, err := colseg.OpenPersistentSegment(mgr, funcs, ft.primaryID, ft.count, ft.segmentSize, meta)
	if err != nil {
		return nil, nil, err
	}
	return mgr, seg, nil
}

type fileFooter struct {
	blockSize   int
	count       int
	segmentSize int
	primaryID   base.BlockID
	metaOffset  int64
	metaLen     int
}

func encodeFooter(ft fileFooter) [footerSize]byte {
	var b [footerSize]byte
	binary.LittleEndian.PutUint64(b[0:], magic)
	binary.LittleEndian.PutUint32(b[8:], version)
	binary.LittleEndian.PutUint32(b[12:], uint32(ft.blockSize))
	binary.LittleEndian.PutUint64(b[16:], uint64(ft.count))
	binary.LittleEndian.PutUint64(b[24:], uint64(ft.segmentSize))
	binary.LittleEndian.PutUint64(b[32:], uint64(ft.primaryID))
	binary.LittleEndian.PutUint64(b[40:], uint64(ft.metaOffset))
	binary.LittleEndian.PutUint32(b[48:], uint32(ft.metaLen))
	sum := xxhash.Sum64(b[:footerSize-8])
	binary.LittleEndian.PutUint64(b[footerSize-8:], sum)
	return b
}

func readFooter(f File, size int64) (fileFooter, error) {
	if size < headerSize+footerSize {
		return fileFooter{}, base.CorruptionErrorf("segfile: file too short (%d bytes)", size)
	}
	var b [footerSize]byte
	if _, err := f.ReadAt(b[:], size-footerSize); err != nil {
		return fileFooter{}, errors.Wrap(err, "segfile: reading footer")
	}
	want := binary.LittleEndian.Uint64(b[footerSize-8:])
	if got := xxhash.Sum64(b[:footerSize-8]); got != want {
		return fileFooter{}, base.CorruptionErrorf("segfile: footer checksum mismatch (got %x, want %x)", got, want)
	}
	if m := binary.LittleEndian.Uint64(b[0:]); m != magic {
		return fileFooter{}, base.CorruptionErrorf("segfile: bad magic %x", m)
	}
	if v := binary.LittleEndian.Uint32(b[8:]); v != version {
		return fileFooter{}, base.CorruptionErrorf("segfile: unsupported version %d", v)
	}
	ft := fileFooter{
		blockSize:   int(binary.LittleEndian.Uint32(b[12:])),
		count:       int(binary.LittleEndian.Uint64(b[16:])),
		segmentSize: int(binary.LittleEndian.Uint64(b[24:])),
		primaryID:   base.BlockID(binary.LittleEndian.Uint64(b[32:])),
		metaOffset:  int64(binary.LittleEndian.Uint64(b[40:])),
		metaLen:     int(binary.LittleEndian.Uint32(b[48:])),
	}
	if ft.blockSize <= 0 {
		return fileFooter{}, base.CorruptionErrorf("segfile: bad block size %d", ft.blockSize)
	}
	return ft, nil
}
