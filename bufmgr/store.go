// Copyright 2025 The Quartz Authors. All rights reserved. Use of this source
// code is governed by a BSD-style license that can be found in the LICENSE
// file.

package bufmgr

import (
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/quartzdb/quartz/internal/base"
)

// File is the subset of *os.File the FileStore needs.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// FileStore persists blocks in a file: block id i lives at
// baseOffset + i*blockSize. Ids are dense small integers, so freed and
// reused ids overwrite their old slots in place.
type FileStore struct {
	f          File
	blockSize  int
	baseOffset int64
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore. baseOffset is the file offset of block 0.
func NewFileStore(f File, blockSize int, baseOffset int64) *FileStore {
	return &FileStore{f: f, blockSize: blockSize, baseOffset: baseOffset}
}

func (s *FileStore) offset(id base.BlockID) int64 {
	return s.baseOffset + int64(id)*int64(s.blockSize)
}

// ReadBlock implements Store.
func (s *FileStore) ReadBlock(id base.BlockID, p []byte) error {
	if _, err := s.f.ReadAt(p, s.offset(id)); err != nil {
		return errors.Wrapf(err, "filestore: block %s", id)
	}
	return nil
}

// WriteBlock implements Store.
func (s *FileStore) WriteBlock(id base.BlockID, p []byte) error {
	if _, err := s.f.WriteAt(p, s.offset(id)); err != nil {
		return errors.Wrapf(err, "filestore: block %s", id)
	}
	return nil
}

// MemStore keeps persisted blocks in memory. It backs tests and transient
// databases that checkpoint without a durable file.
type MemStore struct {
	mu     sync.Mutex
	blocks map[base.BlockID][]byte
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blocks: make(map[base.BlockID][]byte)}
}

// ReadBlock implements Store.
func (s *MemStore) ReadBlock(id base.BlockID, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return errors.Errorf("memstore: unknown block %s", id)
	}
	copy(p, b)
	return nil
}

// WriteBlock implements Store.
func (s *MemStore) WriteBlock(id base.BlockID, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, len(p))
	copy(b, p)
	s.blocks[id] = b
	return nil
}

// Len returns the number of stored blocks.
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}
