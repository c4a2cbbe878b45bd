// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blockstore reads and writes fixed-size blocks of a block device or
// a regular file.
//
// A Store yields its blocks sequentially through Next, starting at the block
// chosen with SeekToBlock, and writes blocks back at arbitrary indexes with
// WriteBlock. Reads and writes are positional, so a read-ahead goroutine may
// call Next while another goroutine calls WriteBlock.
package blockstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ethersphere/blocksync/pkg/fault"
	"github.com/spf13/afero"
)

// StdinPath names the standard input as an unsized, read-only source.
const StdinPath = "-"

// readAheadBlocks is the number of blocks hinted to the kernel after a read.
const readAheadBlocks = 4

var (
	// ErrEndOfBlocks is returned by Next when no more blocks are available.
	ErrEndOfBlocks = errors.New("end of blocks")
	ErrReadOnly    = errors.New("store is read-only")
	ErrNotSeekable = errors.New("sequential source cannot seek backwards")
)

// Mode is the access mode of a Store.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

func (m Mode) String() string {
	if m == ReadWrite {
		return "read-write"
	}
	return "read-only"
}

// Options configure how a Store is opened.
type Options struct {
	BlockSize int64
	Mode      Mode
	// DryRun downgrades ReadWrite to ReadOnly and turns writes into no-ops.
	DryRun bool
	// Create makes a missing object, sized to CreateSize.
	Create     bool
	CreateSize int64
	// NoCache asks the kernel to drop each block from the page cache once
	// it has been read.
	NoCache bool
}

// Store is an open storage object addressed in blocks.
type Store struct {
	mu        sync.Mutex
	path      string
	file      afero.File // nil for sequential sources
	stream    io.Reader
	closer    io.Closer
	size      int64
	blockSize int64
	next      uint64
	readOnly  bool
	dryRun    bool
	noCache   bool
	created   bool
	written   bool
}

// Open opens path on fs. The object size is discovered by seeking to its end,
// which also works for block devices whose stat size is zero.
func Open(fs afero.Fs, path string, o Options) (*Store, error) {
	if o.BlockSize <= 0 {
		return nil, fault.Configf("block size must be positive, got %d", o.BlockSize)
	}
	if o.DryRun {
		o.Mode = ReadOnly
	}
	if path == StdinPath {
		if o.Mode == ReadWrite {
			return nil, fault.Access("open stdin", ErrReadOnly)
		}
		return OpenReader(os.Stdin, path, o), nil
	}

	s := &Store{
		path:      path,
		blockSize: o.BlockSize,
		readOnly:  o.Mode == ReadOnly,
		dryRun:    o.DryRun,
		noCache:   o.NoCache,
	}

	if _, err := fs.Stat(path); err != nil {
		if !os.IsNotExist(err) || !o.Create {
			return nil, fault.Access("open "+path, err)
		}
		if o.DryRun {
			// a real run would find a zero filled object of CreateSize
			s.stream = io.LimitReader(zeroReader{}, o.CreateSize)
			s.size = o.CreateSize
			s.created = true
			return s, nil
		}
		if err := create(fs, path, o.CreateSize); err != nil {
			return nil, fault.Access("create "+path, err)
		}
		s.created = true
	}

	flag := os.O_RDONLY
	if !s.readOnly {
		flag = os.O_RDWR
	}
	f, err := fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fault.Access("open "+path, err)
	}
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, fault.Access("size "+path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fault.Access("rewind "+path, err)
	}
	s.file = f
	s.closer = f
	s.size = size
	return s, nil
}

// OpenReader wraps a sequential reader as an unsized, read-only Store.
func OpenReader(r io.Reader, name string, o Options) *Store {
	return &Store{
		path:      name,
		stream:    r,
		blockSize: o.BlockSize,
		readOnly:  true,
		dryRun:    o.DryRun,
	}
}

func create(fs afero.Fs, path string, size int64) error {
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Path returns the identifier the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Size returns the size of the object in bytes. Sequential sources report 0.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// BlockSize returns the block size in bytes.
func (s *Store) BlockSize() int64 {
	return s.blockSize
}

// NumBlocks returns the number of blocks of the object, the last one
// possibly short.
func (s *Store) NumBlocks() uint64 {
	size := s.Size()
	return uint64((size + s.blockSize - 1) / s.blockSize)
}

// Created reports whether Open created the object.
func (s *Store) Created() bool {
	return s.created
}

// ReadOnly reports whether writes are refused or, under dry-run, dropped.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// SeekToBlock positions the sequence so that the next call to Next returns
// block index.
func (s *Store) SeekToBlock(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		s.next = index
		return nil
	}
	if index < s.next {
		return fault.Access(fmt.Sprintf("seek %s to block %d", s.path, index), ErrNotSeekable)
	}
	skip := int64(index-s.next) * s.blockSize
	n, err := io.CopyN(io.Discard, s.stream, skip)
	s.next += uint64(n / s.blockSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return fault.Access(fmt.Sprintf("seek %s to block %d", s.path, index), err)
	}
	if err == nil {
		s.next = index
	}
	return nil
}

// Next returns the next block, exactly BlockSize bytes except possibly the
// last one. ErrEndOfBlocks is returned once zero bytes are left.
func (s *Store) Next() (index uint64, block []byte, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, s.blockSize)
	index = s.next
	var n int
	if s.file != nil {
		off := int64(index) * s.blockSize
		n, err = s.file.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return index, nil, fault.Access(fmt.Sprintf("read %s block %d", s.path, index), err)
		}
		if n > 0 {
			if s.noCache {
				adviseDontNeed(s.file, off, int64(n))
			}
			adviseWillNeed(s.file, off+int64(n), readAheadBlocks*s.blockSize)
		}
	} else {
		n, err = io.ReadFull(s.stream, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return index, nil, fault.Access(fmt.Sprintf("read %s block %d", s.path, index), err)
		}
	}
	if n == 0 {
		return index, nil, ErrEndOfBlocks
	}
	s.next++
	return index, buf[:n], nil
}

// WriteBlock writes b at the offset of block index. Under dry-run it does
// nothing and always succeeds.
func (s *Store) WriteBlock(index uint64, b []byte) error {
	if s.dryRun {
		return nil
	}
	if s.readOnly || s.file == nil {
		return fault.Access("write "+s.path, ErrReadOnly)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	off := int64(index) * s.blockSize
	if _, err := s.file.WriteAt(b, off); err != nil {
		return fault.Access(fmt.Sprintf("write %s block %d", s.path, index), err)
	}
	if end := off + int64(len(b)); end > s.size {
		s.size = end
	}
	s.written = true
	if s.noCache {
		adviseDontNeed(s.file, off, int64(len(b)))
	}
	return nil
}

// Truncate changes the size of the object. It is used to extend a freshly
// created sink once the size of its source is known.
func (s *Store) Truncate(size int64) error {
	if s.dryRun {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.created && s.file == nil && s.next == 0 {
			s.stream = io.LimitReader(zeroReader{}, size)
		}
		s.size = size
		return nil
	}
	if s.readOnly || s.file == nil {
		return fault.Access("truncate "+s.path, ErrReadOnly)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.file.Truncate(size); err != nil {
		return fault.Access("truncate "+s.path, err)
	}
	s.size = size
	return nil
}

// Close flushes written blocks to stable storage and releases the object.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closer == nil {
		return nil
	}
	var err error
	if s.written {
		if serr := s.file.Sync(); serr != nil {
			err = fault.Access("sync "+s.path, serr)
		}
	}
	if cerr := s.closer.Close(); cerr != nil && err == nil {
		err = fault.Access("close "+s.path, cerr)
	}
	s.closer = nil
	return err
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
