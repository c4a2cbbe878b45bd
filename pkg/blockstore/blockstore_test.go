// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockstore_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ethersphere/blocksync/pkg/blockstore"
	"github.com/ethersphere/blocksync/pkg/fault"
	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		if err := afero.WriteFile(fs, name, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return fs
}

func readAll(t *testing.T, s *blockstore.Store) []string {
	t.Helper()
	var blocks []string
	for {
		_, b, err := s.Next()
		if errors.Is(err, blockstore.ErrEndOfBlocks) {
			return blocks
		}
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, string(b))
	}
}

func TestNext(t *testing.T) {
	fs := newFs(t, map[string]string{"/disk": "AAAABBBBCCCCDD"})
	s, err := blockstore.Open(fs, "/disk", blockstore.Options{BlockSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Size() != 14 {
		t.Fatalf("got size %d, want 14", s.Size())
	}
	if s.NumBlocks() != 4 {
		t.Fatalf("got %d blocks, want 4", s.NumBlocks())
	}
	if diff := cmp.Diff([]string{"AAAA", "BBBB", "CCCC", "DD"}, readAll(t, s)); diff != "" {
		t.Fatalf("blocks mismatch (-want +have):\n%s", diff)
	}
	// the sequence stays at its end
	if _, _, err := s.Next(); !errors.Is(err, blockstore.ErrEndOfBlocks) {
		t.Fatalf("got %v, want end of blocks", err)
	}
}

func TestSeekToBlock(t *testing.T) {
	fs := newFs(t, map[string]string{"/disk": "AAAABBBBCCCC"})
	s, err := blockstore.Open(fs, "/disk", blockstore.Options{BlockSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.SeekToBlock(1); err != nil {
		t.Fatal(err)
	}
	index, b, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if index != 1 || string(b) != "BBBB" {
		t.Fatalf("got block %d %q, want 1 BBBB", index, b)
	}
}

func TestWriteBlock(t *testing.T) {
	fs := newFs(t, map[string]string{"/disk": "AAAAXXXXCCCC"})
	s, err := blockstore.Open(fs, "/disk", blockstore.Options{BlockSize: 4, Mode: blockstore.ReadWrite})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBlock(1, []byte("BBBB")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := afero.ReadFile(fs, "/disk")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "AAAABBBBCCCC" {
		t.Fatalf("got %q", got)
	}
}

func TestWriteReadOnly(t *testing.T) {
	fs := newFs(t, map[string]string{"/disk": "AAAA"})
	s, err := blockstore.Open(fs, "/disk", blockstore.Options{BlockSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	err = s.WriteBlock(0, []byte("BBBB"))
	if !errors.Is(err, fault.ErrAccess) || !errors.Is(err, blockstore.ErrReadOnly) {
		t.Fatalf("got %v, want read-only access error", err)
	}
}

func TestDryRun(t *testing.T) {
	fs := newFs(t, map[string]string{"/disk": "AAAAXXXX"})
	s, err := blockstore.Open(fs, "/disk", blockstore.Options{BlockSize: 4, Mode: blockstore.ReadWrite, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if !s.ReadOnly() {
		t.Fatal("dry-run store is not read-only")
	}
	if err := s.WriteBlock(1, []byte("BBBB")); err != nil {
		t.Fatalf("dry-run write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := afero.ReadFile(fs, "/disk")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "AAAAXXXX" {
		t.Fatalf("dry-run mutated the object: %q", got)
	}
}

func TestOpenMissing(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := blockstore.Open(fs, "/missing", blockstore.Options{BlockSize: 4})
	if !errors.Is(err, fault.ErrAccess) {
		t.Fatalf("got %v, want access error", err)
	}
}

func TestCreate(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := blockstore.Open(fs, "/new", blockstore.Options{
		BlockSize:  4,
		Mode:       blockstore.ReadWrite,
		Create:     true,
		CreateSize: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if !s.Created() {
		t.Fatal("store not reported as created")
	}
	if s.Size() != 10 {
		t.Fatalf("got size %d, want 10", s.Size())
	}
	blocks := readAll(t, s)
	if diff := cmp.Diff([]string{"\x00\x00\x00\x00", "\x00\x00\x00\x00", "\x00\x00"}, blocks); diff != "" {
		t.Fatalf("blocks mismatch (-want +have):\n%s", diff)
	}
}

func TestCreateDryRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := blockstore.Open(fs, "/new", blockstore.Options{
		BlockSize:  4,
		Mode:       blockstore.ReadWrite,
		DryRun:     true,
		Create:     true,
		CreateSize: 8,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if s.Size() != 8 {
		t.Fatalf("got size %d, want 8", s.Size())
	}
	if got := len(readAll(t, s)); got != 2 {
		t.Fatalf("got %d blocks, want 2", got)
	}
	if ok, _ := afero.Exists(fs, "/new"); ok {
		t.Fatal("dry-run created the object")
	}
}

func TestTruncate(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := blockstore.Open(fs, "/new", blockstore.Options{BlockSize: 4, Mode: blockstore.ReadWrite, Create: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Truncate(12); err != nil {
		t.Fatal(err)
	}
	if s.NumBlocks() != 3 {
		t.Fatalf("got %d blocks, want 3", s.NumBlocks())
	}
}

func TestOpenReader(t *testing.T) {
	s := blockstore.OpenReader(strings.NewReader("AAAABBBBCCCCD"), "-", blockstore.Options{BlockSize: 4})
	if s.Size() != 0 {
		t.Fatalf("got size %d, want 0", s.Size())
	}
	if err := s.SeekToBlock(2); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"CCCC", "D"}, readAll(t, s)); diff != "" {
		t.Fatalf("blocks mismatch (-want +have):\n%s", diff)
	}
	if err := s.SeekToBlock(0); !errors.Is(err, blockstore.ErrNotSeekable) {
		t.Fatalf("got %v, want not seekable", err)
	}
}

func TestNoCacheIsBestEffort(t *testing.T) {
	fs := newFs(t, map[string]string{"/disk": string(bytes.Repeat([]byte("A"), 64))})
	s, err := blockstore.Open(fs, "/disk", blockstore.Options{BlockSize: 16, Mode: blockstore.ReadWrite, NoCache: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.WriteBlock(1, bytes.Repeat([]byte("B"), 16)); err != nil {
		t.Fatal(err)
	}
	if got := len(readAll(t, s)); got != 4 {
		t.Fatalf("got %d blocks, want 4", got)
	}
}

func TestInvalidBlockSize(t *testing.T) {
	_, err := blockstore.Open(afero.NewMemMapFs(), "/disk", blockstore.Options{})
	if !errors.Is(err, fault.ErrConfig) {
		t.Fatalf("got %v, want config error", err)
	}
}
