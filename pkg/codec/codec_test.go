// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package codec_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/ethersphere/blocksync/pkg/codec"
	"github.com/ethersphere/blocksync/pkg/fault"
)

const blockSize = 4096

func randomBlock(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.New(rand.NewSource(int64(n))).Read(b); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	inputs := map[string][]byte{
		"empty":      {},
		"zero block": make([]byte, blockSize),
		"text":       bytes.Repeat([]byte("AAAABBBBCCCC"), 100),
		"random":     randomBlock(t, blockSize),
		"short":      []byte("x"),
	}
	for _, name := range codec.Names() {
		c, err := codec.New(name)
		if err != nil {
			t.Fatal(err)
		}
		for in, b := range inputs {
			t.Run(name+"/"+in, func(t *testing.T) {
				compressed, err := c.Compress(b)
				if err != nil {
					t.Fatal(err)
				}
				got, err := c.Decompress(compressed, blockSize)
				if err != nil {
					t.Fatal(err)
				}
				if !bytes.Equal(got, b) {
					t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(b))
				}
				if len(compressed) > codec.MaxCompressedLen(len(b)) {
					t.Fatalf("compressed %d bytes to %d, above bound", len(b), len(compressed))
				}
			})
		}
	}
}

func TestCompressesZeroBlock(t *testing.T) {
	for _, name := range codec.Names() {
		if name == codec.None {
			continue
		}
		c, err := codec.New(name)
		if err != nil {
			t.Fatal(err)
		}
		compressed, err := c.Compress(make([]byte, blockSize))
		if err != nil {
			t.Fatal(err)
		}
		if len(compressed) >= blockSize {
			t.Errorf("%s: zero block compressed to %d bytes", name, len(compressed))
		}
	}
}

func TestTruncatedInput(t *testing.T) {
	b := randomBlock(t, blockSize)
	for _, name := range codec.Names() {
		if name == codec.None {
			continue
		}
		t.Run(name, func(t *testing.T) {
			c, err := codec.New(name)
			if err != nil {
				t.Fatal(err)
			}
			compressed, err := c.Compress(b)
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.Decompress(compressed[:len(compressed)/2], blockSize)
			if !errors.Is(err, fault.ErrCodec) {
				t.Fatalf("got %v, want codec error", err)
			}
		})
	}
}

func TestLimit(t *testing.T) {
	b := bytes.Repeat([]byte{7}, 2*blockSize)
	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			c, err := codec.New(name)
			if err != nil {
				t.Fatal(err)
			}
			compressed, err := c.Compress(b)
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.Decompress(compressed, blockSize)
			if !errors.Is(err, fault.ErrCodec) || !errors.Is(err, codec.ErrTooLarge) {
				t.Fatalf("got %v, want too large codec error", err)
			}
		})
	}
}

func TestUnknownCodec(t *testing.T) {
	if _, err := codec.New("lzma"); !errors.Is(err, fault.ErrConfig) {
		t.Fatalf("got %v, want config error", err)
	}
	c, err := codec.New("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name() != codec.None {
		t.Fatalf("got %s, want %s", c.Name(), codec.None)
	}
}
