// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package codec provides the payload compressors applied to differing
// blocks while they cross the channel. Digests are never compressed.
package codec

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethersphere/blocksync/pkg/fault"
)

// None is the identity codec name.
const None = "none"

// ErrTooLarge is returned when a payload decompresses past the limit.
var ErrTooLarge = errors.New("decompressed payload exceeds limit")

// Codec compresses and decompresses block payloads. Implementations are safe
// for concurrent use.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	// Decompress returns at most limit bytes, failing with a codec error on
	// corrupt or truncated input.
	Decompress(src []byte, limit int) ([]byte, error)
}

var registry = map[string]func() (Codec, error){
	None:     func() (Codec, error) { return identity{}, nil },
	"snappy": func() (Codec, error) { return snappyCodec{}, nil },
	"s2":     func() (Codec, error) { return s2Codec{}, nil },
	"lz4":    func() (Codec, error) { return lz4Codec{}, nil },
	"zstd":   newZstd,
	"zlib":   func() (Codec, error) { return zlibCodec{}, nil },
}

// Names returns the sorted list of supported codec names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the named codec. An empty name selects None.
func New(name string) (Codec, error) {
	if name == "" {
		name = None
	}
	newCodec, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fault.Configf("unknown compression %q, valid: %s", name, strings.Join(Names(), ", "))
	}
	c, err := newCodec()
	if err != nil {
		return nil, fault.Config("init "+name, err)
	}
	return emptySafe{Codec: c}, nil
}

// emptySafe maps empty input to empty output in both directions, so every
// codec round trips the empty sequence.
type emptySafe struct {
	Codec
}

func (c emptySafe) Compress(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	return c.Codec.Compress(src)
}

func (c emptySafe) Decompress(src []byte, limit int) ([]byte, error) {
	if len(src) == 0 {
		return []byte{}, nil
	}
	b, err := c.Codec.Decompress(src, limit)
	if err != nil {
		return nil, fault.Codec(c.Name()+" decompress", err)
	}
	if len(b) > limit {
		return nil, fault.Codec(c.Name()+" decompress", fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), limit))
	}
	return b, nil
}

// MaxCompressedLen returns an upper bound of the compressed size of a block
// of n bytes for any registered codec.
func MaxCompressedLen(n int) int {
	return n + n/6 + 1024
}

type identity struct{}

func (identity) Name() string { return None }

func (identity) Compress(src []byte) ([]byte, error) { return src, nil }

func (identity) Decompress(src []byte, limit int) ([]byte, error) {
	if len(src) > limit {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(src), limit)
	}
	return src, nil
}
