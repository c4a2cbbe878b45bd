// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package digest provides the block fingerprint algorithms that both
// endpoints of a session use to decide whether two blocks are identical.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"sort"
	"strings"
	"sync"

	"github.com/ethersphere/blocksync/pkg/fault"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Default is the algorithm used when none is configured.
const Default = "sha256"

var registry = map[string]func() hash.Hash{
	"md5":         md5.New,
	"sha1":        sha1.New,
	"sha256":      sha256.New,
	"sha512":      sha512.New,
	"sha3-256":    sha3.New256,
	"sha3-512":    sha3.New512,
	"blake2b-256": mustBlake2b(blake2b.New256),
	"blake2b-512": mustBlake2b(blake2b.New512),
}

func mustBlake2b(f func([]byte) (hash.Hash, error)) func() hash.Hash {
	return func() hash.Hash {
		h, err := f(nil)
		if err != nil {
			// unkeyed constructors never fail
			panic(err)
		}
		return h
	}
}

// Names returns the sorted list of supported algorithm names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Digester computes hex encoded digests of blocks with one algorithm.
// It is safe for concurrent use.
type Digester struct {
	name string
	size int
	pool sync.Pool
}

// New returns the Digester for the named algorithm. An empty name selects
// Default. Unknown names are configuration errors.
func New(name string) (*Digester, error) {
	if name == "" {
		name = Default
	}
	newHash, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fault.Configf("unknown hash algorithm %q, valid: %s", name, strings.Join(Names(), ", "))
	}
	d := &Digester{
		name: strings.ToLower(name),
		size: newHash().Size(),
	}
	d.pool.New = func() any { return newHash() }
	return d, nil
}

// Name returns the algorithm name.
func (d *Digester) Name() string {
	return d.name
}

// Size returns the length of the raw digest in bytes. The encoded digest is
// twice as long.
func (d *Digester) Size() int {
	return d.size
}

// Sum returns the lower-case hex digest of block.
func (d *Digester) Sum(block []byte) string {
	h := d.pool.Get().(hash.Hash)
	defer func() {
		h.Reset()
		d.pool.Put(h)
	}()
	_, _ = h.Write(block)
	return hex.EncodeToString(h.Sum(nil))
}

// Running returns a fresh hash of the same algorithm, used to fold many
// blocks into one whole-object checksum.
func (d *Digester) Running() hash.Hash {
	h := d.pool.New().(hash.Hash)
	return h
}
