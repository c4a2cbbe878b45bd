// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diffsync

import (
	"github.com/ethersphere/blocksync/pkg/codec"
	"github.com/ethersphere/blocksync/pkg/digest"
	"github.com/ethersphere/blocksync/pkg/fault"
)

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = 1 << 20

// Config holds the parameters both endpoints agree on before the handshake.
// It is constructed once and never changed during a session.
type Config struct {
	BlockSize int64
	Hash      string
	Codec     string
	// Skip is the number of leading blocks excluded from the session.
	Skip      uint64
	DryRun    bool
	Direction Direction
	// Force creates a missing sink of DevSize bytes.
	Force   bool
	DevSize int64
	// ShowSum folds the source content into a whole-object checksum.
	ShowSum bool
}

// Option sets a Config field.
type Option func(*Config)

// NewConfig returns a Config with defaults overridden by opts.
func NewConfig(opts ...Option) Config {
	c := Config{
		BlockSize: DefaultBlockSize,
		Hash:      digest.Default,
		Codec:     codec.None,
		Direction: Push,
	}
	for _, o := range opts {
		o(&c)
	}
	return c
}

// WithBlockSize sets the block size in bytes.
func WithBlockSize(n int64) Option {
	return func(c *Config) {
		c.BlockSize = n
	}
}

// WithHash sets the block digest algorithm.
func WithHash(name string) Option {
	return func(c *Config) {
		c.Hash = name
	}
}

// WithCodec sets the payload compression.
func WithCodec(name string) Option {
	return func(c *Config) {
		c.Codec = name
	}
}

// WithSkip sets the number of leading blocks left out of the session.
func WithSkip(blocks uint64) Option {
	return func(c *Config) {
		c.Skip = blocks
	}
}

// WithDryRun compares without writing.
func WithDryRun(v bool) Option {
	return func(c *Config) {
		c.DryRun = v
	}
}

// WithDirection sets which side is the source.
func WithDirection(d Direction) Option {
	return func(c *Config) {
		c.Direction = d
	}
}

// WithShowSum makes the Driver compute a checksum of the source.
func WithShowSum(v bool) Option {
	return func(c *Config) {
		c.ShowSum = v
	}
}

// WithForce allows the sink to be created with devSize bytes.
func WithForce(devSize int64) Option {
	return func(c *Config) {
		c.Force = true
		c.DevSize = devSize
	}
}

// Validate checks the config and resolves its algorithm names.
func (c Config) Validate() error {
	_, _, err := c.resolve()
	return err
}

func (c Config) resolve() (*digest.Digester, codec.Codec, error) {
	if c.BlockSize <= 0 {
		return nil, nil, fault.Configf("block size must be positive, got %d", c.BlockSize)
	}
	if c.BlockSize > int64(maxBlockSize) {
		return nil, nil, fault.Configf("block size %d exceeds %d", c.BlockSize, maxBlockSize)
	}
	if c.Direction != Push && c.Direction != Pull {
		return nil, nil, fault.Configf("unknown direction %d", c.Direction)
	}
	if c.Force && c.DevSize < 0 {
		return nil, nil, fault.Configf("device size must not be negative, got %d", c.DevSize)
	}
	d, err := digest.New(c.Hash)
	if err != nil {
		return nil, nil, err
	}
	cd, err := codec.New(c.Codec)
	if err != nil {
		return nil, nil, err
	}
	return d, cd, nil
}

// maxBlockSize bounds a block so that a compressed payload fits an int on
// every platform.
const maxBlockSize = 1 << 30
