// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diffsync

import (
	"time"

	"go.uber.org/atomic"
	"gopkg.in/yaml.v2"
)

// Report accumulates the outcome of a session. Its counters may be read
// while the session runs.
type Report struct {
	Role      Role
	Direction Direction
	BlockSize int64
	Skipped   uint64
	Start     time.Time

	Same        atomic.Uint64
	Differ      atomic.Uint64
	Total       atomic.Uint64
	WireRead    atomic.Uint64
	WireWritten atomic.Uint64
	Duration    atomic.Duration
	Checksum    atomic.String
}

// Examined returns the number of blocks compared so far.
func (r *Report) Examined() uint64 {
	return r.Same.Load() + r.Differ.Load()
}

// Elapsed returns the session duration, or the time since its start while
// it runs.
func (r *Report) Elapsed() time.Duration {
	if d := r.Duration.Load(); d > 0 {
		return d
	}
	if r.Start.IsZero() {
		return 0
	}
	return time.Since(r.Start)
}

// Rate returns the examined throughput in MiB per second.
func (r *Report) Rate() float64 {
	secs := r.Elapsed().Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(r.Examined()) * float64(r.BlockSize) / (1024 * 1024) / secs
}

// Summary is a point in time copy of a Report.
type Summary struct {
	Role        string  `yaml:"role"`
	Direction   string  `yaml:"direction"`
	BlockSize   int64   `yaml:"block_size"`
	Same        uint64  `yaml:"same"`
	Differ      uint64  `yaml:"differ"`
	Skipped     uint64  `yaml:"skipped"`
	Total       uint64  `yaml:"total"`
	WireRead    uint64  `yaml:"wire_read_bytes"`
	WireWritten uint64  `yaml:"wire_written_bytes"`
	Start       string  `yaml:"start"`
	Duration    string  `yaml:"duration"`
	Rate        float64 `yaml:"rate_mib_s"`
	Checksum    string  `yaml:"checksum,omitempty"`
}

// Snapshot returns the current values of r.
func (r *Report) Snapshot() Summary {
	return Summary{
		Role:        r.Role.String(),
		Direction:   r.Direction.String(),
		BlockSize:   r.BlockSize,
		Same:        r.Same.Load(),
		Differ:      r.Differ.Load(),
		Skipped:     r.Skipped,
		Total:       r.Total.Load(),
		WireRead:    r.WireRead.Load(),
		WireWritten: r.WireWritten.Load(),
		Start:       r.Start.UTC().Format(time.RFC3339),
		Duration:    r.Elapsed().Round(time.Millisecond).String(),
		Rate:        r.Rate(),
		Checksum:    r.Checksum.Load(),
	}
}

// YAML returns the snapshot of r as a YAML document.
func (r *Report) YAML() ([]byte, error) {
	return yaml.Marshal(r.Snapshot())
}
