// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethersphere/blocksync/pkg/fault"
	"go.uber.org/atomic"
	"golang.org/x/time/rate"
)

// ErrIdleTimeout is the cause of a channel closed for lack of progress.
var ErrIdleTimeout = errors.New("idle timeout")

// Meter counts the bytes moved through a channel.
type Meter struct {
	Channel
	read    atomic.Uint64
	written atomic.Uint64
}

// Measure wraps ch with byte counters.
func Measure(ch Channel) *Meter {
	return &Meter{Channel: ch}
}

func (m *Meter) Read(b []byte) (int, error) {
	n, err := m.Channel.Read(b)
	m.read.Add(uint64(n))
	return n, err
}

func (m *Meter) Write(b []byte) (int, error) {
	n, err := m.Channel.Write(b)
	m.written.Add(uint64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (m *Meter) BytesRead() uint64 { return m.read.Load() }

// BytesWritten returns the number of bytes written so far.
func (m *Meter) BytesWritten() uint64 { return m.written.Load() }

// ExitCode forwards to the wrapped channel.
func (m *Meter) ExitCode() int { return exitCode(m.Channel) }

type idle struct {
	Channel
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

// WithIdleTimeout closes ch when no read or write completes for d. Errors
// observed after expiry are transport errors wrapping ErrIdleTimeout. A zero
// d returns ch unchanged.
func WithIdleTimeout(ch Channel, d time.Duration) Channel {
	if d <= 0 {
		return ch
	}
	c := &idle{Channel: ch, timeout: d}
	c.timer = time.AfterFunc(d, func() {
		c.expired.Store(true)
		_ = ch.Close()
	})
	return c
}

func (c *idle) Read(b []byte) (int, error) {
	n, err := c.Channel.Read(b)
	return n, c.progress(err)
}

func (c *idle) Write(b []byte) (int, error) {
	n, err := c.Channel.Write(b)
	return n, c.progress(err)
}

func (c *idle) progress(err error) error {
	if c.expired.Load() {
		return fault.Transport(fmt.Sprintf("no progress for %s", c.timeout), ErrIdleTimeout)
	}
	if err == nil {
		c.timer.Reset(c.timeout)
	}
	return err
}

func (c *idle) Close() error {
	c.timer.Stop()
	return c.Channel.Close()
}

func (c *idle) ExitCode() int { return exitCode(c.Channel) }

type limited struct {
	Channel
	limiter *rate.Limiter
	ctx     context.Context
	cancel  context.CancelFunc
}

// WithRateLimit caps the bytes per second written to and read from ch. A
// zero limit returns ch unchanged.
func WithRateLimit(ch Channel, bytesPerSecond int) Channel {
	if bytesPerSecond <= 0 {
		return ch
	}
	burst := bytesPerSecond
	if burst > 1<<20 {
		burst = 1 << 20
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &limited{
		Channel: ch,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *limited) Write(b []byte) (int, error) {
	var written int
	for len(b) > 0 {
		chunk := b
		if len(chunk) > c.limiter.Burst() {
			chunk = chunk[:c.limiter.Burst()]
		}
		if err := c.limiter.WaitN(c.ctx, len(chunk)); err != nil {
			return written, fault.Transport("rate limit", ErrClosed)
		}
		n, err := c.Channel.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		b = b[n:]
	}
	return written, nil
}

func (c *limited) Read(b []byte) (int, error) {
	if len(b) > c.limiter.Burst() {
		b = b[:c.limiter.Burst()]
	}
	n, err := c.Channel.Read(b)
	if n > 0 {
		if werr := c.limiter.WaitN(c.ctx, n); werr != nil && err == nil {
			err = fault.Transport("rate limit", ErrClosed)
		}
	}
	return n, err
}

func (c *limited) Close() error {
	c.cancel()
	return c.Channel.Close()
}

func (c *limited) ExitCode() int { return exitCode(c.Channel) }

func exitCode(ch Channel) int {
	if e, ok := ch.(ExitCoder); ok {
		return e.ExitCode()
	}
	return -1
}
