// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package transport provides the ordered, reliable byte streams that connect
// the two endpoints of a session: an in-process pipe, the standard streams
// of an agent process and a spawned subprocess such as ssh.
package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
)

var ErrClosed = errors.New("channel closed")

// Channel is a duplex byte stream.
type Channel interface {
	io.Reader
	io.Writer
	// Flush pushes buffered bytes to the peer.
	Flush() error
	// CloseWrite closes the sending half. The peer reads a clean end of
	// stream, the drain signal of the protocol.
	CloseWrite() error
	// Close tears the channel down and unblocks pending reads and writes.
	Close() error
}

// ExitCoder is implemented by channels whose far end is a process.
type ExitCoder interface {
	// ExitCode returns the exit status of the peer process, or -1 if it has
	// not exited or was killed by a signal.
	ExitCode() int
}

type pipeEnd struct {
	r    *io.PipeReader
	w    *io.PipeWriter
	once sync.Once
}

// Pipe returns two connected channels. Writes block until the other end
// reads them.
func Pipe() (Channel, Channel) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeEnd{r: ar, w: aw}, &pipeEnd{r: br, w: bw}
}

func (p *pipeEnd) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	return n, closedErr(err)
}

func (p *pipeEnd) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	return n, closedErr(err)
}

func (p *pipeEnd) Flush() error      { return nil }
func (p *pipeEnd) CloseWrite() error { return p.w.Close() }

func (p *pipeEnd) Close() error {
	p.once.Do(func() {
		_ = p.w.Close()
		_ = p.r.CloseWithError(ErrClosed)
	})
	return nil
}

// closedErr reports operations on a locally closed pipe end as ErrClosed.
func closedErr(err error) error {
	if errors.Is(err, io.ErrClosedPipe) {
		return ErrClosed
	}
	return err
}

type stdio struct {
	in   io.Reader
	out  io.Writer
	once sync.Once
}

// Stdio returns the channel of an agent serving on its standard streams.
func Stdio(in io.Reader, out io.Writer) Channel {
	return &stdio{in: in, out: out}
}

func (s *stdio) Read(b []byte) (int, error)  { return s.in.Read(b) }
func (s *stdio) Write(b []byte) (int, error) { return s.out.Write(b) }

func (s *stdio) Flush() error {
	if f, ok := s.out.(interface{ Sync() error }); ok {
		// pipes and terminals do not support fsync
		_ = f.Sync()
	}
	return nil
}

func (s *stdio) CloseWrite() error {
	if c, ok := s.out.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *stdio) Close() (err error) {
	s.once.Do(func() {
		var result *multierror.Error
		if c, ok := s.out.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && !errors.Is(cerr, io.ErrClosedPipe) && !isAlreadyClosed(cerr) {
				result = multierror.Append(result, cerr)
			}
		}
		if c, ok := s.in.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && !isAlreadyClosed(cerr) {
				result = multierror.Append(result, cerr)
			}
		}
		err = result.ErrorOrNil()
	})
	return err
}
