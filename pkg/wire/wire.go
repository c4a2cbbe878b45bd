// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire implements the framing of the block synchronization
// protocol: newline terminated control lines and declared-length raw
// payloads.
//
//	handshake  <identifier>:<blockSize>:<size>\n
//	digest     <hexDigest>\n
//	decision   <same|diff>:<wireByteLength>\n  followed by the payload iff diff
package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ethersphere/blocksync/pkg/fault"
)

// MaxLineSize is the longest control line accepted, newline included.
const MaxLineSize = 4096

var (
	ErrLineTooLong     = errors.New("line too long")
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Decision tells whether a block moves.
type Decision int

const (
	Same Decision = iota
	Differ
)

const (
	tagSame = "same"
	tagDiff = "diff"
)

func (d Decision) String() string {
	if d == Differ {
		return tagDiff
	}
	return tagSame
}

// Descriptor identifies the storage object served by an endpoint.
type Descriptor struct {
	Path      string
	BlockSize int64
	Size      int64
}

func (d Descriptor) String() string {
	return d.Path + ":" + strconv.FormatInt(d.BlockSize, 10) + ":" + strconv.FormatInt(d.Size, 10)
}

// ParseDescriptor parses a handshake line without its newline. The numeric
// fields are split from the right so the identifier may contain ':'.
func ParseDescriptor(line string) (Descriptor, error) {
	j := lastColon(line)
	if j < 0 {
		return Descriptor{}, fmt.Errorf("%w: descriptor %q", ErrMalformedFrame, line)
	}
	i := lastColon(line[:j])
	if i < 0 {
		return Descriptor{}, fmt.Errorf("%w: descriptor %q", ErrMalformedFrame, line)
	}
	blockSize, err := strconv.ParseInt(line[i+1:j], 10, 64)
	if err != nil || blockSize <= 0 {
		return Descriptor{}, fmt.Errorf("%w: descriptor block size %q", ErrMalformedFrame, line[i+1:j])
	}
	size, err := strconv.ParseInt(line[j+1:], 10, 64)
	if err != nil || size < 0 {
		return Descriptor{}, fmt.Errorf("%w: descriptor size %q", ErrMalformedFrame, line[j+1:])
	}
	return Descriptor{Path: line[:i], BlockSize: blockSize, Size: size}, nil
}

func lastColon(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// Writer writes frames to a buffered stream. Frames are only sent once Flush
// is called.
type Writer struct {
	w *bufio.Writer
}

// NewWriter returns a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteDescriptor writes the handshake line.
func (w *Writer) WriteDescriptor(d Descriptor) error {
	if bytes.ContainsAny([]byte(d.Path), "\r\n") {
		return fault.Configf("identifier %q contains a line break", d.Path)
	}
	return w.writeLine(d.String())
}

// WriteDigest writes a digest line.
func (w *Writer) WriteDigest(digest string) error {
	if !isHex(digest) {
		return fault.Transport("write digest", fmt.Errorf("%w: digest %q is not hex", ErrMalformedFrame, digest))
	}
	return w.writeLine(digest)
}

// WriteDecision writes a decision line declaring n payload bytes. For Differ
// exactly n bytes must follow with WritePayload.
func (w *Writer) WriteDecision(d Decision, n int) error {
	return w.writeLine(d.String() + ":" + strconv.Itoa(n))
}

// WritePayload writes raw payload bytes.
func (w *Writer) WritePayload(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return fault.Transport("write payload", err)
	}
	return nil
}

// Flush sends all buffered frames.
func (w *Writer) Flush() error {
	if err := w.w.Flush(); err != nil {
		return fault.Transport("flush", err)
	}
	return nil
}

func (w *Writer) writeLine(s string) error {
	if _, err := w.w.WriteString(s); err != nil {
		return fault.Transport("write line", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fault.Transport("write line", err)
	}
	return nil
}

// Reader reads frames from a buffered stream.
type Reader struct {
	r          *bufio.Reader
	maxPayload int
}

// NewReader returns a Reader on r that refuses payloads longer than
// maxPayload bytes.
func NewReader(r io.Reader, maxPayload int) *Reader {
	return &Reader{
		r:          bufio.NewReaderSize(r, MaxLineSize),
		maxPayload: maxPayload,
	}
}

// ReadDescriptor reads the handshake line.
func (r *Reader) ReadDescriptor() (Descriptor, error) {
	line, err := r.readLine()
	if err != nil {
		return Descriptor{}, err
	}
	d, err := ParseDescriptor(line)
	if err != nil {
		return Descriptor{}, fault.Transport("read descriptor", err)
	}
	return d, nil
}

// ReadDigest reads a digest line.
func (r *Reader) ReadDigest() (string, error) {
	line, err := r.readLine()
	if err != nil {
		return "", err
	}
	if !isHex(line) {
		return "", fault.Transport("read digest", fmt.Errorf("%w: digest %q", ErrMalformedFrame, line))
	}
	return line, nil
}

// ReadDecision reads a decision line and its declared payload length.
func (r *Reader) ReadDecision() (Decision, int, error) {
	line, err := r.readLine()
	if err != nil {
		return Same, 0, err
	}
	i := lastColon(line)
	if i < 0 {
		return Same, 0, fault.Transport("read decision", fmt.Errorf("%w: decision %q", ErrMalformedFrame, line))
	}
	var d Decision
	switch line[:i] {
	case tagSame:
		d = Same
	case tagDiff:
		d = Differ
	default:
		return Same, 0, fault.Transport("read decision", fmt.Errorf("%w: decision tag %q", ErrMalformedFrame, line[:i]))
	}
	n, err := strconv.Atoi(line[i+1:])
	if err != nil || n < 0 {
		return Same, 0, fault.Transport("read decision", fmt.Errorf("%w: length %q", ErrMalformedFrame, line[i+1:]))
	}
	if d == Differ && n > r.maxPayload {
		return Same, 0, fault.Transport("read decision", fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, r.maxPayload))
	}
	return d, n, nil
}

// ReadPayload reads exactly n payload bytes.
func (r *Reader) ReadPayload(n int) ([]byte, error) {
	if n > r.maxPayload {
		return nil, fault.Transport("read payload", fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, r.maxPayload))
	}
	p := make([]byte, n)
	if _, err := io.ReadFull(r.r, p); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fault.Transport("read payload", err)
	}
	return p, nil
}

// Discard reads and drops everything up to the end of the stream.
func (r *Reader) Discard() error {
	if _, err := io.Copy(io.Discard, r.r); err != nil {
		return fault.Transport("drain", err)
	}
	return nil
}

// readLine returns a line without its newline. A stream that ends before the
// first byte of the line yields io.EOF, the clean end of the session.
func (r *Reader) readLine() (string, error) {
	line, err := r.r.ReadSlice('\n')
	if err != nil {
		switch {
		case errors.Is(err, io.EOF) && len(line) == 0:
			return "", io.EOF
		case errors.Is(err, io.EOF):
			return "", fault.Transport("read line", io.ErrUnexpectedEOF)
		case errors.Is(err, bufio.ErrBufferFull):
			return "", fault.Transport("read line", ErrLineTooLong)
		}
		return "", fault.Transport("read line", err)
	}
	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
