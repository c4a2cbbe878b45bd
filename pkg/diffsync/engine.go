// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diffsync runs one end of a block synchronization session. The
// Agent announces its object and a digest per block, the Driver compares
// each digest with its own and decides whether the block moves. The side
// holding the source of truth sends the payload of differing blocks and the
// other side writes it.
package diffsync

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"
	"time"

	"github.com/ethersphere/blocksync/pkg/blockstore"
	"github.com/ethersphere/blocksync/pkg/codec"
	"github.com/ethersphere/blocksync/pkg/digest"
	"github.com/ethersphere/blocksync/pkg/fault"
	"github.com/ethersphere/blocksync/pkg/logging"
	"github.com/ethersphere/blocksync/pkg/transport"
	"github.com/ethersphere/blocksync/pkg/wire"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

var (
	errPeerClosed  = errors.New("peer closed the channel early")
	errAlreadyRun  = errors.New("session already run")
	errNoStore     = errors.New("no store")
	errNoChannel   = errors.New("no channel")
	errUnknownRole = errors.New("unknown role")
)

// Store is the local object of an endpoint. *blockstore.Store implements it.
type Store interface {
	Path() string
	Size() int64
	BlockSize() int64
	NumBlocks() uint64
	Created() bool
	SeekToBlock(index uint64) error
	Next() (index uint64, block []byte, err error)
	WriteBlock(index uint64, b []byte) error
	Truncate(size int64) error
	Close() error
}

type Options struct {
	Config  Config
	Store   Store
	Channel transport.Channel
	// Path is the identifier the Agent announces and the one the Driver
	// expects to be announced. The Driver does not check an empty Path and
	// the Agent announces the store path.
	Path   string
	Logger logging.Logger
	// OnBlock is called once per examined block.
	OnBlock func(index uint64, d wire.Decision)
}

// Engine is one end of a session.
type Engine struct {
	role     Role
	config   Config
	store    Store
	ch       *transport.Meter
	path     string
	logger   logging.Logger
	onBlock  func(uint64, wire.Decision)
	digester *digest.Digester
	codec    codec.Codec
	empty    string // digest of the empty block
	sum      hash.Hash
	w        *wire.Writer
	r        *wire.Reader
	report   *Report
	metrics  metrics
	state    atomic.Int32
	ran      atomic.Bool
}

type block struct {
	index  uint64
	data   []byte
	digest string
}

type nextFunc func() (b block, ok bool, err error)

// New returns the engine of role over the store and the channel of o. The
// engine owns both and closes them when Run returns.
func New(role Role, o Options) (*Engine, error) {
	if role != Driver && role != Agent {
		return nil, fault.Config("new session", fmt.Errorf("%w %d", errUnknownRole, role))
	}
	if o.Store == nil {
		return nil, fault.Config("new session", errNoStore)
	}
	if o.Channel == nil {
		return nil, fault.Config("new session", errNoChannel)
	}
	d, c, err := o.Config.resolve()
	if err != nil {
		return nil, err
	}
	if bs := o.Store.BlockSize(); bs != o.Config.BlockSize {
		return nil, fault.Configf("store %s has block size %d, session uses %d", o.Store.Path(), bs, o.Config.BlockSize)
	}
	logger := o.Logger
	if logger == nil {
		logger = logging.Noop()
	}
	path := o.Path
	if role == Agent && path == "" {
		path = o.Store.Path()
	}
	ch := transport.Measure(o.Channel)

	e := &Engine{
		role:     role,
		config:   o.Config,
		store:    o.Store,
		ch:       ch,
		path:     path,
		logger:   logger,
		onBlock:  o.OnBlock,
		digester: d,
		codec:    c,
		empty:    d.Sum(nil),
		w:        wire.NewWriter(ch),
		r:        wire.NewReader(ch, codec.MaxCompressedLen(int(o.Config.BlockSize))),
		metrics:  newMetrics(),
		report: &Report{
			Role:      role,
			Direction: o.Config.Direction,
			BlockSize: o.Config.BlockSize,
			Skipped:   o.Config.Skip,
			Start:     time.Now(),
		},
	}
	if role == Driver && o.Config.ShowSum {
		if o.Config.Direction == Pull && o.Config.DryRun {
			logger.Warning("diffsync: checksum unavailable, a dry-run pull receives no block content")
		} else {
			e.sum = d.Running()
		}
	}
	return e, nil
}

// State returns the current lifecycle stage.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Report returns the report of the session, updated while it runs.
func (e *Engine) Report() *Report {
	return e.report
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.logger.Debugf("diffsync: %s %s: %s", e.role, e.config.Direction, s)
}

// Run performs the session and then closes the channel and the store.
// Cancelling ctx tears the channel down.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.ran.CAS(false, true) {
		return e.report, errAlreadyRun
	}

	err := e.run(ctx)
	if cerr := e.close(); cerr != nil {
		if err == nil {
			err = cerr
		} else {
			e.logger.Debugf("diffsync: close after failure: %v", cerr)
		}
	}
	if err != nil && e.role == Driver {
		err = e.agentFailure(err)
	}

	e.report.WireRead.Store(e.ch.BytesRead())
	e.report.WireWritten.Store(e.ch.BytesWritten())
	e.report.Duration.Store(time.Since(e.report.Start))
	if e.sum != nil && err == nil {
		e.report.Checksum.Store(hex.EncodeToString(e.sum.Sum(nil)))
	}

	if err != nil {
		e.setState(StateFailed)
		e.metrics.Sessions.WithLabelValues(e.role.String(), fault.KindOf(err).String()).Inc()
		return e.report, err
	}
	e.setState(StateClosed)
	e.metrics.Sessions.WithLabelValues(e.role.String(), "ok").Inc()
	return e.report, nil
}

func (e *Engine) run(parent context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-parent.Done():
			_ = e.ch.Close()
		case <-done:
		}
	}()

	err := e.session(parent)
	if err != nil && parent.Err() != nil {
		return fault.Transport("session aborted", parent.Err())
	}
	return err
}

func (e *Engine) session(parent context.Context) error {
	if err := e.handshake(); err != nil {
		return err
	}
	if err := e.store.SeekToBlock(e.config.Skip); err != nil {
		return err
	}
	e.setState(StateStreaming)

	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	blocks := make(chan block, 1)
	g.Go(func() error {
		return e.produce(gctx, blocks)
	})
	next := func() (block, bool, error) {
		if b, ok := <-blocks; ok {
			return b, true, nil
		}
		if err := g.Wait(); err != nil {
			return block{}, false, err
		}
		return block{}, false, nil
	}

	var err error
	source := e.config.Direction.source(e.role)
	switch {
	case e.role == Driver && source:
		err = e.driveSource(next)
	case e.role == Driver:
		err = e.driveSink(next)
	case source:
		err = e.serveSource(next)
	default:
		err = e.serveSink(next)
	}

	cancel()
	if werr := g.Wait(); err == nil && werr != nil && !errors.Is(werr, context.Canceled) {
		err = werr
	}
	return err
}

// produce reads and hashes the local blocks ahead of the protocol loop.
func (e *Engine) produce(ctx context.Context, out chan<- block) error {
	defer close(out)
	for {
		index, data, err := e.store.Next()
		if errors.Is(err, blockstore.ErrEndOfBlocks) {
			return nil
		}
		if err != nil {
			return err
		}
		b := block{index: index, data: data, digest: e.digester.Sum(data)}
		select {
		case out <- b:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Engine) handshake() error {
	bs := e.config.BlockSize
	if e.role == Agent {
		desc := wire.Descriptor{Path: e.path, BlockSize: bs, Size: e.store.Size()}
		if err := e.w.WriteDescriptor(desc); err != nil {
			return err
		}
		if err := e.w.Flush(); err != nil {
			return err
		}
		e.report.Total.Store(e.store.NumBlocks())
		e.setState(StateHandshakeAcked)
		return nil
	}

	e.setState(StateHandshakeSent)
	desc, err := e.r.ReadDescriptor()
	if err == io.EOF {
		return fault.Transport("read descriptor", errPeerClosed)
	}
	if err != nil {
		return err
	}
	if desc.BlockSize != bs {
		return fault.Handshakef("block size %d of %s does not match local block size %d", desc.BlockSize, desc.Path, bs)
	}
	if e.path != "" && desc.Path != e.path {
		return fault.Handshakef("peer serves %q, expected %q", desc.Path, e.path)
	}
	local := e.store.Size()
	if local != 0 && !e.store.Created() && desc.Size != local {
		return fault.Handshakef("size %d of %s does not match local size %d", desc.Size, desc.Path, local)
	}
	if e.config.Direction == Pull && e.store.Created() && desc.Size != local {
		if err := e.store.Truncate(desc.Size); err != nil {
			return err
		}
	}

	total := e.store.NumBlocks()
	if peer := uint64((desc.Size + bs - 1) / bs); peer > total {
		total = peer
	}
	e.report.Total.Store(total)
	e.logger.Infof("diffsync: %s %s with %s: %d blocks of %d bytes", e.config.Direction, e.store.Path(), desc.Path, total, bs)
	return nil
}

// driveSource is the Driver of a push: it compares its own blocks with the
// digests of the Agent and sends the differing ones.
func (e *Engine) driveSource(next nextFunc) error {
	for {
		b, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return e.drain()
		}
		peer, err := e.r.ReadDigest()
		if err == io.EOF {
			return fault.Transport("read digest", errPeerClosed)
		}
		if err != nil {
			return err
		}
		d := decide(b.digest, peer)
		if err := e.send(d, b.data); err != nil {
			return err
		}
		e.record(b.index, d, b.data)
	}
}

// driveSink is the Driver of a pull: it compares the digests of the Agent
// with its own blocks and requests the differing ones.
func (e *Engine) driveSink(next nextFunc) error {
	index := e.config.Skip
	for {
		peer, err := e.r.ReadDigest()
		if err == io.EOF {
			return e.drain()
		}
		if err != nil {
			return err
		}
		b, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			b = block{index: index, digest: e.empty}
		}
		data := b.data
		d := decide(b.digest, peer)
		if d == wire.Same {
			err = e.w.WriteDecision(wire.Same, len(b.data))
		} else {
			err = e.w.WriteDecision(wire.Differ, 0)
		}
		if err != nil {
			return err
		}
		if err := e.w.Flush(); err != nil {
			return err
		}
		if d == wire.Differ {
			reply, n, err := e.r.ReadDecision()
			if err == io.EOF {
				return fault.Transport("read payload", errPeerClosed)
			}
			if err != nil {
				return err
			}
			if reply != wire.Differ {
				return fault.Transport("read payload", fmt.Errorf("%w: %s reply to diff", wire.ErrMalformedFrame, reply))
			}
			if data, err = e.receive(b.index, n); err != nil {
				return err
			}
		}
		e.record(b.index, d, data)
		index = b.index + 1
	}
}

// serveSource is the Agent of a pull: it announces the digests of its
// blocks and sends the ones the Driver asks for.
func (e *Engine) serveSource(next nextFunc) error {
	for {
		b, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			return e.drain()
		}
		if err := e.w.WriteDigest(b.digest); err != nil {
			return err
		}
		if err := e.w.Flush(); err != nil {
			return err
		}
		d, _, err := e.r.ReadDecision()
		if err == io.EOF {
			return fault.Transport("read decision", errPeerClosed)
		}
		if err != nil {
			return err
		}
		if d == wire.Differ {
			if err := e.send(wire.Differ, b.data); err != nil {
				return err
			}
		}
		e.record(b.index, d, b.data)
	}
}

// serveSink is the Agent of a push: it announces the digests of its blocks,
// past its end those of empty blocks, and writes what the Driver sends.
func (e *Engine) serveSink(next nextFunc) error {
	index := e.config.Skip
	for {
		b, ok, err := next()
		if err != nil {
			return err
		}
		if !ok {
			b = block{index: index, digest: e.empty}
		}
		if err := e.w.WriteDigest(b.digest); err != nil {
			return err
		}
		if err := e.w.Flush(); err != nil {
			return err
		}
		d, n, err := e.r.ReadDecision()
		if err == io.EOF {
			return e.drain()
		}
		if err != nil {
			return err
		}
		data := b.data
		if d == wire.Differ {
			if data, err = e.receive(b.index, n); err != nil {
				return err
			}
		}
		e.record(b.index, d, data)
		index = b.index + 1
	}
}

// send writes the decision for a block of the source. On Differ the
// compressed block follows, unless the session is a dry-run.
func (e *Engine) send(d wire.Decision, data []byte) error {
	switch {
	case d == wire.Same:
		if err := e.w.WriteDecision(wire.Same, len(data)); err != nil {
			return err
		}
	case e.config.DryRun:
		if err := e.w.WriteDecision(wire.Differ, 0); err != nil {
			return err
		}
	default:
		p, err := e.codec.Compress(data)
		if err != nil {
			return fault.Codec(e.codec.Name()+" compress", err)
		}
		if err := e.w.WriteDecision(wire.Differ, len(p)); err != nil {
			return err
		}
		if err := e.w.WritePayload(p); err != nil {
			return err
		}
		e.metrics.PayloadSentBytes.Add(float64(len(p)))
	}
	return e.w.Flush()
}

// receive reads a payload of n bytes and writes it at block index of the
// sink. It returns the decompressed block.
func (e *Engine) receive(index uint64, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	p, err := e.r.ReadPayload(n)
	if err != nil {
		return nil, err
	}
	e.metrics.PayloadReceivedBytes.Add(float64(n))
	data, err := e.codec.Decompress(p, int(e.config.BlockSize))
	if err != nil {
		return nil, err
	}
	if e.config.DryRun {
		return data, nil
	}
	if err := e.store.WriteBlock(index, data); err != nil {
		return nil, err
	}
	return data, nil
}

func (e *Engine) record(index uint64, d wire.Decision, data []byte) {
	if d == wire.Same {
		e.report.Same.Inc()
		e.metrics.BlocksSame.Inc()
	} else {
		e.report.Differ.Inc()
		e.metrics.BlocksDiffer.Inc()
	}
	if e.sum != nil {
		_, _ = e.sum.Write(data)
	}
	e.logger.Tracef("diffsync: block %d: %s", index, d)
	if e.onBlock != nil {
		e.onBlock(index, d)
	}
}

// drain ends the stream of this side and waits for the peer to end its own.
func (e *Engine) drain() error {
	e.setState(StateDrained)
	if err := e.w.Flush(); err != nil {
		return err
	}
	if err := e.ch.CloseWrite(); err != nil {
		return fault.Transport("close write", err)
	}
	return e.r.Discard()
}

func (e *Engine) close() error {
	var result *multierror.Error
	if err := e.ch.Close(); err != nil {
		result = multierror.Append(result, fault.Transport("close channel", err))
	}
	if err := e.store.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// agentFailure reclassifies a transport failure of the Driver with the exit
// status of the Agent process, which tells why the Agent went away.
func (e *Engine) agentFailure(err error) error {
	if k := fault.KindOf(err); k != fault.KindTransport && k != fault.KindUnknown {
		return err
	}
	code := e.ch.ExitCode()
	kind := fault.KindFromExitCode(code)
	if kind == fault.KindUnknown {
		return err
	}
	return &fault.Error{
		Kind: kind,
		Op:   fmt.Sprintf("agent exited with status %d", code),
		Err:  errors.New(err.Error()),
	}
}

func decide(local, peer string) wire.Decision {
	if strings.EqualFold(local, peer) {
		return wire.Same
	}
	return wire.Differ
}
