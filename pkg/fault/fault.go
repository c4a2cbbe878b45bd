// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fault defines the error categories that terminate a block
// synchronization session and the process exit status of each.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the category of a session-terminating error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindAccess
	KindHandshake
	KindTransport
	KindCodec
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAccess:
		return "access"
	case KindHandshake:
		return "handshake"
	case KindTransport:
		return "transport"
	case KindCodec:
		return "codec"
	}
	return "unknown"
}

// Sentinels usable with errors.Is to test the kind of an error.
var (
	ErrConfig    = &Error{Kind: KindConfig}
	ErrAccess    = &Error{Kind: KindAccess}
	ErrHandshake = &Error{Kind: KindHandshake}
	ErrTransport = &Error{Kind: KindTransport}
	ErrCodec     = &Error{Kind: KindCodec}
)

// Error is an error of a known Kind raised by operation Op.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s error: %s", e.Kind, e.Op)
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, op string, err error) error {
	// keep the innermost kind if err is already classified
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config classifies err as an invalid configuration.
func Config(op string, err error) error { return newError(KindConfig, op, err) }

// Access classifies err as a failure to open, create or size a storage object.
func Access(op string, err error) error { return newError(KindAccess, op, err) }

// Handshake classifies err as a descriptor mismatch between the endpoints.
func Handshake(op string, err error) error { return newError(KindHandshake, op, err) }

// Transport classifies err as a broken, closed or malformed channel.
func Transport(op string, err error) error { return newError(KindTransport, op, err) }

// Codec classifies err as a payload decompression failure.
func Codec(op string, err error) error { return newError(KindCodec, op, err) }

// Configf returns a new configuration error with a formatted message.
func Configf(format string, args ...any) error {
	return &Error{Kind: KindConfig, Err: fmt.Errorf(format, args...)}
}

// Handshakef returns a new handshake error with a formatted message.
func Handshakef(format string, args ...any) error {
	return &Error{Kind: KindHandshake, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in the chain of err.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Exit status of the process for each kind. Zero is success.
const (
	ExitUnknown   = 1
	ExitConfig    = 2
	ExitAccess    = 3
	ExitHandshake = 4
	ExitTransport = 5
	ExitCodec     = 6
)

// ExitCode returns the process exit status for err, 0 for a nil error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindConfig:
		return ExitConfig
	case KindAccess:
		return ExitAccess
	case KindHandshake:
		return ExitHandshake
	case KindTransport:
		return ExitTransport
	case KindCodec:
		return ExitCodec
	}
	return ExitUnknown
}

// KindFromExitCode maps the exit status of a peer process back to a Kind.
func KindFromExitCode(code int) Kind {
	switch code {
	case ExitConfig:
		return KindConfig
	case ExitAccess:
		return KindAccess
	case ExitHandshake:
		return KindHandshake
	case ExitTransport:
		return KindTransport
	case ExitCodec:
		return KindCodec
	}
	return KindUnknown
}
