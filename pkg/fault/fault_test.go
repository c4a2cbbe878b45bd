// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fault_test

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/ethersphere/blocksync/pkg/fault"
)

func TestKinds(t *testing.T) {
	for _, tc := range []struct {
		name     string
		err      error
		sentinel error
		kind     fault.Kind
		exit     int
	}{
		{"config", fault.Configf("bad block size %d", 0), fault.ErrConfig, fault.KindConfig, fault.ExitConfig},
		{"access", fault.Access("open", errors.New("no such file")), fault.ErrAccess, fault.KindAccess, fault.ExitAccess},
		{"handshake", fault.Handshakef("block size %d != %d", 1, 2), fault.ErrHandshake, fault.KindHandshake, fault.ExitHandshake},
		{"transport", fault.Transport("read digest", io.ErrUnexpectedEOF), fault.ErrTransport, fault.KindTransport, fault.ExitTransport},
		{"codec", fault.Codec("decompress", errors.New("corrupt")), fault.ErrCodec, fault.KindCodec, fault.ExitCodec},
	} {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := fmt.Errorf("session: %w", tc.err)
			if !errors.Is(wrapped, tc.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", wrapped, tc.sentinel)
			}
			if got := fault.KindOf(wrapped); got != tc.kind {
				t.Fatalf("got kind %v, want %v", got, tc.kind)
			}
			if got := fault.ExitCode(wrapped); got != tc.exit {
				t.Fatalf("got exit code %d, want %d", got, tc.exit)
			}
			if got := fault.KindFromExitCode(tc.exit); got != tc.kind {
				t.Fatalf("got kind %v from exit code, want %v", got, tc.kind)
			}
		})
	}
}

func TestInnermostKindWins(t *testing.T) {
	err := fault.Transport("read payload", fault.Codec("decompress", errors.New("corrupt")))
	if fault.KindOf(err) != fault.KindCodec {
		t.Fatalf("got kind %v, want codec", fault.KindOf(err))
	}
	if errors.Is(err, fault.ErrTransport) {
		t.Fatal("codec error reported as transport error")
	}
}

func TestUnknown(t *testing.T) {
	if got := fault.ExitCode(nil); got != 0 {
		t.Fatalf("got exit code %d for nil error", got)
	}
	err := errors.New("plain")
	if got := fault.ExitCode(err); got != fault.ExitUnknown {
		t.Fatalf("got exit code %d, want %d", got, fault.ExitUnknown)
	}
}

func TestMessage(t *testing.T) {
	err := fault.Access("open /dev/sdz", errors.New("permission denied"))
	if got, want := err.Error(), "access error: open /dev/sdz: permission denied"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
