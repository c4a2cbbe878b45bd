// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diffsync

import (
	"strings"

	"github.com/ethersphere/blocksync/pkg/fault"
)

// Role tells which end of the session an engine runs.
type Role int

const (
	// Driver initiates the session, compares digests and decides.
	Driver Role = iota
	// Agent serves the other object and announces its digests.
	Agent
)

func (r Role) String() string {
	if r == Agent {
		return "agent"
	}
	return "driver"
}

// Direction tells which object is the source of truth.
type Direction int

const (
	// Push mutates the object of the Agent.
	Push Direction = iota
	// Pull mutates the object of the Driver.
	Pull
)

func (d Direction) String() string {
	if d == Pull {
		return "pull"
	}
	return "push"
}

// ParseDirection parses "push" or "pull".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "push":
		return Push, nil
	case "pull":
		return Pull, nil
	}
	return Push, fault.Configf("unknown direction %q", s)
}

// source reports whether a side of role r reads the source of truth.
func (d Direction) source(r Role) bool {
	return (d == Push) == (r == Driver)
}

// State is the lifecycle stage of a session.
type State int32

const (
	StateCreated State = iota
	// StateHandshakeSent is the Driver waiting for the descriptor of the
	// Agent it launched with the session parameters.
	StateHandshakeSent
	// StateHandshakeAcked is the Agent having announced its descriptor.
	StateHandshakeAcked
	StateStreaming
	StateDrained
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateCreated:        "created",
	StateHandshakeSent:  "handshake sent",
	StateHandshakeAcked: "handshake acked",
	StateStreaming:      "streaming",
	StateDrained:        "drained",
	StateClosed:         "closed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
