// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux
// +build linux

package blockstore

import (
	"golang.org/x/sys/unix"
)

type fder interface {
	Fd() uintptr
}

func adviseWillNeed(f any, off, n int64) {
	if d, ok := f.(fder); ok {
		_ = unix.Fadvise(int(d.Fd()), off, n, unix.FADV_WILLNEED)
	}
}

func adviseDontNeed(f any, off, n int64) {
	if d, ok := f.(fder); ok {
		_ = unix.Fadvise(int(d.Fd()), off, n, unix.FADV_DONTNEED)
	}
}
