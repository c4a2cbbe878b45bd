// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux
// +build !linux

package blockstore

func adviseWillNeed(f any, off, n int64) {}

func adviseDontNeed(f any, off, n int64) {}
