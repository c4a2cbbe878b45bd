// Copyright 2023 The Swarm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package digest_test

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ethersphere/blocksync/pkg/digest"
	"github.com/ethersphere/blocksync/pkg/fault"
)

func TestKnownValues(t *testing.T) {
	for _, tc := range []struct {
		name string
		want string
	}{
		{"md5", "900150983cd24fb0d6963f7d28e17f72"},
		{"sha1", "a9993e364706816aba3e25717850c26c9cd0d89d"},
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha512", "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"},
		{"sha3-256", "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d, err := digest.New(tc.name)
			if err != nil {
				t.Fatal(err)
			}
			if got := d.Sum([]byte("abc")); got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
			if got := len(d.Sum(nil)); got != 2*d.Size() {
				t.Fatalf("got encoded length %d, want %d", got, 2*d.Size())
			}
		})
	}
}

func TestDefault(t *testing.T) {
	d, err := digest.New("")
	if err != nil {
		t.Fatal(err)
	}
	if d.Name() != digest.Default {
		t.Fatalf("got %s, want %s", d.Name(), digest.Default)
	}
}

func TestUnknownAlgorithm(t *testing.T) {
	_, err := digest.New("crc32")
	if !errors.Is(err, fault.ErrConfig) {
		t.Fatalf("got %v, want config error", err)
	}
	if !strings.Contains(err.Error(), "sha512") {
		t.Fatalf("error %q does not list valid names", err)
	}
}

func TestNewlineSafe(t *testing.T) {
	for _, name := range digest.Names() {
		d, err := digest.New(name)
		if err != nil {
			t.Fatal(err)
		}
		sum := d.Sum(bytes.Repeat([]byte{'\n'}, 4096))
		if strings.ContainsAny(sum, "\n\r:") {
			t.Fatalf("%s: digest %q is not newline safe", name, sum)
		}
	}
}

func TestConcurrentSum(t *testing.T) {
	d, err := digest.New("sha512")
	if err != nil {
		t.Fatal(err)
	}
	want := d.Sum([]byte("block"))
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if got := d.Sum([]byte("block")); got != want {
					t.Errorf("got %s, want %s", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
}
